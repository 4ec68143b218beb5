package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mediaup",
	Short: "Upload photos and videos through a signing authorizer",
	Long:  `A CLI tool that asks an authorizer to sign each upload and submits the files to the object store under a contributor name and message.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
