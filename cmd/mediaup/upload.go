package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/client"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
)

const (
	progressBarWidth    = 40
	progressBarThrottle = 65 * 1000000
)

var uploadFlags struct {
	name     string
	message  string
	token    string
	encoding string
	verbose  bool
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload one or more files under a contributor name",
	Long: `Uploads the given files one after another. Every file is authorized separately;
the first failure stops the run and nothing is reported as uploaded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFlags.name, "name", "n", "", "contributor name (empty uploads as guest)")
	uploadCmd.Flags().StringVarP(&uploadFlags.message, "message", "m", "", "optional message stored with every file")
	uploadCmd.Flags().StringVar(&uploadFlags.token, "token", os.Getenv("AUTHORIZER_TOKEN"), "bearer token for the authorizer")
	uploadCmd.Flags().StringVar(&uploadFlags.encoding, "encoding", "", "metadata encoding: json or pipe")
	uploadCmd.Flags().BoolVarP(&uploadFlags.verbose, "verbose", "v", false, "log requests")
}

// runUpload is the main entry point for the upload command
func runUpload(cmd *cobra.Command, args []string) error {
	opts := []config.Option{config.WithDotEnv(".env.local", ".env"), config.WithEnv()}
	if uploadFlags.encoding != "" {
		opts = append(opts, config.WithMetadataEncoding(uploadFlags.encoding))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	files, closeAll, err := openFiles(args)
	if err != nil {
		return err
	}
	defer closeAll()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if uploadFlags.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var bar *progressbar.ProgressBar
	c := client.New(cfg,
		client.WithLogger(logger),
		client.WithAuthToken(uploadFlags.token),
		client.WithStateObserver(func(item client.Item) {
			switch item.State {
			case client.StateSubmitting:
				bar = createProgressBar(fmt.Sprintf("[%d/%d] %s", item.Index+1, len(files), item.Name))
			case client.StateDone, client.StateFailed:
				if bar != nil {
					_ = bar.Finish()
					bar = nil
				}
			}
		}),
		client.WithProgress(func(n int64) {
			if bar != nil {
				_ = bar.Set64(n)
			}
		}),
	)

	batch, err := c.UploadBatch(cmd.Context(), files, uploadFlags.name, uploadFlags.message)
	if err != nil {
		printFailure(err)
		return err
	}

	printResults(batch.Results())
	return nil
}

func openFiles(paths []string) ([]simpleupload.File, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	files := make([]simpleupload.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		closers = append(closers, f)

		info, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			closeAll()
			return nil, nil, fmt.Errorf("%s is a directory", p)
		}

		contentType := mime.TypeByExtension(filepath.Ext(p))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, simpleupload.File{
			Name:        filepath.Base(p),
			Size:        info.Size(),
			ContentType: contentType,
			Body:        f,
		})
	}
	return files, closeAll, nil
}

func createProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionThrottle(progressBarThrottle),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printResults(results []*simpleupload.UploadResult) {
	for _, r := range results {
		color.Green("✓ %s (%s)", r.URL, r.ResourceKind)
		fmt.Printf("  Name:    %s\n", r.DisplayName())
		if msg := r.DisplayMessage(); msg != "" {
			fmt.Printf("  Message: %s\n", msg)
		}
		if r.Folder != "" {
			fmt.Printf("  Folder:  %s\n", r.Folder)
		}
	}
}

func printFailure(err error) {
	var fileErr *simpleupload.FileError
	if errors.As(err, &fileErr) {
		color.Red("✗ %s failed, no files reported as uploaded", fileErr.Name)
	}
	switch {
	case errors.Is(err, simpleupload.ErrConfiguration):
		color.Yellow("  configuration: %v", err)
	case errors.Is(err, simpleupload.ErrValidation):
		color.Yellow("  invalid input: %v", err)
	case errors.Is(err, simpleupload.ErrAuthorization):
		color.Yellow("  authorization: %v", err)
	case errors.Is(err, simpleupload.ErrUpload):
		color.Yellow("  store rejected the upload: %v", err)
	}
}
