package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-upload/pkg/simpleupload/authorizer"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
)

func main() {
	cfg, err := config.Load(config.WithDotEnv(".env.local", ".env"), config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	// A missing secret is reported per request as configuration_error.
	if err := cfg.ValidateAuthorizer(); err != nil {
		slog.Warn("Authorizer started without a signing secret", "err", err)
	}

	signer := authorizer.New(cfg)
	handlers := authorizer.NewHandlers(signer, authorizer.WithJWTSecret(cfg.AuthJWTSecret))

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	server.R.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		if !signer.Ready() {
			http.Error(w, "signing secret missing", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	server.R.Group(func(r chi.Router) {
		if cfg.Environment == "development" {
			r.Use(corsMiddleware)
		}
		handlers.Mount(r)
	})

	slog.Info("Authorizer ready", "environment", cfg.Environment, "jwt", cfg.AuthJWTSecret != "", "digest", cfg.SignatureDigest)
	server.Run()
}

// corsMiddleware lets a browser on another origin call the signing endpoint during development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
