package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/storeemu"
)

func main() {
	cfg, err := config.Load(config.WithDotEnv(".env.local", ".env"), config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	blobs, err := storeemu.OpenBlobStore(context.Background(), cfg.StorageURL)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}

	store, err := storeemu.New(cfg, blobs, storeemu.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalf("Failed to create store emulator: %v", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: routes(store, cfg.RequestTimeout),
	}

	go func() {
		log.Printf("Store emulator starting on port %s (identity: %s)", cfg.Port, cfg.Identity)
		log.Printf("Blob storage: %s", cfg.StorageURL)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

func routes(store *storeemu.Server, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "healthy"})
	})

	store.Mount(r)
	return r
}
