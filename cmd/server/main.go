package main

import (
	"chainwatch/internal/api"
	"chainwatch/internal/app"
	"chainwatch/internal/config"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/services"
	"chainwatch/internal/store"
	"chainwatch/internal/views"
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// main is the application composition root.
// It wires the configured storage, blob, event and model adapters behind ports
// and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	medium, err := app.OpenMedium(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer medium.Close()

	blobs, err := app.OpenBlobs(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	publisher, err := app.OpenEvents(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer publisher.Close()

	metrics := obs.NewMetrics()

	opts := store.Options{Key: cfg.StorageKey, Metrics: metrics}
	if cfg.SeedPath != "" {
		opts.Seed = store.FileSeed(cfg.SeedPath, log.Printf)
	}
	st := store.Open(ctx, medium.KV, opts)

	summaries, err := views.NewSummaryCache(64)
	if err != nil {
		log.Fatal(err)
	}

	router := api.NewRouter(api.RouterDeps{
		Batches: services.NewBatchService(services.BatchServiceDeps{
			Store:   st,
			Blobs:   blobs,
			Events:  publisher,
			Metrics: metrics,
		}),
		Insights:  services.NewInsightsService(app.TextGenerator(cfg), metrics),
		Sessions:  services.NewSessionService(medium.KV),
		Summaries: summaries,
		Metrics:   metrics,
		Degraded:  st.Degraded,
	})

	// Write timeout covers model calls and multipart uploads.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server listening addr=:%s storage=%s blobs=%s events=%s", cfg.Port, cfg.StorageDriver, blobs.Driver(), cfg.EventsDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown err=%v", err)
	}
	if err := st.Close(shutdownCtx); err != nil {
		log.Printf("store close err=%v", err)
	}
}
