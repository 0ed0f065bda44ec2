package main

import (
	"chainwatch/internal/app"
	"chainwatch/internal/config"
	"chainwatch/internal/store"
	"context"
	"fmt"
	"log"
	"os"
	"time"
)

const usage = `usage: dbtool <command>

commands:
  init     prepare the storage schema
  seed     replace the stored collection with SEED_PATH or the built-in sample
  export   print the stored record as JSON`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	medium, err := app.OpenMedium(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer medium.Close()

	switch os.Args[1] {
	case "init":
		log.Printf("Schema ready. driver=%s", cfg.StorageDriver)

	case "seed":
		if err := seed(ctx, cfg, medium); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}

	case "export":
		raw, ok, err := medium.KV.Get(ctx, cfg.StorageKey)
		if err != nil {
			log.Fatalf("export failed: %v", err)
		}
		if !ok {
			log.Fatalf("export failed: no record under %q", cfg.StorageKey)
		}
		fmt.Println(raw)

	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func seed(ctx context.Context, cfg config.Config, medium app.Medium) error {
	batches := store.SampleBatches(time.Now().UTC())
	if cfg.SeedPath != "" {
		loaded, err := store.LoadSeedFile(cfg.SeedPath)
		if err != nil {
			return err
		}
		batches = loaded
	}

	log.Println("Seeding database...")
	st := store.Open(ctx, medium.KV, store.Options{Key: cfg.StorageKey})
	if err := st.Persist(ctx, batches); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := st.Close(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Printf("Seeding complete. batches=%d", len(batches))
	return nil
}

