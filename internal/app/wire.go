package app

import (
	"chainwatch/internal/adapters/blob"
	"chainwatch/internal/adapters/events"
	"chainwatch/internal/adapters/kv"
	"chainwatch/internal/adapters/llm"
	"chainwatch/internal/config"
	"chainwatch/internal/platform/db"
	"chainwatch/internal/ports"
	"context"
	"fmt"
	"log"
)

// Medium is the durable key-value store selected by STORAGE_DRIVER plus the
// function releasing its connection.
type Medium struct {
	KV    ports.KeyValueStore
	Close func() error
}

func noClose() error { return nil }

// OpenMedium connects the configured storage driver and prepares its schema.
func OpenMedium(ctx context.Context, cfg config.Config) (Medium, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		conn, err := db.OpenSqlite(cfg.DBPath)
		if err != nil {
			return Medium{}, fmt.Errorf("open medium: %w", err)
		}
		if err := kv.InitSqliteSchema(conn); err != nil {
			_ = conn.Close()
			return Medium{}, fmt.Errorf("open medium: %w", err)
		}
		return Medium{KV: kv.NewSqliteKV(conn), Close: conn.Close}, nil

	case "postgres":
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return Medium{}, fmt.Errorf("open medium: %w", err)
		}
		if err := kv.InitSQLSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return Medium{}, fmt.Errorf("open medium: %w", err)
		}
		return Medium{KV: kv.NewSQLKV(conn), Close: conn.Close}, nil

	case "redis":
		client, err := kv.OpenRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "chainwatch:")
		if err != nil {
			return Medium{}, fmt.Errorf("open medium: %w", err)
		}
		return Medium{KV: client, Close: client.Close}, nil

	case "memory":
		return Medium{KV: kv.NewMemoryKV(), Close: noClose}, nil
	}
	return Medium{}, fmt.Errorf("open medium: unknown driver %q", cfg.StorageDriver)
}

// OpenBlobs builds the attachment blob store for BLOB_DRIVER.
func OpenBlobs(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch cfg.BlobDriver {
	case "fs":
		s, err := blob.NewFSStore(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("open blobs: %w", err)
		}
		return s, nil
	case "s3":
		s, err := blob.NewS3Store(ctx, blob.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open blobs: %w", err)
		}
		return s, nil
	case "memory":
		return blob.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("open blobs: unknown driver %q", cfg.BlobDriver)
}

// OpenEvents builds the batch change publisher for EVENTS_DRIVER.
func OpenEvents(cfg config.Config) (ports.EventPublisher, error) {
	switch cfg.EventsDriver {
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic), nil
	case "rabbitmq":
		p, err := events.DialRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			return nil, fmt.Errorf("open events: %w", err)
		}
		return p, nil
	case "log":
		return events.LogPublisher{}, nil
	case "none":
		return events.NopPublisher{}, nil
	}
	return nil, fmt.Errorf("open events: unknown driver %q", cfg.EventsDriver)
}

// TextGenerator returns the language model client, or a generator that fails
// every call when no API key is configured.
func TextGenerator(cfg config.Config) ports.TextGenerator {
	if cfg.LLMAPIKey == "" {
		log.Println("LLM_API_KEY not set; AI insights will return errors")
		return llm.UnconfiguredGenerator{}
	}
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: 2,
	})
	if err != nil {
		log.Printf("llm client disabled err=%v", err)
		return llm.UnconfiguredGenerator{}
	}
	return client
}
