package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Durable medium for the batch mirror and the simulated session.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	StorageKey    string `env:"STORAGE_KEY" envDefault:"chainwatch_batches"`
	DBPath        string `env:"DB_PATH" envDefault:"data/chainwatch.db"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	SeedPath      string `env:"SEED_PATH"`

	// Attachment blobs.
	BlobDriver  string `env:"BLOB_DRIVER" envDefault:"fs"`
	BlobDir     string `env:"BLOB_DIR" envDefault:"data/blobs"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`

	// Batch change events.
	EventsDriver  string `env:"EVENTS_DRIVER" envDefault:"log"`
	KafkaBroker   string `env:"KAFKA_BROKER"`
	KafkaTopic    string `env:"KAFKA_TOPIC" envDefault:"chainwatch.batches"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	RabbitMQQueue string `env:"RABBITMQ_QUEUE" envDefault:"chainwatch.batches"`

	// Language model service for the risk and route-summary prompts.
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMBaseURL string        `env:"LLM_BASE_URL"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.BlobDriver = strings.ToLower(strings.TrimSpace(c.BlobDriver))
	c.EventsDriver = strings.ToLower(strings.TrimSpace(c.EventsDriver))
}

// Validate checks driver names and the settings each driver requires.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.StorageKey) == "" {
		errs = append(errs, errors.New("STORAGE_KEY must not be empty"))
	}

	switch c.StorageDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite storage"))
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis storage"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.BlobDriver {
	case "fs":
		if strings.TrimSpace(c.BlobDir) == "" {
			errs = append(errs, errors.New("BLOB_DIR is required for fs blobs"))
		}
	case "s3":
		if strings.TrimSpace(c.S3Bucket) == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 blobs"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver))
	}

	switch c.EventsDriver {
	case "kafka":
		if strings.TrimSpace(c.KafkaBroker) == "" {
			errs = append(errs, errors.New("KAFKA_BROKER is required for kafka events"))
		}
	case "rabbitmq":
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for rabbitmq events"))
		}
	case "log", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver))
	}

	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}
