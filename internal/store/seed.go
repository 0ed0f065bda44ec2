package store

import (
	"chainwatch/internal/domain"
	"fmt"
	"os"
	"time"
)

// LoadSeedFile reads a seed collection from a JSON file. The file may hold a
// persisted record or a bare array of batches.
func LoadSeedFile(path string) ([]domain.Batch, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed: read %q: %w", path, err)
	}

	batches, err := DecodeRecord(string(bytes))
	if err != nil {
		return nil, fmt.Errorf("load seed %q: %w", path, err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("load seed %q: no batches", path)
	}

	return batches, nil
}

// SeedFunc builds the collection written to an empty medium.
type SeedFunc func(now time.Time) []domain.Batch

// FileSeed returns a SeedFunc serving the batches in path, falling back to
// the built-in sample when the file cannot be used.
func FileSeed(path string, logf func(format string, args ...any)) SeedFunc {
	batches, err := LoadSeedFile(path)
	if err != nil {
		if logf != nil {
			logf("seed_file=%q err=%v fallback=sample", path, err)
		}
		return SampleBatches
	}
	return func(time.Time) []domain.Batch {
		return cloneAll(batches)
	}
}
