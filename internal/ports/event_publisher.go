package ports

import (
	"context"
	"time"
)

type BatchEventType string

const (
	BatchRegistered BatchEventType = "registered"
	BatchUpdated    BatchEventType = "updated"
	BatchDeleted    BatchEventType = "deleted"
)

// BatchEvent announces a stored change to a batch.
type BatchEvent struct {
	Type    BatchEventType `json:"type"`
	BatchID string         `json:"batchId"`
	Version int64          `json:"version"`
	At      time.Time      `json:"at"`
}

// Port: fan-out of batch change events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev BatchEvent) error
	Close() error
}
