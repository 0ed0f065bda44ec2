package events

import (
	"chainwatch/internal/ports"
	"context"
	"log"
)

// LogPublisher writes events to the process log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev ports.BatchEvent) error {
	log.Printf("event=%s batch_id=%s version=%d", ev.Type, ev.BatchID, ev.Version)
	return nil
}

func (LogPublisher) Close() error { return nil }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ports.BatchEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
