package ports

import "context"

// Port: a durable key-value medium holding string values.
// Implementations must replace a key's value atomically: readers see either
// the previous or the new value, never a partial write.
type KeyValueStore interface {
	// Return the value for key; ok is false when the key has never been set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Overwrite the value for key.
	Set(ctx context.Context, key string, value string) error
	// Remove key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
