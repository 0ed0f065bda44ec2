package blob

import (
	"bytes"
	"chainwatch/internal/ports"
	"context"
	"fmt"
	"io"
	"sync"
)

type memoryEntry struct {
	info ports.BlobInfo
	data []byte
}

// MemoryStore keeps blobs in process memory. Used for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objs    map[string]memoryEntry
	deletes map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objs:    make(map[string]memoryEntry),
		deletes: make(map[string]int),
	}
}

func (s *MemoryStore) Driver() string { return "memory" }

// Put stores a new blob; errors if key exists.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, contentType string) (ports.BlobInfo, error) {
	key, err := sanitizeKey(key)
	if err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob: %w", err)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: read: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return ports.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	info := ports.BlobInfo{Key: key, Size: int64(len(b)), ContentType: contentType, URL: "blob:memory/" + key}
	s.objs[key] = memoryEntry{info: info, data: b}
	return info, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (ports.BlobInfo, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return ports.BlobInfo{}, nil, fmt.Errorf("blob %s not found", key)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return obj.info, io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob returning true if it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[key]++
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

// DeleteCount reports how many times Delete was called for key.
func (s *MemoryStore) DeleteCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deletes[key]
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
