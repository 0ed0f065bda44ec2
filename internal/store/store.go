package store

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/ports"
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const DefaultKey = "chainwatch_batches"

// Options configures a Store. Zero values select defaults.
type Options struct {
	// Key under which the record is kept in the medium.
	Key string
	// Seed builds the collection for an empty medium and for read fallbacks.
	Seed    SeedFunc
	Metrics *obs.Metrics
	Now     func() time.Time
}

// Change is delivered to subscribers after every stored mutation.
type Change struct {
	Version uint64
	Batches []domain.Batch
}

// Store holds the authoritative batch collection and mirrors it to a durable
// key-value medium. Mutations replace the whole collection under a
// single-writer lock and are then persisted; medium failures are logged and
// never reach callers.
type Store struct {
	medium  ports.KeyValueStore
	key     string
	seed    SeedFunc
	metrics *obs.Metrics
	now     func() time.Time

	writeMu sync.Mutex

	mu       sync.RWMutex
	batches  []domain.Batch
	index    map[string]int
	version  uint64
	degraded bool

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// Open builds a store over medium and loads the collection (seed-or-load).
// A nil medium yields a memory-only store holding the seed collection.
func Open(ctx context.Context, medium ports.KeyValueStore, opts Options) *Store {
	s := &Store{
		medium:  medium,
		key:     opts.Key,
		seed:    opts.Seed,
		metrics: opts.Metrics,
		now:     opts.Now,
		subs:    make(map[int]func(Change)),
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.seed == nil {
		s.seed = SampleBatches
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.Load(ctx)
	return s
}

// Load reads the collection from the medium and makes it current.
// An absent record is seeded and persisted; an unreadable one falls back to
// the seed collection without overwriting the medium.
func (s *Store) Load(ctx context.Context) []domain.Batch {
	batches, degraded := s.read(ctx)

	s.writeMu.Lock()
	s.mu.Lock()
	s.install(batches)
	s.degraded = degraded
	out := cloneAll(s.batches)
	s.mu.Unlock()
	s.writeMu.Unlock()

	return out
}

func (s *Store) read(ctx context.Context) ([]domain.Batch, bool) {
	if s.medium == nil {
		return s.seed(s.now()), true
	}

	raw, ok, err := s.medium.Get(ctx, s.key)
	if err != nil {
		s.storageFailure(ctx, "load", err)
		return s.seed(s.now()), true
	}

	if !ok {
		batches := s.seed(s.now())
		log.Printf("req_id=%s op=store.load key=%s seeded=%d", obs.RequestID(ctx), s.key, len(batches))
		return batches, !s.write(ctx, batches)
	}

	batches, err := DecodeRecord(raw)
	if err != nil {
		s.storageFailure(ctx, "load", err)
		return s.seed(s.now()), true
	}
	return batches, false
}

// Persist replaces the whole collection and writes it to the medium.
func (s *Store) Persist(ctx context.Context, batches []domain.Batch) error {
	_, err := s.Mutate(ctx, func([]domain.Batch) ([]domain.Batch, error) {
		return cloneAll(batches), nil
	})
	return err
}

// Mutate runs fn under the single-writer lock. fn receives a private copy of
// the collection and returns the new collection; an error leaves the store
// unchanged. The new collection must not repeat ids.
func (s *Store) Mutate(ctx context.Context, fn func(batches []domain.Batch) ([]domain.Batch, error)) (uint64, error) {
	s.writeMu.Lock()

	s.mu.RLock()
	working := cloneAll(s.batches)
	s.mu.RUnlock()

	next, err := fn(working)
	if err != nil {
		s.writeMu.Unlock()
		return 0, err
	}
	if err := checkUnique(next); err != nil {
		s.writeMu.Unlock()
		return 0, err
	}
	for i := range next {
		next[i].Normalize()
	}

	s.mu.Lock()
	s.install(next)
	version := s.version
	snapshot := cloneAll(s.batches)
	s.mu.Unlock()

	s.write(ctx, snapshot)
	s.writeMu.Unlock()

	s.notify(Change{Version: version, Batches: snapshot})
	return version, nil
}

// install makes batches current. Callers hold mu.
func (s *Store) install(batches []domain.Batch) {
	if batches == nil {
		batches = []domain.Batch{}
	}
	index := make(map[string]int, len(batches))
	for i, b := range batches {
		index[b.ID] = i
	}
	s.batches = batches
	s.index = index
	s.version++
}

// write mirrors batches to the medium and reports whether it succeeded.
// Failures are logged and swallowed.
func (s *Store) write(ctx context.Context, batches []domain.Batch) bool {
	if s.medium == nil {
		return false
	}

	var err error
	defer obs.Time(ctx, "store.persist")(&err)

	value, err := EncodeRecord(batches, s.now())
	if err != nil {
		s.storageFailure(ctx, "persist", err)
		return false
	}
	if err = s.medium.Set(ctx, s.key, value); err != nil {
		s.storageFailure(ctx, "persist", err)
		return false
	}

	s.mu.Lock()
	s.degraded = false
	s.mu.Unlock()
	return true
}

func (s *Store) storageFailure(ctx context.Context, op string, err error) {
	serr := &domain.StorageError{Op: op, Key: s.key, Err: err}
	log.Printf("req_id=%s op=store.%s err=%v", obs.RequestID(ctx), op, serr)
	s.metrics.StorageFailure(op)

	if op == "persist" {
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}
}

// List returns a copy of the collection in stored order.
func (s *Store) List() []domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.batches)
}

// Get returns a copy of the batch with id.
// IDs returns the ids currently stored, in collection order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.batches))
	for _, b := range s.batches {
		ids = append(ids, b.ID)
	}
	return ids
}

func (s *Store) Get(id string) (domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return domain.Batch{}, false
	}
	return s.batches[i].Clone(), true
}

// Snapshot returns the collection and the version it was read at.
func (s *Store) Snapshot() ([]domain.Batch, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.batches), s.version
}

// Version increases on every load and mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Degraded reports whether the collection is currently not backed by the medium.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Subscribe registers fn for change notifications and returns its cancel func.
// fn runs synchronously after each mutation and must not call Mutate.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Close flushes the current collection to the medium.
func (s *Store) Close(ctx context.Context) error {
	if s.medium == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	snapshot := cloneAll(s.batches)
	s.mu.RUnlock()

	value, err := EncodeRecord(snapshot, s.now())
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := s.medium.Set(ctx, s.key, value); err != nil {
		s.metrics.StorageFailure("flush")
		return fmt.Errorf("close store: flush: %w", &domain.StorageError{Op: "flush", Key: s.key, Err: err})
	}
	return nil
}

func checkUnique(batches []domain.Batch) error {
	seen := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("store: batch %q: %w", b.ID, domain.ErrDuplicateBatchID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}

func cloneAll(batches []domain.Batch) []domain.Batch {
	out := make([]domain.Batch, len(batches))
	for i, b := range batches {
		out[i] = b.Clone()
	}
	return out
}
