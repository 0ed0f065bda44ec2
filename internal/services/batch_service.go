package services

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/ports"
	"chainwatch/internal/store"
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	minTextLength       = 3
	registrationNote    = "Batch Registered"
	autoIDPrefix        = "BATCH"
	autoIDSuffixModulus = 1_000_000
)

type BatchServiceDeps struct {
	Store   *store.Store
	Blobs   ports.BlobStore
	Events  ports.EventPublisher
	Metrics *obs.Metrics
	Now     func() time.Time
}

// BatchService implements the batch lifecycle on top of the store.
type BatchService struct {
	store   *store.Store
	blobs   ports.BlobStore
	events  ports.EventPublisher
	metrics *obs.Metrics
	now     func() time.Time

	idMu     sync.Mutex
	reserved map[string]struct{}
}

func NewBatchService(deps BatchServiceDeps) *BatchService {
	s := &BatchService{
		store:   deps.Store,
		blobs:   deps.Blobs,
		events:  deps.Events,
		metrics: deps.Metrics,
		now:     deps.Now,

		reserved: make(map[string]struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type RegisterInput struct {
	BatchID                 string
	ProductName             string
	Origin                  string
	Destination             string
	InitialGPS              string
	TemperatureLimitCelsius float64
	Attachments             []AttachmentInput
}

func (in RegisterInput) validate() error {
	if id := strings.TrimSpace(in.BatchID); id != "" && len(id) < minTextLength {
		return domain.NewValidationError("batchId", "batch ID must be at least 3 characters")
	}
	fields := []struct{ name, value, label string }{
		{"productName", in.ProductName, "product name"},
		{"origin", in.Origin, "origin"},
		{"destination", in.Destination, "destination"},
	}
	for _, f := range fields {
		if len(strings.TrimSpace(f.value)) < minTextLength {
			return domain.NewValidationError(f.name, f.label+" must be at least 3 characters")
		}
	}
	if _, err := domain.ParseGPS(in.InitialGPS); err != nil {
		return &domain.ValidationError{Field: "initialGps", Message: err.Error(), Err: err}
	}
	return nil
}

// Register creates a batch in status Registered with a single registration
// checkpoint at its origin. A supplied batch id must not be in use.
func (s *BatchService) Register(ctx context.Context, in RegisterInput) (_ domain.Batch, err error) {
	defer obs.Time(ctx, "batch.register")(&err)
	defer func() { s.metrics.BatchOp("register", err) }()

	if err := in.validate(); err != nil {
		return domain.Batch{}, err
	}

	now := s.now().UTC()
	gps := strings.TrimSpace(in.InitialGPS)
	origin := strings.TrimSpace(in.Origin)

	id, err := s.reserveID(strings.TrimSpace(in.BatchID), now)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("register batch: %w", err)
	}
	defer s.releaseID(id)

	// Uploads run outside the store lock; the id is re-checked on insert.
	attachments, err := resolveAttachments(ctx, id, in.Attachments, s.blobs, s.metrics)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("register batch: %w", err)
	}

	created := domain.Batch{
		ID:                      id,
		ProductName:             strings.TrimSpace(in.ProductName),
		Origin:                  origin,
		Destination:             strings.TrimSpace(in.Destination),
		CurrentLocationGPS:      gps,
		TemperatureLimitCelsius: in.TemperatureLimitCelsius,
		Status:                  domain.StatusRegistered,
		CreationDate:            now,
		QRCodeURL:               store.QRCodeURL(id),
		Attachments:             attachments,
		Checkpoints: []domain.Checkpoint{{
			ID:             seedCheckpointID(now),
			LocationName:   origin,
			GPSCoordinates: gps,
			Timestamp:      now,
			HandlerRole:    domain.RoleManufacturer,
			Notes:          registrationNote,
		}},
		TemperatureLogs: []domain.TemperatureLog{},
		Version:         1,
	}
	created.Normalize()

	_, err = s.store.Mutate(ctx, func(batches []domain.Batch) ([]domain.Batch, error) {
		if indexOf(batches, id) >= 0 {
			return nil, duplicateIDError(id)
		}
		return append(batches, created.Clone()), nil
	})
	if err != nil {
		releaseBlobs(context.WithoutCancel(ctx), id, created.OwnedBlobKeys(), s.blobs, s.metrics)
		return domain.Batch{}, fmt.Errorf("register batch: %w", err)
	}

	s.publish(ctx, ports.BatchRegistered, created.ID, created.Version)
	return created.Clone(), nil
}

func duplicateIDError(id string) error {
	return &domain.ValidationError{
		Field:   "batchId",
		Message: fmt.Sprintf("batch %q already exists", id),
		Err:     domain.ErrDuplicateBatchID,
	}
}

// reserveID claims id, or an auto id when id is empty, against the stored
// collection and registrations still in flight.
func (s *BatchService) reserveID(id string, now time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	taken := make(map[string]struct{}, len(s.reserved))
	for r := range s.reserved {
		taken[r] = struct{}{}
	}
	for _, stored := range s.store.IDs() {
		taken[stored] = struct{}{}
	}

	if id == "" {
		id = autoBatchID(now, taken)
	} else if _, dup := taken[id]; dup {
		return "", duplicateIDError(id)
	}
	s.reserved[id] = struct{}{}
	return id, nil
}

func (s *BatchService) releaseID(id string) {
	s.idMu.Lock()
	delete(s.reserved, id)
	s.idMu.Unlock()
}

// autoBatchID derives BATCH + the last six digits of the Unix milliseconds,
// stepping the suffix until it is free.
func autoBatchID(now time.Time, taken map[string]struct{}) string {
	suffix := now.UnixMilli() % autoIDSuffixModulus
	for i := 0; i < autoIDSuffixModulus; i++ {
		id := fmt.Sprintf("%s%06d", autoIDPrefix, suffix)
		if _, ok := taken[id]; !ok {
			return id
		}
		suffix = (suffix + 1) % autoIDSuffixModulus
	}
	return autoIDPrefix + uuid.NewString()
}

func seedCheckpointID(now time.Time) string {
	return fmt.Sprintf("CP%07d", now.UnixMilli()%10_000_000)
}

func (s *BatchService) Get(_ context.Context, id string) (domain.Batch, error) {
	b, ok := s.store.Get(strings.TrimSpace(id))
	if !ok {
		return domain.Batch{}, domain.ErrBatchNotFound
	}
	return b, nil
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status domain.Status
	// Query matches a case-insensitive substring of the id or product name.
	Query string
}

func (s *BatchService) List(_ context.Context, f ListFilter) []domain.Batch {
	all := s.store.List()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if f.Status == "" && q == "" {
		return all
	}

	out := make([]domain.Batch, 0, len(all))
	for _, b := range all {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(b.ID), q) &&
			!strings.Contains(strings.ToLower(b.ProductName), q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Snapshot exposes the collection with its version for derived views.
func (s *BatchService) Snapshot() ([]domain.Batch, uint64) {
	return s.store.Snapshot()
}

// Update replaces the stored batch with the same id. The id, temperature
// limit and creation date keep their stored values. Writing a value equal to
// the stored one changes nothing.
func (s *BatchService) Update(ctx context.Context, b domain.Batch) (domain.Batch, error) {
	return s.update(ctx, "update", b, nil)
}

// UpdateIfVersion is Update guarded by the caller's last seen version.
func (s *BatchService) UpdateIfVersion(ctx context.Context, b domain.Batch, version int64) (domain.Batch, error) {
	return s.update(ctx, "update_if_version", b, &version)
}

func (s *BatchService) update(ctx context.Context, op string, in domain.Batch, expected *int64) (_ domain.Batch, err error) {
	defer obs.Time(ctx, "batch."+op)(&err)
	defer func() { s.metrics.BatchOp(op, err) }()

	if in.Status != "" && !in.Status.Valid() {
		st, perr := domain.ParseStatus(string(in.Status))
		if perr != nil {
			return domain.Batch{}, perr
		}
		in.Status = st
	}

	id := strings.TrimSpace(in.ID)
	return s.modify(ctx, op, id, expected, func(current *domain.Batch) error {
		next := in.Clone()
		next.ID = current.ID
		next.TemperatureLimitCelsius = current.TemperatureLimitCelsius
		next.CreationDate = current.CreationDate
		if next.Status == "" {
			next.Status = current.Status
		}

		owned := make(map[string]struct{})
		for _, k := range current.OwnedBlobKeys() {
			owned[k] = struct{}{}
		}
		for _, a := range next.Attachments {
			if _, ok := owned[a.BlobKey]; a.Owned() && !ok {
				return domain.NewValidationError("attachments", fmt.Sprintf("attachment %q references an unknown blob", a.Name))
			}
		}

		if err := store.CheckBatch(next); err != nil {
			return err
		}

		*current = next
		return nil
	})
}

// modify applies fn to the stored batch id under the store lock. The version
// is bumped only when fn changed something. Blobs the batch stops owning are
// released before the new collection is installed.
func (s *BatchService) modify(ctx context.Context, op, id string, expected *int64, fn func(*domain.Batch) error) (domain.Batch, error) {
	var result domain.Batch
	changed := false

	_, err := s.store.Mutate(ctx, func(batches []domain.Batch) ([]domain.Batch, error) {
		i := indexOf(batches, id)
		if i < 0 {
			return nil, domain.ErrBatchNotFound
		}
		before := batches[i]
		if expected != nil && before.Version != *expected {
			return nil, fmt.Errorf("batch %q at version %d, not %d: %w", id, before.Version, *expected, domain.ErrStaleVersion)
		}

		next := before.Clone()
		if err := fn(&next); err != nil {
			return nil, err
		}
		next.Version = before.Version
		next.Normalize()

		if reflect.DeepEqual(next, before) {
			result = before
			return batches, nil
		}

		next.Version = before.Version + 1
		releaseBlobs(ctx, id, droppedKeys(before, next), s.blobs, s.metrics)

		batches[i] = next
		result = next
		changed = true
		return batches, nil
	})
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%s batch: %w", op, err)
	}

	if changed {
		s.publish(ctx, ports.BatchUpdated, result.ID, result.Version)
	}
	return result.Clone(), nil
}

// Delete removes the batch and releases every blob it owns.
func (s *BatchService) Delete(ctx context.Context, id string) (err error) {
	defer obs.Time(ctx, "batch.delete")(&err)
	defer func() { s.metrics.BatchOp("delete", err) }()

	id = strings.TrimSpace(id)
	var removed domain.Batch

	_, err = s.store.Mutate(ctx, func(batches []domain.Batch) ([]domain.Batch, error) {
		i := indexOf(batches, id)
		if i < 0 {
			return nil, domain.ErrBatchNotFound
		}
		removed = batches[i]

		releaseBlobs(ctx, id, removed.OwnedBlobKeys(), s.blobs, s.metrics)

		return append(batches[:i], batches[i+1:]...), nil
	})
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}

	s.publish(ctx, ports.BatchDeleted, removed.ID, removed.Version)
	return nil
}

type CheckpointInput struct {
	LocationName       string
	GPSCoordinates     string
	Timestamp          time.Time // zero means now
	TemperatureCelsius *float64
	Notes              string
	HandlerRole        domain.Role
}

// AppendCheckpoint records a custody event and moves the batch's current
// location to the checkpoint's coordinates.
func (s *BatchService) AppendCheckpoint(ctx context.Context, id string, in CheckpointInput) (_ domain.Batch, err error) {
	defer obs.Time(ctx, "batch.append_checkpoint")(&err)
	defer func() { s.metrics.BatchOp("append_checkpoint", err) }()

	if strings.TrimSpace(in.LocationName) == "" {
		return domain.Batch{}, domain.NewValidationError("locationName", "location name is required")
	}
	if _, err := domain.ParseGPS(in.GPSCoordinates); err != nil {
		return domain.Batch{}, &domain.ValidationError{Field: "gpsCoordinates", Message: err.Error(), Err: err}
	}
	if !in.HandlerRole.Valid() {
		return domain.Batch{}, domain.NewValidationError("handlerRole", fmt.Sprintf("unknown role %q", in.HandlerRole))
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	cp := domain.Checkpoint{
		ID:                 "CP-" + uuid.NewString(),
		LocationName:       strings.TrimSpace(in.LocationName),
		GPSCoordinates:     strings.TrimSpace(in.GPSCoordinates),
		Timestamp:          ts,
		TemperatureCelsius: in.TemperatureCelsius,
		Notes:              strings.TrimSpace(in.Notes),
		HandlerRole:        in.HandlerRole,
	}

	return s.modify(ctx, "append_checkpoint", strings.TrimSpace(id), nil, func(b *domain.Batch) error {
		b.Checkpoints = append(b.Checkpoints, cp)
		b.CurrentLocationGPS = cp.GPSCoordinates
		return nil
	})
}

type TemperatureLogInput struct {
	Timestamp          time.Time // zero means now
	TemperatureCelsius float64
	LocationGPS        string
}

func (s *BatchService) AppendTemperatureLog(ctx context.Context, id string, in TemperatureLogInput) (_ domain.Batch, err error) {
	defer obs.Time(ctx, "batch.append_temperature_log")(&err)
	defer func() { s.metrics.BatchOp("append_temperature_log", err) }()

	gps := strings.TrimSpace(in.LocationGPS)
	if gps != "" {
		if _, err := domain.ParseGPS(gps); err != nil {
			return domain.Batch{}, &domain.ValidationError{Field: "locationGps", Message: err.Error(), Err: err}
		}
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	return s.modify(ctx, "append_temperature_log", strings.TrimSpace(id), nil, func(b *domain.Batch) error {
		b.TemperatureLogs = append(b.TemperatureLogs, domain.TemperatureLog{
			Timestamp:          ts,
			TemperatureCelsius: in.TemperatureCelsius,
			LocationGPS:        gps,
		})
		return nil
	})
}

// SetStatus assigns a status label. Any label may follow any other.
func (s *BatchService) SetStatus(ctx context.Context, id string, status string) (_ domain.Batch, err error) {
	defer obs.Time(ctx, "batch.set_status")(&err)
	defer func() { s.metrics.BatchOp("set_status", err) }()

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Batch{}, err
	}

	return s.modify(ctx, "set_status", strings.TrimSpace(id), nil, func(b *domain.Batch) error {
		b.Status = st
		return nil
	})
}

func (s *BatchService) publish(ctx context.Context, typ ports.BatchEventType, id string, version int64) {
	if s.events == nil {
		return
	}
	ev := ports.BatchEvent{Type: typ, BatchID: id, Version: version, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Printf("req_id=%s op=events.publish type=%s batch_id=%s err=%v", obs.RequestID(ctx), typ, id, err)
	}
}

func indexOf(batches []domain.Batch, id string) int {
	for i, b := range batches {
		if b.ID == id {
			return i
		}
	}
	return -1
}
