package store

import (
	"chainwatch/internal/adapters/kv"
	"chainwatch/internal/domain"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// flakyKV wraps a MemoryKV and fails on demand.
type flakyKV struct {
	*kv.MemoryKV
	getErr error
	setErr error
	sets   int
}

func newFlakyKV() *flakyKV { return &flakyKV{MemoryKV: kv.NewMemoryKV()} }

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value string) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func newBatch(id string) domain.Batch {
	return domain.Batch{
		ID:                      id,
		ProductName:             "Vaccine X",
		Origin:                  "Berlin",
		Destination:             "Munich",
		CurrentLocationGPS:      "52.5200,13.4050",
		TemperatureLimitCelsius: 5,
		Status:                  domain.StatusRegistered,
		CreationDate:            fixedNow,
		Checkpoints: []domain.Checkpoint{
			{ID: "CP1", LocationName: "Berlin", GPSCoordinates: "52.5200,13.4050", Timestamp: fixedNow, HandlerRole: domain.RoleManufacturer, Notes: "Batch Registered"},
		},
		Version: 1,
	}
}

func appendBatch(b domain.Batch) func([]domain.Batch) ([]domain.Batch, error) {
	return func(batches []domain.Batch) ([]domain.Batch, error) {
		return append(batches, b), nil
	}
}

func TestOpenSeedsEmptyMedium(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryKV()

	s := Open(ctx, medium, Options{Now: clock})

	if got := len(s.List()); got != 3 {
		t.Fatalf("len(List()) = %d, want 3", got)
	}
	if s.Degraded() {
		t.Fatal("store should not be degraded after seeding")
	}

	raw, ok, err := medium.Get(ctx, DefaultKey)
	if err != nil || !ok {
		t.Fatalf("medium.Get() ok=%v err=%v, want seeded record", ok, err)
	}
	stored, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored batches = %d, want 3", len(stored))
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryKV()

	s := Open(ctx, medium, Options{Now: clock})
	if _, err := s.Mutate(ctx, appendBatch(newBatch("BATCH900"))); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	want := s.List()

	reopened := Open(ctx, medium, Options{Now: clock})
	got := reopened.List()

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reloaded collection differs\n got: %+v\nwant: %+v", got, want)
	}
}

func TestLoadFailureFallsBackToSample(t *testing.T) {
	ctx := context.Background()
	medium := newFlakyKV()
	medium.getErr = errors.New("medium unavailable")

	s := Open(ctx, medium, Options{Now: clock})

	if got := len(s.List()); got != 3 {
		t.Fatalf("len(List()) = %d, want 3 sample batches", got)
	}
	if !s.Degraded() {
		t.Fatal("store should be degraded after a failed load")
	}
	if medium.sets != 0 {
		t.Fatalf("medium written %d times on failed load, want 0", medium.sets)
	}
}

func TestCorruptRecordFallsBackToSample(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryKV()
	_ = medium.Set(ctx, DefaultKey, "{not json")

	s := Open(ctx, medium, Options{Now: clock})

	if _, ok := s.Get("BATCH001"); !ok {
		t.Fatal("expected sample batch BATCH001 after corrupt record")
	}
	raw, _, _ := medium.Get(ctx, DefaultKey)
	if raw != "{not json" {
		t.Fatalf("corrupt record overwritten on load: %q", raw)
	}
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	medium := newFlakyKV()
	s := Open(ctx, medium, Options{Now: clock})

	medium.setErr = errors.New("quota exceeded")
	if _, err := s.Mutate(ctx, appendBatch(newBatch("BATCH900"))); err != nil {
		t.Fatalf("Mutate returned storage error: %v", err)
	}

	if _, ok := s.Get("BATCH900"); !ok {
		t.Fatal("in-memory collection lost the new batch")
	}
	if !s.Degraded() {
		t.Fatal("store should report degraded after failed persist")
	}

	medium.setErr = nil
	if _, err := s.Mutate(ctx, func(b []domain.Batch) ([]domain.Batch, error) { return b, nil }); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if s.Degraded() {
		t.Fatal("store should recover once persist succeeds")
	}
}

func TestLegacyArrayIsUpgraded(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryKV()
	legacy := `[{"id":"OLD1","productName":"Serum","origin":"Bonn","destination":"Kiel",
		"currentLocationGps":"50.7,7.1","temperatureLimitCelsius":4,"status":"InTransit",
		"creationDate":"2024-01-02T03:04:05Z","attachments":[],"temperatureLogs":[],
		"checkpoints":[{"id":"CP9","locationName":"Bonn","gpsCoordinates":"50.7,7.1","timestamp":"2024-01-02T03:04:05Z","handlerRole":"Manufacturer"}]}]`
	_ = medium.Set(ctx, DefaultKey, legacy)

	s := Open(ctx, medium, Options{Now: clock})

	b, ok := s.Get("OLD1")
	if !ok {
		t.Fatal("legacy batch not loaded")
	}
	if b.Status != domain.StatusInTransit {
		t.Fatalf("Status = %q, want %q", b.Status, domain.StatusInTransit)
	}
	if b.Version != 1 {
		t.Fatalf("Version = %d, want 1", b.Version)
	}

	if _, err := s.Mutate(ctx, func(b []domain.Batch) ([]domain.Batch, error) { return b, nil }); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	raw, _, _ := medium.Get(ctx, DefaultKey)
	if !strings.HasPrefix(raw, `{"schemaVersion":1`) {
		t.Fatalf("record not upgraded: %.40s", raw)
	}
}

func TestDecodeRecordRejectsFutureSchema(t *testing.T) {
	if _, err := DecodeRecord(`{"schemaVersion":2,"batches":[]}`); err == nil {
		t.Fatal("expected error for unsupported schema version")
	}
}

func TestMutateRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kv.NewMemoryKV(), Options{Now: clock})
	before := s.Version()

	_, err := s.Mutate(ctx, appendBatch(newBatch("BATCH001")))
	if !errors.Is(err, domain.ErrDuplicateBatchID) {
		t.Fatalf("err = %v, want ErrDuplicateBatchID", err)
	}
	if s.Version() != before || len(s.List()) != 3 {
		t.Fatal("collection changed after rejected mutation")
	}
}

func TestMutateErrorLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kv.NewMemoryKV(), Options{Now: clock})
	boom := errors.New("boom")

	_, err := s.Mutate(ctx, func(b []domain.Batch) ([]domain.Batch, error) {
		b[0].ProductName = "changed"
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, _ := s.Get("BATCH001")
	if got.ProductName != "PharmaX Vaccine" {
		t.Fatalf("ProductName = %q, want unchanged", got.ProductName)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := Open(context.Background(), kv.NewMemoryKV(), Options{Now: clock})

	b, _ := s.Get("BATCH001")
	b.Checkpoints[0].LocationName = "tampered"
	list := s.List()
	list[0].ProductName = "tampered"

	again, _ := s.Get("BATCH001")
	if again.Checkpoints[0].LocationName == "tampered" || again.ProductName == "tampered" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMutateSortsChildrenByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kv.NewMemoryKV(), Options{Now: clock})

	b := newBatch("BATCH900")
	b.TemperatureLogs = []domain.TemperatureLog{
		{Timestamp: fixedNow.Add(2 * time.Hour), TemperatureCelsius: 2},
		{Timestamp: fixedNow.Add(time.Hour), TemperatureCelsius: 1},
	}
	if _, err := s.Mutate(ctx, appendBatch(b)); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	got, _ := s.Get("BATCH900")
	if got.TemperatureLogs[0].TemperatureCelsius != 1 {
		t.Fatalf("logs not chronological: %+v", got.TemperatureLogs)
	}
}

func TestSubscribeReceivesNewCollections(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kv.NewMemoryKV(), Options{Now: clock})

	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })

	if _, err := s.Mutate(ctx, appendBatch(newBatch("BATCH900"))); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if _, err := s.Mutate(ctx, appendBatch(newBatch("BATCH901"))); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	cancel()
	cancel()
	if _, err := s.Mutate(ctx, appendBatch(newBatch("BATCH902"))); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(changes))
	}
	if changes[1].Version <= changes[0].Version {
		t.Fatalf("versions not increasing: %d then %d", changes[0].Version, changes[1].Version)
	}
	if len(changes[0].Batches) != 4 || len(changes[1].Batches) != 5 {
		t.Fatalf("collection sizes = %d, %d; want 4, 5", len(changes[0].Batches), len(changes[1].Batches))
	}
	if &changes[0].Batches[0] == &changes[1].Batches[0] {
		t.Fatal("subscribers received the same slice twice")
	}
}

func TestCloseFlushes(t *testing.T) {
	ctx := context.Background()
	medium := newFlakyKV()
	s := Open(ctx, medium, Options{Now: clock})

	medium.setErr = errors.New("offline")
	_, _ = s.Mutate(ctx, appendBatch(newBatch("BATCH900")))

	if err := s.Close(ctx); err == nil {
		t.Fatal("Close should report a failed flush")
	}

	medium.setErr = nil
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	raw, _, _ := medium.Get(ctx, DefaultKey)
	batches, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if len(batches) != 4 {
		t.Fatalf("flushed batches = %d, want 4", len(batches))
	}
}

func TestNilMediumIsMemoryOnly(t *testing.T) {
	s := Open(context.Background(), nil, Options{Now: clock})
	if len(s.List()) != 3 {
		t.Fatal("expected sample collection")
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "seed.json")
	content := `[{"id":"S1","productName":"Insulin","origin":"Graz","destination":"Linz","status":"Registered",
		"currentLocationGps":"47.0707,15.4395","temperatureLimitCelsius":8,"creationDate":"2025-05-01T00:00:00Z",
		"checkpoints":[{"id":"CP1","locationName":"Graz","gpsCoordinates":"47.0707,15.4395","timestamp":"2025-05-01T00:00:00Z","handlerRole":"Manufacturer"}]}]`
	if err := os.WriteFile(good, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	batches, err := LoadSeedFile(good)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(batches) != 1 || batches[0].ID != "S1" || batches[0].Checkpoints == nil {
		t.Fatalf("batches = %+v", batches)
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte(`[{"id":""}]`), 0o644)
	if _, err := LoadSeedFile(bad); err == nil {
		t.Fatal("expected error for batch without id")
	}

	var logged string
	seed := FileSeed(filepath.Join(dir, "missing.json"), func(format string, args ...any) { logged = format })
	if got := seed(fixedNow); len(got) != 3 {
		t.Fatalf("fallback seed = %d batches, want 3", len(got))
	}
	if logged == "" {
		t.Fatal("expected fallback to be logged")
	}

	s := Open(context.Background(), kv.NewMemoryKV(), Options{Seed: FileSeed(good, nil), Now: clock})
	if _, ok := s.Get("S1"); !ok {
		t.Fatal("store not seeded from file")
	}
}

func TestQRCodeURL(t *testing.T) {
	got := QRCodeURL("BATCH123456789")
	want := "https://placehold.co/150x150.png/E0E0E0/B0B0B0?text=QR+BATCH12345"
	if got != want {
		t.Fatalf("QRCodeURL = %q, want %q", got, want)
	}
}

func TestDecodeRecordRejectsInvalidBatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Batch)
		field  string
	}{
		{"no checkpoints", func(b *domain.Batch) { b.Checkpoints = nil }, "checkpoints"},
		{"unknown role", func(b *domain.Batch) { b.Checkpoints[0].HandlerRole = "Pirate" }, "checkpoints[0].handlerRole"},
		{"bad checkpoint gps", func(b *domain.Batch) { b.Checkpoints[0].GPSCoordinates = "Berlin" }, "checkpoints[0].gpsCoordinates"},
		{"bad current gps", func(b *domain.Batch) { b.CurrentLocationGPS = "not-a-gps" }, "currentLocationGps"},
		{"blank product", func(b *domain.Batch) { b.ProductName = "  " }, "productName"},
		{"bad log gps", func(b *domain.Batch) {
			b.TemperatureLogs = []domain.TemperatureLog{{Timestamp: fixedNow, TemperatureCelsius: 3, LocationGPS: "x"}}
		}, "temperatureLogs[0].locationGps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBatch("BAD1")
			tt.mutate(&b)

			if err := CheckBatch(b); err == nil {
				t.Fatal("CheckBatch accepted an invalid batch")
			} else {
				var verr *domain.ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.field {
					t.Fatalf("err = %v, want validation error on %s", err, tt.field)
				}
			}

			raw, err := EncodeRecord([]domain.Batch{b}, fixedNow)
			if err != nil {
				t.Fatalf("EncodeRecord: %v", err)
			}
			if _, err := DecodeRecord(raw); err == nil {
				t.Fatal("DecodeRecord accepted an invalid batch")
			}
		})
	}
}

func TestLoadFallsBackOnBatchWithoutCheckpoints(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryKV()

	b := newBatch("EMPTY1")
	b.Checkpoints = []domain.Checkpoint{}
	raw, _ := EncodeRecord([]domain.Batch{b}, fixedNow)
	_ = medium.Set(ctx, DefaultKey, raw)

	s := Open(ctx, medium, Options{Now: clock})

	if _, ok := s.Get("EMPTY1"); ok {
		t.Fatal("batch without checkpoints was loaded")
	}
	if got := len(s.List()); got != 3 {
		t.Fatalf("len(List()) = %d, want sample fallback of 3", got)
	}
	if stored, _, _ := medium.Get(ctx, DefaultKey); stored != raw {
		t.Fatal("invalid record was overwritten")
	}
}

func TestCheckBatchAcceptsSample(t *testing.T) {
	for _, b := range SampleBatches(fixedNow) {
		if err := CheckBatch(b); err != nil {
			t.Fatalf("sample %s: %v", b.ID, err)
		}
	}
}
