package store

import (
	"chainwatch/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion of the persisted record written by this build.
const SchemaVersion = 1

// record is the JSON document kept under the store key.
type record struct {
	SchemaVersion int            `json:"schemaVersion"`
	SavedAt       time.Time      `json:"savedAt"`
	Batches       []domain.Batch `json:"batches"`
}

// EncodeRecord serializes a collection into the persisted record format.
func EncodeRecord(batches []domain.Batch, savedAt time.Time) (string, error) {
	if batches == nil {
		batches = []domain.Batch{}
	}
	b, err := json.Marshal(record{
		SchemaVersion: SchemaVersion,
		SavedAt:       savedAt.UTC(),
		Batches:       batches,
	})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(b), nil
}

// DecodeRecord parses a persisted record. A bare JSON array of batches, the
// layout written before records were versioned, is accepted as well.
// Decoded batches are validated and normalized.
func DecodeRecord(raw string) ([]domain.Batch, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("decode record: empty value")
	}

	var batches []domain.Batch
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &batches); err != nil {
			return nil, fmt.Errorf("decode record: parse legacy array: %w", err)
		}
	} else {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record: parse json: %w", err)
		}
		if rec.SchemaVersion < 1 || rec.SchemaVersion > SchemaVersion {
			return nil, fmt.Errorf("decode record: unsupported schema version %d", rec.SchemaVersion)
		}
		batches = rec.Batches
	}

	if err := checkBatches(batches); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return batches, nil
}

// checkBatches validates and normalizes a loaded collection in place.
func checkBatches(batches []domain.Batch) error {
	seen := make(map[string]struct{}, len(batches))
	for i := range batches {
		b := &batches[i]

		b.ID = strings.TrimSpace(b.ID)
		if b.ID == "" {
			return fmt.Errorf("batch at index %d: id cannot be empty", i+1)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("batch %q: %w", b.ID, domain.ErrDuplicateBatchID)
		}
		seen[b.ID] = struct{}{}

		if !b.Status.Valid() {
			st, err := domain.ParseStatus(string(b.Status))
			if err != nil {
				return fmt.Errorf("batch %q: %w", b.ID, err)
			}
			b.Status = st
		}
		if b.Version < 1 {
			b.Version = 1
		}
		if err := CheckBatch(*b); err != nil {
			return fmt.Errorf("batch %q: %w", b.ID, err)
		}
		b.Normalize()
	}
	return nil
}

// CheckBatch reports the first field of b that a stored batch may not hold:
// blank required text, an unknown status or handler role, malformed GPS, or
// no checkpoints at all.
func CheckBatch(b domain.Batch) error {
	required := []struct{ field, value string }{
		{"productName", b.ProductName},
		{"origin", b.Origin},
		{"destination", b.Destination},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return domain.NewValidationError(r.field, "cannot be empty")
		}
	}
	if !b.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", b.Status))
	}
	if _, err := domain.ParseGPS(b.CurrentLocationGPS); err != nil {
		return &domain.ValidationError{Field: "currentLocationGps", Message: err.Error(), Err: err}
	}

	if len(b.Checkpoints) == 0 {
		return domain.NewValidationError("checkpoints", "a batch needs at least one checkpoint")
	}
	for i, cp := range b.Checkpoints {
		if !cp.HandlerRole.Valid() {
			return domain.NewValidationError(fmt.Sprintf("checkpoints[%d].handlerRole", i), fmt.Sprintf("unknown role %q", cp.HandlerRole))
		}
		if _, err := domain.ParseGPS(cp.GPSCoordinates); err != nil {
			return &domain.ValidationError{Field: fmt.Sprintf("checkpoints[%d].gpsCoordinates", i), Message: err.Error(), Err: err}
		}
	}
	for i, l := range b.TemperatureLogs {
		if l.LocationGPS == "" {
			continue
		}
		if _, err := domain.ParseGPS(l.LocationGPS); err != nil {
			return &domain.ValidationError{Field: fmt.Sprintf("temperatureLogs[%d].locationGps", i), Message: err.Error(), Err: err}
		}
	}
	return nil
}
