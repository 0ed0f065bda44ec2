package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is a display label for where a batch is in its journey.
// Only Registered is assigned automatically; every other label is set by callers.
type Status string

const (
	StatusRegistered        Status = "Registered"
	StatusInTransit         Status = "In Transit"
	StatusCheckpointReached Status = "CheckpointReached"
	StatusDelivered         Status = "Delivered"
	StatusIssue             Status = "Issue"
)

// Statuses lists every status label in lifecycle order.
var Statuses = []Status{StatusRegistered, StatusInTransit, StatusCheckpointReached, StatusDelivered, StatusIssue}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts the stored label or its space-free form ("InTransit").
func ParseStatus(s string) (Status, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	for _, known := range Statuses {
		if strings.EqualFold(compact, strings.ReplaceAll(string(known), " ", "")) {
			return known, nil
		}
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s), Err: ErrInvalidStatus}
}

type AttachmentType string

const (
	AttachmentBill    AttachmentType = "bill"
	AttachmentInvoice AttachmentType = "invoice"
	AttachmentImage   AttachmentType = "image"
	AttachmentOther   AttachmentType = "other"
)

func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentBill, AttachmentInvoice, AttachmentImage, AttachmentOther:
		return true
	}
	return false
}

// FileAttachment describes a document or image attached to a batch.
// BlobKey is set when the batch owns the underlying bytes in blob storage;
// such attachments must be released when the batch drops them.
type FileAttachment struct {
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Type    AttachmentType `json:"type"`
	BlobKey string         `json:"blobKey,omitempty"`
}

// Owned reports whether the attachment holds a blob reference the batch must release.
func (a FileAttachment) Owned() bool { return a.BlobKey != "" }

// Checkpoint is one recorded event in a batch's custody chain.
type Checkpoint struct {
	ID                 string    `json:"id"`
	LocationName       string    `json:"locationName"`
	GPSCoordinates     string    `json:"gpsCoordinates"`
	Timestamp          time.Time `json:"timestamp"`
	TemperatureCelsius *float64  `json:"temperatureCelsius,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	HandlerRole        Role      `json:"handlerRole"`
}

// TemperatureLog is a timestamped temperature sample used for trend charts.
type TemperatureLog struct {
	Timestamp          time.Time `json:"timestamp"`
	TemperatureCelsius float64   `json:"temperatureCelsius"`
	LocationGPS        string    `json:"locationGps,omitempty"`
}

// Batch is the unit of tracked cargo.
// ID, TemperatureLimitCelsius and CreationDate are fixed at registration.
// Version counts stored changes and is used for conditional updates.
type Batch struct {
	ID                      string           `json:"id"`
	ProductName             string           `json:"productName"`
	Origin                  string           `json:"origin"`
	Destination             string           `json:"destination"`
	CurrentLocationGPS      string           `json:"currentLocationGps"`
	TemperatureLimitCelsius float64          `json:"temperatureLimitCelsius"`
	Status                  Status           `json:"status"`
	CreationDate            time.Time        `json:"creationDate"`
	QRCodeURL               string           `json:"qrCodeUrl,omitempty"`
	Attachments             []FileAttachment `json:"attachments"`
	Checkpoints             []Checkpoint     `json:"checkpoints"`
	TemperatureLogs         []TemperatureLog `json:"temperatureLogs"`
	Version                 int64            `json:"version"`
}

// Clone returns a deep copy so callers cannot reach into stored state.
func (b Batch) Clone() Batch {
	out := b
	out.Attachments = append([]FileAttachment(nil), b.Attachments...)
	out.TemperatureLogs = append([]TemperatureLog(nil), b.TemperatureLogs...)
	out.Checkpoints = make([]Checkpoint, len(b.Checkpoints))
	for i, cp := range b.Checkpoints {
		if cp.TemperatureCelsius != nil {
			t := *cp.TemperatureCelsius
			cp.TemperatureCelsius = &t
		}
		out.Checkpoints[i] = cp
	}
	if out.Attachments == nil {
		out.Attachments = []FileAttachment{}
	}
	if out.TemperatureLogs == nil {
		out.TemperatureLogs = []TemperatureLog{}
	}
	return out
}

// Normalize puts a batch in its canonical stored form: non-nil child slices,
// UTC timestamps, and checkpoints and temperature logs in chronological order.
// Sorting is stable so readings with equal timestamps keep insertion order.
func (b *Batch) Normalize() {
	b.CreationDate = b.CreationDate.UTC().Round(0)

	if b.Attachments == nil {
		b.Attachments = []FileAttachment{}
	}
	if b.Checkpoints == nil {
		b.Checkpoints = []Checkpoint{}
	}
	if b.TemperatureLogs == nil {
		b.TemperatureLogs = []TemperatureLog{}
	}

	for i := range b.Checkpoints {
		b.Checkpoints[i].Timestamp = b.Checkpoints[i].Timestamp.UTC().Round(0)
	}
	for i := range b.TemperatureLogs {
		b.TemperatureLogs[i].Timestamp = b.TemperatureLogs[i].Timestamp.UTC().Round(0)
	}

	sort.SliceStable(b.Checkpoints, func(i, j int) bool {
		return b.Checkpoints[i].Timestamp.Before(b.Checkpoints[j].Timestamp)
	})
	sort.SliceStable(b.TemperatureLogs, func(i, j int) bool {
		return b.TemperatureLogs[i].Timestamp.Before(b.TemperatureLogs[j].Timestamp)
	})
}

// OwnedBlobKeys returns the distinct blob keys held by the batch's attachments.
func (b Batch) OwnedBlobKeys() []string {
	seen := make(map[string]struct{}, len(b.Attachments))
	keys := make([]string, 0, len(b.Attachments))
	for _, a := range b.Attachments {
		if !a.Owned() {
			continue
		}
		if _, ok := seen[a.BlobKey]; ok {
			continue
		}
		seen[a.BlobKey] = struct{}{}
		keys = append(keys, a.BlobKey)
	}
	return keys
}

// FirstCheckpoint returns the registration checkpoint, if any.
func (b Batch) FirstCheckpoint() (Checkpoint, bool) {
	if len(b.Checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return b.Checkpoints[0], true
}

// HandledBy reports whether any checkpoint was recorded by the given role.
func (b Batch) HandledBy(role Role) bool {
	for _, cp := range b.Checkpoints {
		if cp.HandlerRole == role {
			return true
		}
	}
	return false
}
