package dto

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/views"
	"time"
)

type AttachmentRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type RegisterBatchRequest struct {
	BatchID                 string              `json:"batchId"`
	ProductName             string              `json:"productName"`
	Origin                  string              `json:"origin"`
	Destination             string              `json:"destination"`
	InitialGPS              string              `json:"initialGps"`
	TemperatureLimitCelsius *float64            `json:"temperatureLimitCelsius"`
	Attachments             []AttachmentRequest `json:"attachments"`
}

// UpdateBatchRequest accepts a full batch. The derived fields of
// BatchResponse are tolerated so clients can send back what they read.
type UpdateBatchRequest struct {
	domain.Batch
	Breached   *bool  `json:"breached,omitempty"`
	StatusIcon string `json:"statusIcon,omitempty"`
}

type CheckpointRequest struct {
	LocationName       string     `json:"locationName"`
	GPSCoordinates     string     `json:"gpsCoordinates"`
	Timestamp          *time.Time `json:"timestamp"`
	TemperatureCelsius *float64   `json:"temperatureCelsius"`
	Notes              string     `json:"notes"`
	HandlerRole        string     `json:"handlerRole"`
}

type TemperatureLogRequest struct {
	Timestamp          *time.Time `json:"timestamp"`
	TemperatureCelsius *float64   `json:"temperatureCelsius"`
	LocationGPS        string     `json:"locationGps"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type BatchResponse struct {
	domain.Batch
	Breached   bool       `json:"breached"`
	StatusIcon views.Icon `json:"statusIcon"`
}

func NewBatchResponse(b domain.Batch) BatchResponse {
	return BatchResponse{Batch: b, Breached: views.IsBreached(b), StatusIcon: views.IconForStatus(b.Status)}
}

type ListBatchesResponse struct {
	Batches []BatchResponse `json:"batches"`
	Count   int             `json:"count"`
}

type VerifyResponse struct {
	Batch    BatchResponse         `json:"batch"`
	Timeline []views.TimelineEntry `json:"timeline"`
}
