package handlers

import (
	"chainwatch/internal/api/dto"
	"chainwatch/internal/domain"
	"chainwatch/internal/services"
	"chainwatch/internal/views"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultMaxUpload = 32 << 20
	multipartMemory  = 8 << 20

	minTemperatureLimit = -100
	maxTemperatureLimit = 100
)

// BatchHandler exposes batch registration, lookup and lifecycle endpoints.
type BatchHandler struct {
	Batches        *services.BatchService
	MaxUploadBytes int64
}

// Collection serves /batches.
func (h *BatchHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.register(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// Item serves /batches/{id}.
func (h *BatchHandler) Item(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *BatchHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := services.ListFilter{Query: q.Get("q")}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			writeFieldError(w, r, "status", err.Error())
			return
		}
		filter.Status = st
	}

	batches := h.Batches.List(r.Context(), filter)
	res := dto.ListBatchesResponse{Batches: make([]dto.BatchResponse, 0, len(batches)), Count: len(batches)}
	for _, b := range batches {
		res.Batches = append(res.Batches, dto.NewBatchResponse(b))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *BatchHandler) register(w http.ResponseWriter, r *http.Request) {
	var (
		in services.RegisterInput
		ok bool
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, ok = h.registerInputFromMultipart(w, r)
	} else {
		in, ok = registerInputFromJSON(w, r)
	}
	if !ok {
		return
	}

	b, err := h.Batches.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "register batch", err)
		return
	}

	w.Header().Set("Location", "/batches/"+b.ID)
	setETag(w, b)
	writeJSON(w, r, http.StatusCreated, dto.NewBatchResponse(b))
}

func registerInputFromJSON(w http.ResponseWriter, r *http.Request) (services.RegisterInput, bool) {
	var req dto.RegisterBatchRequest
	if !decodeJSON(w, r, &req) {
		return services.RegisterInput{}, false
	}
	if !checkTemperatureLimit(w, r, req.TemperatureLimitCelsius) {
		return services.RegisterInput{}, false
	}

	in := services.RegisterInput{
		BatchID:                 req.BatchID,
		ProductName:             req.ProductName,
		Origin:                  req.Origin,
		Destination:             req.Destination,
		InitialGPS:              req.InitialGPS,
		TemperatureLimitCelsius: *req.TemperatureLimitCelsius,
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, services.PreShaped{Attachment: domain.FileAttachment{
			Name: a.Name,
			URL:  a.URL,
			Type: domain.AttachmentType(strings.ToLower(strings.TrimSpace(a.Type))),
		}})
	}
	return in, true
}

func (h *BatchHandler) registerInputFromMultipart(w http.ResponseWriter, r *http.Request) (services.RegisterInput, bool) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart body")
		return services.RegisterInput{}, false
	}
	defer r.MultipartForm.RemoveAll()

	var tempLimit *float64
	if raw := strings.TrimSpace(r.FormValue("temperatureLimitCelsius")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeFieldError(w, r, "temperatureLimitCelsius", "temperature limit must be a number")
			return services.RegisterInput{}, false
		}
		tempLimit = &v
	}
	if !checkTemperatureLimit(w, r, tempLimit) {
		return services.RegisterInput{}, false
	}

	in := services.RegisterInput{
		BatchID:                 r.FormValue("batchId"),
		ProductName:             r.FormValue("productName"),
		Origin:                  r.FormValue("origin"),
		Destination:             r.FormValue("destination"),
		InitialGPS:              r.FormValue("initialGps"),
		TemperatureLimitCelsius: *tempLimit,
	}

	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return services.RegisterInput{}, false
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return services.RegisterInput{}, false
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(content)
		}
		in.Attachments = append(in.Attachments, services.RawFile{Name: fh.Filename, MIMEType: mimeType, Content: content})
	}

	return in, true
}

func checkTemperatureLimit(w http.ResponseWriter, r *http.Request, v *float64) bool {
	if v == nil {
		writeFieldError(w, r, "temperatureLimitCelsius", "temperature limit is required")
		return false
	}
	if *v < minTemperatureLimit || *v > maxTemperatureLimit {
		writeFieldError(w, r, "temperatureLimitCelsius", fmt.Sprintf("temperature limit must be between %d and %d", minTemperatureLimit, maxTemperatureLimit))
		return false
	}
	return true
}

func (h *BatchHandler) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.Batches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "get batch", err)
		return
	}

	setETag(w, b)
	writeJSON(w, r, http.StatusOK, dto.NewBatchResponse(b))
}

func (h *BatchHandler) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req dto.UpdateBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID != "" && req.ID != id {
		writeFieldError(w, r, "id", "batch id in body does not match path")
		return
	}
	req.ID = id

	var (
		b   domain.Batch
		err error
	)
	if match := r.Header.Get("If-Match"); match != "" {
		version, perr := parseETag(match)
		if perr != nil {
			writeError(w, r, http.StatusBadRequest, "If-Match must be a batch version")
			return
		}
		b, err = h.Batches.UpdateIfVersion(r.Context(), req.Batch, version)
	} else {
		b, err = h.Batches.Update(r.Context(), req.Batch)
	}
	if err != nil {
		writeServiceError(w, r, "update batch", err)
		return
	}

	setETag(w, b)
	writeJSON(w, r, http.StatusOK, dto.NewBatchResponse(b))
}

func (h *BatchHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Batches.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkpoints serves POST /batches/{id}/checkpoints.
func (h *BatchHandler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.CheckpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.HandlerRole)
	if err != nil {
		writeFieldError(w, r, "handlerRole", err.Error())
		return
	}

	in := services.CheckpointInput{
		LocationName:       req.LocationName,
		GPSCoordinates:     req.GPSCoordinates,
		TemperatureCelsius: req.TemperatureCelsius,
		Notes:              req.Notes,
		HandlerRole:        role,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	b, err := h.Batches.AppendCheckpoint(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "append checkpoint", err)
		return
	}

	setETag(w, b)
	writeJSON(w, r, http.StatusCreated, dto.NewBatchResponse(b))
}

// TemperatureLogs serves POST /batches/{id}/temperature-logs.
func (h *BatchHandler) TemperatureLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.TemperatureLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemperatureCelsius == nil {
		writeFieldError(w, r, "temperatureCelsius", "temperature is required")
		return
	}

	in := services.TemperatureLogInput{TemperatureCelsius: *req.TemperatureCelsius, LocationGPS: req.LocationGPS}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	b, err := h.Batches.AppendTemperatureLog(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "append temperature log", err)
		return
	}

	setETag(w, b)
	writeJSON(w, r, http.StatusCreated, dto.NewBatchResponse(b))
}

// Status serves POST /batches/{id}/status.
func (h *BatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.Batches.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, r, "set status", err)
		return
	}

	setETag(w, b)
	writeJSON(w, r, http.StatusOK, dto.NewBatchResponse(b))
}

func setETag(w http.ResponseWriter, b domain.Batch) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(b.Version, 10)))
}

func parseETag(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
	s = strings.Trim(s, `"`)
	return strconv.ParseInt(s, 10, 64)
}

// Verify serves GET /verify/{id}: the provenance view of one batch.
func (h *BatchHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	b, err := h.Batches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "verify batch", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.VerifyResponse{
		Batch:    dto.NewBatchResponse(b),
		Timeline: views.Timeline(b),
	})
}
