package api

import (
	"bytes"
	"chainwatch/internal/adapters/blob"
	"chainwatch/internal/adapters/kv"
	"chainwatch/internal/adapters/llm"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/services"
	"chainwatch/internal/store"
	"chainwatch/internal/views"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
)

type testServer struct {
	handler http.Handler
	gen     *llm.ScriptedGenerator
	blobs   *blob.MemoryStore
}

func newTestServer(t *testing.T, answers ...string) testServer {
	t.Helper()
	ctx := context.Background()

	medium := kv.NewMemoryKV()
	st := store.Open(ctx, medium, store.Options{})
	blobs := blob.NewMemoryStore()
	metrics := obs.NewMetrics()
	gen := llm.NewScriptedGenerator(answers...)
	cache, err := views.NewSummaryCache(16)
	if err != nil {
		t.Fatalf("NewSummaryCache: %v", err)
	}

	batches := services.NewBatchService(services.BatchServiceDeps{Store: st, Blobs: blobs, Metrics: metrics})
	h := NewRouter(RouterDeps{
		Batches:   batches,
		Insights:  services.NewInsightsService(gen, metrics),
		Sessions:  services.NewSessionService(medium),
		Summaries: cache,
		Metrics:   metrics,
		Degraded:  st.Degraded,
	})
	return testServer{handler: h, gen: gen, blobs: blobs}
}

func (s testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

type batchBody struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Breached    bool   `json:"breached"`
	StatusIcon  string `json:"statusIcon"`
	Version     int64  `json:"version"`
	Checkpoints []struct {
		LocationName string `json:"locationName"`
		HandlerRole  string `json:"handlerRole"`
	} `json:"checkpoints"`
	Attachments []struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		BlobKey string `json:"blobKey"`
	} `json:"attachments"`
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

const vaccineJSON = `{"productName":"Vaccine X","origin":"Berlin","destination":"Munich","initialGps":"52.5200,13.4050","temperatureLimitCelsius":5}`

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" || body["storage"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	rec = s.do(t, http.MethodPost, "/health", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("POST /health status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "X-Request-ID", "trace-42")
	if got := rec.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Fatalf("X-Request-ID = %q, want trace-42", got)
	}
}

func TestRegisterThenGetAndVerify(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/batches", vaccineJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	created := decode[batchBody](t, rec)
	if created.Status != "Registered" || len(created.Checkpoints) != 1 || created.Checkpoints[0].HandlerRole != "Manufacturer" {
		t.Fatalf("created = %+v", created)
	}
	if rec.Header().Get("Location") != "/batches/"+created.ID {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}

	rec = s.do(t, http.MethodGet, "/batches/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if rec.Header().Get("ETag") != `"1"` {
		t.Fatalf("ETag = %q", rec.Header().Get("ETag"))
	}

	rec = s.do(t, http.MethodGet, "/verify/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	verify := decode[struct {
		Batch    batchBody `json:"batch"`
		Timeline []struct {
			Icon string `json:"icon"`
		} `json:"timeline"`
	}](t, rec)
	if verify.Batch.StatusIcon != "factory" || len(verify.Timeline) != 1 || verify.Timeline[0].Icon != "factory" {
		t.Fatalf("verify = %+v", verify)
	}
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"duplicate id", `{"batchId":"BATCH001","productName":"Vaccine X","origin":"Berlin","destination":"Munich","initialGps":"52.52,13.405","temperatureLimitCelsius":5}`, http.StatusConflict, "batchId"},
		{"bad gps", `{"productName":"Vaccine X","origin":"Berlin","destination":"Munich","initialGps":"Berlin","temperatureLimitCelsius":5}`, http.StatusBadRequest, "initialGps"},
		{"limit out of range", `{"productName":"Vaccine X","origin":"Berlin","destination":"Munich","initialGps":"52.52,13.405","temperatureLimitCelsius":150}`, http.StatusBadRequest, "temperatureLimitCelsius"},
		{"limit missing", `{"productName":"Vaccine X","origin":"Berlin","destination":"Munich","initialGps":"52.52,13.405"}`, http.StatusBadRequest, "temperatureLimitCelsius"},
		{"short product", `{"productName":"Va","origin":"Berlin","destination":"Munich","initialGps":"52.52,13.405","temperatureLimitCelsius":5}`, http.StatusBadRequest, "productName"},
		{"unknown field", `{"productName":"Vaccine X","colour":"red"}`, http.StatusBadRequest, ""},
		{"two objects", vaccineJSON + vaccineJSON, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/batches", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := decode[errorBody](t, rec); got.Field != tt.field {
				t.Fatalf("field = %q, want %q", got.Field, tt.field)
			}
		})
	}
}

func TestRegisterMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"batchId":                 "BATCH555",
		"productName":             "Insulin Pens",
		"origin":                  "Hamburg",
		"destination":             "Bremen",
		"initialGps":              "53.5511,9.9937",
		"temperatureLimitCelsius": "8",
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="label.png"`)
	hdr.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte("\x89PNG fake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/batches", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	b := decode[batchBody](t, rec)
	if len(b.Attachments) != 1 || b.Attachments[0].Type != "image" || b.Attachments[0].BlobKey != "batches/BATCH555/1-label.png" {
		t.Fatalf("attachments = %+v", b.Attachments)
	}
	if s.blobs.Len() != 1 {
		t.Fatalf("blobs = %d, want 1", s.blobs.Len())
	}

	rec = s.do(t, http.MethodDelete, "/batches/BATCH555", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if s.blobs.Len() != 0 || s.blobs.DeleteCount("batches/BATCH555/1-label.png") != 1 {
		t.Fatal("attachment not released exactly once")
	}
}

func TestListBatches(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/batches?status=InTransit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[struct {
		Batches []batchBody `json:"batches"`
		Count   int         `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Batches[0].ID != "BATCH001" || list.Batches[0].StatusIcon != "truck" {
		t.Fatalf("list = %+v", list)
	}

	rec = s.do(t, http.MethodGet, "/batches?status=Lost", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status filter code = %d", rec.Code)
	}
}

func TestConditionalUpdate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/batches/BATCH002", "")
	raw := rec.Body.Bytes()
	var doc map[string]any
	_ = json.Unmarshal(raw, &doc)
	doc["destination"] = "Retailer Z, Bonn"
	body, _ := json.Marshal(doc)

	rec = s.do(t, http.MethodPut, "/batches/BATCH002", string(body), "If-Match", `"1"`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("ETag") != `"2"` {
		t.Fatalf("ETag = %q", rec.Header().Get("ETag"))
	}

	rec = s.do(t, http.MethodPut, "/batches/BATCH002", string(body), "If-Match", `"1"`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("stale PUT status = %d, want 412", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/batches/BATCH003", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched id status = %d, want 400", rec.Code)
	}
}

func TestDeleteThenVerifyNotFound(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodDelete, "/batches/BATCH003", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/batches/BATCH003", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/verify/BATCH003", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("verify status = %d", rec.Code)
	}
	if got := decode[errorBody](t, rec); got.Error != "batch not found" {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestCheckpointLogAndStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/batches/BATCH002/checkpoints",
		`{"locationName":"Cologne Depot","gpsCoordinates":"50.9375,6.9603","temperatureCelsius":7.5,"handlerRole":"retailer"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkpoint status = %d body = %s", rec.Code, rec.Body.String())
	}
	if b := decode[batchBody](t, rec); len(b.Checkpoints) != 2 || b.Breached {
		t.Fatalf("after checkpoint = %+v", b)
	}

	rec = s.do(t, http.MethodPost, "/batches/BATCH002/temperature-logs", `{"temperatureCelsius":9.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("log status = %d body = %s", rec.Code, rec.Body.String())
	}
	if b := decode[batchBody](t, rec); !b.Breached {
		t.Fatal("batch should be breached after 9.5C reading with limit 8")
	}

	rec = s.do(t, http.MethodPost, "/batches/BATCH002/temperature-logs", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing temperature status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/batches/BATCH002/status", `{"status":"Issue"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status change code = %d", rec.Code)
	}
	if b := decode[batchBody](t, rec); b.Status != "Issue" || b.StatusIcon != "alert-triangle" {
		t.Fatalf("after status = %+v", b)
	}

	rec = s.do(t, http.MethodPost, "/batches/BATCH002/status", `{"status":"Teleported"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/batches/NOPE/status", `{"status":"Issue"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown batch code = %d", rec.Code)
	}
}

func TestDashboardAndSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/dashboard?role=Admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	dash := decode[struct {
		Cards []views.SummaryCard `json:"cards"`
	}](t, rec)
	if len(dash.Cards) != 6 {
		t.Fatalf("admin cards = %d, want 6", len(dash.Cards))
	}

	if rec := s.do(t, http.MethodGet, "/dashboard", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("dashboard without role = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/session", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("GET /session before login = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/session", `{"email":"lena@retail.example","role":"Retailer"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body.String())
	}
	if u := decode[map[string]string](t, rec); u["name"] != "lena" {
		t.Fatalf("user = %v", u)
	}

	rec = s.do(t, http.MethodGet, "/dashboard", "")
	dash = decode[struct {
		Cards []views.SummaryCard `json:"cards"`
	}](t, rec)
	if len(dash.Cards) != 2 || dash.Cards[0].Key != "received" {
		t.Fatalf("retailer cards = %+v", dash.Cards)
	}

	if rec := s.do(t, http.MethodDelete, "/session", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/session", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("GET /session after logout = %d", rec.Code)
	}
}

func TestAnalytics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/analytics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		TotalBatches     int      `json:"totalBatches"`
		BreachedBatchIDs []string `json:"breachedBatchIds"`
		Trends           []struct {
			BatchID string `json:"batchId"`
		} `json:"trends"`
	}](t, rec)
	if body.TotalBatches != 3 || len(body.Trends) != 3 || len(body.BreachedBatchIDs) != 0 {
		t.Fatalf("analytics = %+v", body)
	}
}

func TestAIEndpoints(t *testing.T) {
	s := newTestServer(t,
		`{"isRisky": false, "riskFactors": "Stable readings", "suggestedActions": "None"}`,
		`{"summary": "On schedule."}`,
		`{"summary": "Delivered within limits."}`,
	)

	batchData := strings.Repeat("temp=4.1C gps=51.3,12.3; ", 3)
	rec := s.do(t, http.MethodPost, "/alerts/risk-prediction", `{"batchData":"`+batchData+`","temperatureThreshold":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("risk status = %d body = %s", rec.Code, rec.Body.String())
	}
	risk := decode[services.RiskPrediction](t, rec)
	if risk.IsRisky || risk.RiskFactors != "Stable readings" {
		t.Fatalf("risk = %+v", risk)
	}

	rec = s.do(t, http.MethodPost, "/alerts/risk-prediction", `{"batchData":"short","temperatureThreshold":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short batch data status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/analytics/route-summary", `{"routeData":"[]","plannedRoute":"Berlin to Munich"}`)
	if rec.Code != http.StatusOK || decode[services.RouteSummary](t, rec).Summary != "On schedule." {
		t.Fatalf("route summary status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/batches/BATCH003/route-summary", "")
	if rec.Code != http.StatusOK || decode[services.RouteSummary](t, rec).Summary != "Delivered within limits." {
		t.Fatalf("batch route summary status = %d body = %s", rec.Code, rec.Body.String())
	}

	s.gen.FailWith(errors.New("upstream timeout"))
	rec = s.do(t, http.MethodPost, "/analytics/route-summary", `{"routeData":"[]","plannedRoute":"Berlin to Munich"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("model failure status = %d, want 502", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/batches", "")

	rec := s.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `chainwatch_http_request_duration_seconds_count{route="/batches",status="200"}`) {
		t.Fatalf("metrics missing request histogram:\n%.400s", rec.Body.String())
	}
}

func TestUpdateRejectsInvalidBatch(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		edit  func(doc map[string]any)
		field string
	}{
		{"empty checkpoints", func(doc map[string]any) { doc["checkpoints"] = []any{} }, "checkpoints"},
		{"unknown role", func(doc map[string]any) {
			doc["checkpoints"].([]any)[0].(map[string]any)["handlerRole"] = "Pirate"
		}, "checkpoints[0].handlerRole"},
		{"blank product", func(doc map[string]any) { doc["productName"] = "" }, "productName"},
		{"bad current gps", func(doc map[string]any) { doc["currentLocationGps"] = "not-a-gps" }, "currentLocationGps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc map[string]any
			_ = json.Unmarshal(s.do(t, http.MethodGet, "/batches/BATCH002", "").Body.Bytes(), &doc)
			tt.edit(doc)
			body, _ := json.Marshal(doc)

			rec := s.do(t, http.MethodPut, "/batches/BATCH002", string(body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if got := decode[errorBody](t, rec); got.Field != tt.field {
				t.Fatalf("field = %q, want %q", got.Field, tt.field)
			}

			after := decode[batchBody](t, s.do(t, http.MethodGet, "/batches/BATCH002", ""))
			if len(after.Checkpoints) != 1 || after.Version != 1 {
				t.Fatalf("stored batch changed: %+v", after)
			}
		})
	}
}
