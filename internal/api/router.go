package api

import (
	"chainwatch/internal/api/handlers"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/services"
	"chainwatch/internal/views"
	"net/http"
)

type RouterDeps struct {
	Batches   *services.BatchService
	Insights  *services.InsightsService
	Sessions  *services.SessionService
	Summaries *views.SummaryCache
	Metrics   *obs.Metrics
	// Degraded reports whether the store is running without its durable medium.
	Degraded       func() bool
	MaxUploadBytes int64
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers only see services, never concrete adapters.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	health := &handlers.HealthHandler{Degraded: deps.Degraded}
	batches := &handlers.BatchHandler{Batches: deps.Batches, MaxUploadBytes: deps.MaxUploadBytes}
	viewsHandler := &handlers.ViewHandler{Batches: deps.Batches, Sessions: deps.Sessions, Cache: deps.Summaries}
	insights := &handlers.InsightsHandler{Insights: deps.Insights, Batches: deps.Batches}
	session := &handlers.SessionHandler{Sessions: deps.Sessions}

	mux.HandleFunc("/health", health.Health)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("/batches", batches.Collection)
	mux.HandleFunc("/batches/{id}", batches.Item)
	mux.HandleFunc("/batches/{id}/checkpoints", batches.Checkpoints)
	mux.HandleFunc("/batches/{id}/temperature-logs", batches.TemperatureLogs)
	mux.HandleFunc("/batches/{id}/status", batches.Status)
	mux.HandleFunc("/batches/{id}/route-summary", insights.BatchRouteSummary)
	mux.HandleFunc("/verify/{id}", batches.Verify)

	mux.HandleFunc("/dashboard", viewsHandler.Dashboard)
	mux.HandleFunc("/analytics", viewsHandler.Analytics)
	mux.HandleFunc("/alerts/risk-prediction", insights.RiskPrediction)
	mux.HandleFunc("/analytics/route-summary", insights.RouteSummary)

	mux.HandleFunc("/session", session.Session)

	return requestIDMiddleware(loggingMiddleware(mux, deps.Metrics))
}
