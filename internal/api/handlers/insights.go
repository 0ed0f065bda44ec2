package handlers

import (
	"chainwatch/internal/api/dto"
	"chainwatch/internal/services"
	"net/http"
)

type InsightsHandler struct {
	Insights *services.InsightsService
	Batches  *services.BatchService
}

// RiskPrediction serves POST /alerts/risk-prediction.
func (h *InsightsHandler) RiskPrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.RiskPredictionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemperatureThreshold == nil {
		writeFieldError(w, r, "temperatureThreshold", "temperature threshold is required")
		return
	}

	res, err := h.Insights.PredictRiskyBatches(r.Context(), services.RiskPredictionInput{
		BatchData:            req.BatchData,
		TemperatureThreshold: *req.TemperatureThreshold,
	})
	if err != nil {
		writeServiceError(w, r, "predict risky batches", err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

// RouteSummary serves POST /analytics/route-summary.
func (h *InsightsHandler) RouteSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.RouteSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.Insights.SummarizeRoutePerformance(r.Context(), services.RouteSummaryInput{
		RouteData:    req.RouteData,
		PlannedRoute: req.PlannedRoute,
	})
	if err != nil {
		writeServiceError(w, r, "summarize route performance", err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

// BatchRouteSummary serves POST /batches/{id}/route-summary. The body is optional.
func (h *InsightsHandler) BatchRouteSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.BatchRouteSummaryRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.Batches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "summarize batch route", err)
		return
	}

	res, err := h.Insights.SummarizeBatchRoute(r.Context(), b, req.PlannedRoute)
	if err != nil {
		writeServiceError(w, r, "summarize batch route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}
