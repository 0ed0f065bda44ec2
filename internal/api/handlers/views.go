package handlers

import (
	"chainwatch/internal/api/dto"
	"chainwatch/internal/domain"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/services"
	"chainwatch/internal/views"
	"log"
	"net/http"
	"strings"
)

// ViewHandler serves the read-only projections: dashboard cards and analytics.
type ViewHandler struct {
	Batches  *services.BatchService
	Sessions *services.SessionService
	Cache    *views.SummaryCache
}

// Dashboard serves GET /dashboard?role=. Without a role parameter the
// signed-in user's role is used.
func (h *ViewHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	var role domain.Role
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		parsed, err := domain.ParseRole(raw)
		if err != nil {
			writeFieldError(w, r, "role", err.Error())
			return
		}
		role = parsed
	} else if h.Sessions != nil {
		u, ok, err := h.Sessions.Current(r.Context())
		if err != nil {
			log.Printf("req_id=%s dashboard: read session: %v", obs.RequestID(r.Context()), err)
		}
		if ok {
			role = u.Role
		}
	}
	if role == "" {
		writeFieldError(w, r, "role", "role is required when nobody is signed in")
		return
	}

	batches, version := h.Batches.Snapshot()
	var cards []views.SummaryCard
	if h.Cache != nil {
		cards = h.Cache.Get(batches, version, role)
	} else {
		cards = views.SummaryCounts(batches, role)
	}

	writeJSON(w, r, http.StatusOK, dto.DashboardResponse{Role: role, Cards: cards})
}

// Analytics serves GET /analytics.
func (h *ViewHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	batches, _ := h.Batches.Snapshot()

	res := dto.AnalyticsResponse{
		TotalBatches:     len(batches),
		StatusBreakdown:  views.StatusBreakdown(batches),
		BreachedBatchIDs: views.BreachedBatches(batches),
		Trends:           make([]dto.BatchTrend, 0, len(batches)),
	}
	for _, b := range batches {
		res.Trends = append(res.Trends, dto.BatchTrend{
			BatchID:      b.ID,
			ProductName:  b.ProductName,
			LimitCelsius: b.TemperatureLimitCelsius,
			Breached:     views.IsBreached(b),
			Points:       views.TemperatureTrend(b),
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}
