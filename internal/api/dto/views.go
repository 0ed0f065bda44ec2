package dto

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/views"
)

type DashboardResponse struct {
	Role  domain.Role         `json:"role"`
	Cards []views.SummaryCard `json:"cards"`
}

type BatchTrend struct {
	BatchID      string             `json:"batchId"`
	ProductName  string             `json:"productName"`
	LimitCelsius float64            `json:"limitCelsius"`
	Breached     bool               `json:"breached"`
	Points       []views.TrendPoint `json:"points"`
}

type AnalyticsResponse struct {
	TotalBatches     int                 `json:"totalBatches"`
	StatusBreakdown  []views.StatusCount `json:"statusBreakdown"`
	BreachedBatchIDs []string            `json:"breachedBatchIds"`
	Trends           []BatchTrend        `json:"trends"`
}
