package dto

type RiskPredictionRequest struct {
	BatchData            string   `json:"batchData"`
	TemperatureThreshold *float64 `json:"temperatureThreshold"`
}

type RouteSummaryRequest struct {
	RouteData    string `json:"routeData"`
	PlannedRoute string `json:"plannedRoute"`
}

type BatchRouteSummaryRequest struct {
	PlannedRoute string `json:"plannedRoute"`
}
