package services

import (
	"chainwatch/internal/domain"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/ports"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// ErrModel marks failures of the language model call or its answer.
var ErrModel = errors.New("language model request failed")

const minBatchDataLength = 50

const riskSystem = `You are an AI assistant specializing in supply chain risk analysis, particularly for temperature-sensitive goods.`

var riskPrompt = template.Must(template.New("risk").Parse(`You are provided with historical batch data, including temperature logs, GPS locations, and timestamps. Your task is to analyze this data and predict whether a batch is at risk of a temperature breach.

Consider factors such as:
- Historical temperature fluctuations
- Route characteristics (e.g., weather conditions, traffic delays)
- Time of year
- Origin and destination locations

Based on your analysis, determine whether the batch is likely to exceed the specified temperature threshold. If so, identify the key risk factors and suggest actions to mitigate the risk.

Here is the batch data:
{{.BatchData}}

Temperature Threshold: {{.TemperatureThreshold}}

Answer with a single JSON object and nothing else:
{"isRisky": <boolean>, "riskFactors": "<string>", "suggestedActions": "<string>"}
`))

const summarySystem = `You are an AI assistant specializing in supply chain analytics.`

var summaryPrompt = template.Must(template.New("summary").Parse(`You will receive route data and the planned route for a delivery. Analyze the data and provide a concise summary of the route performance, including key metrics such as average temperature, total time taken, and any significant deviations from the planned route.

Route Data: {{.RouteData}}
Planned Route: {{.PlannedRoute}}

Answer with a single JSON object and nothing else:
{"summary": "<string>"}
`))

type RiskPredictionInput struct {
	BatchData            string  `json:"batchData"`
	TemperatureThreshold float64 `json:"temperatureThreshold"`
}

type RiskPrediction struct {
	IsRisky          bool   `json:"isRisky"`
	RiskFactors      string `json:"riskFactors"`
	SuggestedActions string `json:"suggestedActions"`
}

type RouteSummaryInput struct {
	RouteData    string `json:"routeData"`
	PlannedRoute string `json:"plannedRoute"`
}

type RouteSummary struct {
	Summary string `json:"summary"`
}

// InsightsService runs the prompt flows against a text generator.
type InsightsService struct {
	gen     ports.TextGenerator
	metrics *obs.Metrics
}

func NewInsightsService(gen ports.TextGenerator, metrics *obs.Metrics) *InsightsService {
	return &InsightsService{gen: gen, metrics: metrics}
}

func (s *InsightsService) PredictRiskyBatches(ctx context.Context, in RiskPredictionInput) (_ RiskPrediction, err error) {
	defer obs.Time(ctx, "insights.predict_risky_batches")(&err)

	if len(strings.TrimSpace(in.BatchData)) < minBatchDataLength {
		return RiskPrediction{}, domain.NewValidationError("batchData", "batch data must be at least 50 characters")
	}

	raw, err := s.generate(ctx, "risk_prediction", riskSystem, riskPrompt, in)
	if err != nil {
		return RiskPrediction{}, fmt.Errorf("predict risky batches: %w", err)
	}

	obj, err := jsonObject(raw)
	if err != nil {
		return RiskPrediction{}, fmt.Errorf("predict risky batches: %w", err)
	}

	risky := obj.Get("isRisky")
	if risky.Type != gjson.True && risky.Type != gjson.False {
		return RiskPrediction{}, fmt.Errorf("predict risky batches: %w: isRisky is not a boolean", ErrModel)
	}
	factors, ok := textField(obj, "riskFactors")
	if !ok {
		return RiskPrediction{}, fmt.Errorf("predict risky batches: %w: riskFactors missing", ErrModel)
	}
	actions, ok := textField(obj, "suggestedActions")
	if !ok {
		return RiskPrediction{}, fmt.Errorf("predict risky batches: %w: suggestedActions missing", ErrModel)
	}

	return RiskPrediction{IsRisky: risky.Bool(), RiskFactors: factors, SuggestedActions: actions}, nil
}

func (s *InsightsService) SummarizeRoutePerformance(ctx context.Context, in RouteSummaryInput) (_ RouteSummary, err error) {
	defer obs.Time(ctx, "insights.summarize_route_performance")(&err)

	if strings.TrimSpace(in.RouteData) == "" {
		return RouteSummary{}, domain.NewValidationError("routeData", "route data is required")
	}
	if strings.TrimSpace(in.PlannedRoute) == "" {
		return RouteSummary{}, domain.NewValidationError("plannedRoute", "planned route is required")
	}

	raw, err := s.generate(ctx, "route_summary", summarySystem, summaryPrompt, in)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("summarize route performance: %w", err)
	}

	obj, err := jsonObject(raw)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("summarize route performance: %w", err)
	}
	summary, ok := textField(obj, "summary")
	if !ok || summary == "" {
		return RouteSummary{}, fmt.Errorf("summarize route performance: %w: summary missing", ErrModel)
	}

	return RouteSummary{Summary: summary}, nil
}

// SummarizeBatchRoute summarizes a stored batch's journey. An empty
// plannedRoute defaults to "<origin> to <destination>".
func (s *InsightsService) SummarizeBatchRoute(ctx context.Context, b domain.Batch, plannedRoute string) (RouteSummary, error) {
	routeData, err := RouteDataForBatch(b)
	if err != nil {
		return RouteSummary{}, err
	}
	if strings.TrimSpace(plannedRoute) == "" {
		plannedRoute = b.Origin + " to " + b.Destination
	}
	return s.SummarizeRoutePerformance(ctx, RouteSummaryInput{RouteData: routeData, PlannedRoute: plannedRoute})
}

func (s *InsightsService) generate(ctx context.Context, flow, system string, tmpl *template.Template, data any) (_ string, err error) {
	defer func() { s.metrics.ModelCall(flow, err) }()

	if s.gen == nil {
		return "", fmt.Errorf("%w: no generator configured", ErrModel)
	}

	var prompt strings.Builder
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", flow, err)
	}

	out, err := s.gen.Generate(ctx, system, prompt.String())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModel, err)
	}
	return out, nil
}

// jsonObject extracts the JSON object from a model answer, tolerating code
// fences and surrounding prose.
func jsonObject(raw string) (gjson.Result, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return gjson.Result{}, fmt.Errorf("%w: answer contains no JSON object", ErrModel)
	}
	s = s[start : end+1]
	if !gjson.Valid(s) {
		return gjson.Result{}, fmt.Errorf("%w: answer is not valid JSON", ErrModel)
	}
	return gjson.Parse(s), nil
}

// textField reads a string field, joining arrays of strings with "; ".
func textField(obj gjson.Result, name string) (string, bool) {
	v := obj.Get(name)
	switch {
	case !v.Exists():
		return "", false
	case v.IsArray():
		parts := make([]string, 0)
		for _, item := range v.Array() {
			if t := strings.TrimSpace(item.String()); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "; "), true
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String()), true
	default:
		return "", false
	}
}

type routeCheckpoint struct {
	Timestamp          time.Time   `json:"timestamp"`
	LocationName       string      `json:"locationName"`
	GPSCoordinates     string      `json:"gpsCoordinates"`
	TemperatureCelsius *float64    `json:"temperatureCelsius,omitempty"`
	HandlerRole        domain.Role `json:"handlerRole"`
	Notes              string      `json:"notes,omitempty"`
}

type routeData struct {
	BatchID                 string                  `json:"batchId"`
	ProductName             string                  `json:"productName"`
	Origin                  string                  `json:"origin"`
	Destination             string                  `json:"destination"`
	Status                  domain.Status           `json:"status"`
	TemperatureLimitCelsius float64                 `json:"temperatureLimitCelsius"`
	Checkpoints             []routeCheckpoint       `json:"checkpoints"`
	TemperatureLogs         []domain.TemperatureLog `json:"temperatureLogs"`
}

// RouteDataForBatch renders a batch's journey as the routeData JSON.
func RouteDataForBatch(b domain.Batch) (string, error) {
	rd := routeData{
		BatchID:                 b.ID,
		ProductName:             b.ProductName,
		Origin:                  b.Origin,
		Destination:             b.Destination,
		Status:                  b.Status,
		TemperatureLimitCelsius: b.TemperatureLimitCelsius,
		Checkpoints:             make([]routeCheckpoint, 0, len(b.Checkpoints)),
		TemperatureLogs:         b.TemperatureLogs,
	}
	if rd.TemperatureLogs == nil {
		rd.TemperatureLogs = []domain.TemperatureLog{}
	}
	for _, cp := range b.Checkpoints {
		rd.Checkpoints = append(rd.Checkpoints, routeCheckpoint{
			Timestamp:          cp.Timestamp,
			LocationName:       cp.LocationName,
			GPSCoordinates:     cp.GPSCoordinates,
			TemperatureCelsius: cp.TemperatureCelsius,
			HandlerRole:        cp.HandlerRole,
			Notes:              cp.Notes,
		})
	}

	out, err := json.Marshal(rd)
	if err != nil {
		return "", fmt.Errorf("route data for batch %q: %w", b.ID, err)
	}
	return string(out), nil
}
