package views

import (
	"chainwatch/internal/domain"
	"time"
)

type StatusCount struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
	Icon   Icon          `json:"icon"`
}

// StatusBreakdown counts batches per status, listing every status in lifecycle order.
func StatusBreakdown(batches []domain.Batch) []StatusCount {
	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, b := range batches {
		counts[b.Status]++
	}

	out := make([]StatusCount, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out = append(out, StatusCount{Status: s, Count: counts[s], Icon: IconForStatus(s)})
	}
	return out
}

// TrendPoint is one sample on a batch's temperature chart.
type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Limit       float64   `json:"limit"`
}

func TemperatureTrend(b domain.Batch) []TrendPoint {
	points := make([]TrendPoint, 0, len(b.TemperatureLogs))
	for _, l := range b.TemperatureLogs {
		points = append(points, TrendPoint{
			Timestamp:   l.Timestamp,
			Temperature: l.TemperatureCelsius,
			Limit:       b.TemperatureLimitCelsius,
		})
	}
	return points
}

// TimelineEntry is a checkpoint decorated for the provenance view.
type TimelineEntry struct {
	domain.Checkpoint
	Icon     Icon `json:"icon"`
	Breached bool `json:"breached"`
}

// Timeline returns the batch's checkpoints with handler icons, flagging
// readings above the limit.
func Timeline(b domain.Batch) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(b.Checkpoints))
	for _, cp := range b.Checkpoints {
		out = append(out, TimelineEntry{
			Checkpoint: cp,
			Icon:       IconForRole(cp.HandlerRole),
			Breached:   cp.TemperatureCelsius != nil && *cp.TemperatureCelsius > b.TemperatureLimitCelsius,
		})
	}
	return out
}
