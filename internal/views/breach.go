package views

import "chainwatch/internal/domain"

// IsBreached reports whether any temperature reading of b, from a log or a
// checkpoint, exceeds the batch's limit. Readings equal to the limit are fine.
func IsBreached(b domain.Batch) bool {
	for _, l := range b.TemperatureLogs {
		if l.TemperatureCelsius > b.TemperatureLimitCelsius {
			return true
		}
	}
	for _, cp := range b.Checkpoints {
		if cp.TemperatureCelsius != nil && *cp.TemperatureCelsius > b.TemperatureLimitCelsius {
			return true
		}
	}
	return false
}

// BreachedBatches returns the ids of breached batches in collection order.
func BreachedBatches(batches []domain.Batch) []string {
	ids := []string{}
	for _, b := range batches {
		if IsBreached(b) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
