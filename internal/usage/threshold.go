package usage

import (
	"math"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// Threshold is a usage warning level.
type Threshold string

const (
	ThresholdNone Threshold = ""
	Threshold80   Threshold = "80"
	Threshold100  Threshold = "100"
)

// ThresholdResult reports the highest threshold reached and the rounded usage percentage.
type ThresholdResult struct {
	Reached      Threshold `json:"threshold_reached,omitempty"`
	UsagePercent int       `json:"usage_percent"`
}

// CheckThresholds derives the threshold reached by usage against limit. Non-positive
// limits, including unlimited, report 0% and no threshold.
func CheckThresholds(usage int64, limit Limit) ThresholdResult {
	if limit <= 0 {
		return ThresholdResult{}
	}
	percent := int(math.Round(100 * float64(usage) / float64(limit)))
	switch {
	case percent >= 100:
		return ThresholdResult{Reached: Threshold100, UsagePercent: percent}
	case percent >= 80:
		return ThresholdResult{Reached: Threshold80, UsagePercent: percent}
	default:
		return ThresholdResult{UsagePercent: percent}
	}
}

// Template returns the notification template for the threshold.
func (t Threshold) Template() string {
	if t == ThresholdNone {
		return ""
	}
	return "usage_threshold_" + string(t)
}

// Event returns the automation event name for the threshold.
func (t Threshold) Event() string {
	switch t {
	case Threshold80:
		return models.EventUsageThreshold80
	case Threshold100:
		return models.EventUsageThreshold100
	default:
		return ""
	}
}
