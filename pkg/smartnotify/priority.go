package smartnotify

import (
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Breakdown keys for adjustments applied on top of model factors.
const (
	AdjustmentUser    = "adjustment:user"
	AdjustmentType    = "adjustment:type"
	AdjustmentContext = "adjustment:time_of_day"
)

// fallbackConfidence is reported for types without a model.
const fallbackConfidence = 0.5

var fallbackScores = map[notifications.Priority]float64{
	notifications.PriorityCritical: 90,
	notifications.PriorityHigh:     70,
	notifications.PriorityMedium:   50,
	notifications.PriorityLow:      30,
}

// FallbackScore returns the static score for a priority hint. Unknown or
// empty hints score as medium.
func FallbackScore(hint notifications.Priority) float64 {
	if s, ok := fallbackScores[hint]; ok {
		return s
	}
	return fallbackScores[notifications.PriorityMedium]
}

// PriorityResult is the scoring outcome for one request.
type PriorityResult struct {
	Score           float64
	Level           notifications.Priority
	FactorBreakdown map[string]float64
	Confidence      float64
	ModelFound      bool
}

// PriorityCalculator scores requests against a snapshot. It has no side effects.
type PriorityCalculator struct {
	Thresholds Thresholds
	Location   *time.Location
}

// Calculate scores req at now. A nil snapshot scores as an unknown type.
func (c PriorityCalculator) Calculate(snap *Snapshot, req Request, now time.Time) PriorityResult {
	var model PriorityModel
	found := false
	if snap != nil {
		model, found = snap.Models.Lookup(req.Type)
	}
	if !found {
		score := FallbackScore(req.Priority)
		return PriorityResult{
			Score:           score,
			Level:           c.Thresholds.Level(score),
			FactorBreakdown: map[string]float64{},
			Confidence:      fallbackConfidence,
		}
	}

	breakdown := make(map[string]float64, len(model.Factors)+3)
	score := model.BaseScore
	present := 0
	for _, name := range slices.Sorted(maps.Keys(model.Factors)) {
		v, ok := req.Context[name]
		if !ok || v == nil {
			breakdown[name] = 0
			continue
		}
		present++
		contrib := model.Factors[name].Contribution(v)
		breakdown[name] = contrib
		score += contrib
	}

	if p, ok := snap.Profiles.Get(req.RecipientUserID); ok {
		if adj := userAdjustment(p.ReadRate); adj != 0 {
			breakdown[AdjustmentUser] = adj
			score += adj
		}
		if e, ok := p.PerTypeEngagement[req.Type]; ok {
			if adj := typeAdjustment(e.ReadRate); adj != 0 {
				breakdown[AdjustmentType] = adj
				score += adj
			}
		}
	}

	if adj := contextAdjustment(c.hour(now), score); adj != 0 {
		breakdown[AdjustmentContext] = adj
		score += adj
	}

	score = clamp(score, 0, 100)
	confidence := 1.0
	if len(model.Factors) > 0 {
		confidence = float64(present) / float64(len(model.Factors))
	}
	return PriorityResult{
		Score:           score,
		Level:           c.Thresholds.Level(score),
		FactorBreakdown: breakdown,
		Confidence:      confidence,
		ModelFound:      true,
	}
}

func (c PriorityCalculator) hour(now time.Time) int {
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return now.Hour()
}

func userAdjustment(readRate float64) float64 {
	switch {
	case readRate > 0.8:
		return 5
	case readRate < 0.3:
		return -10
	}
	return 0
}

func typeAdjustment(readRate float64) float64 {
	switch {
	case readRate > 0.7:
		return 5
	case readRate < 0.3:
		return -5
	}
	return 0
}

// contextAdjustment rewards business hours (9-17) and penalizes off-hours
// (before 8, after 20) for scores below 80.
func contextAdjustment(hour int, score float64) float64 {
	switch {
	case hour >= 9 && hour <= 17:
		return 5
	case (hour < 8 || hour > 20) && score < 80:
		return -10
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
