// Package scoring turns an interaction history into a single closeness score.
//
// Each interaction contributes its type weight scaled by a decay multiplier
// that depends on the interaction's age in days:
//
//	linear:      max(0, 1 - f*age)
//	exponential: e^(-f*age)
//	logarithmic: max(0, 1 - f*ln(1+age))
//
// A decay factor of 0 disables decay for every model. Scores are always
// recomputed from the full history, never updated incrementally, so changing
// the decay settings takes effect on the next sweep.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DecayModel selects the decay curve.
type DecayModel string

const (
	Linear      DecayModel = "linear"
	Exponential DecayModel = "exponential"
	Logarithmic DecayModel = "logarithmic"
)

// DefaultWeight applies to interactions whose type no longer exists.
const DefaultWeight = 1.0

const msPerDay = 24 * 60 * 60 * 1000

// ParseDecayModel validates a model name.
func ParseDecayModel(s string) (DecayModel, error) {
	switch m := DecayModel(strings.ToLower(strings.TrimSpace(s))); m {
	case Linear, Exponential, Logarithmic:
		return m, nil
	}
	return "", fmt.Errorf("unknown decay model %q", s)
}

// Event is one interaction as seen by the scorer.
type Event struct {
	Timestamp int64 // unix milliseconds
	Weight    float64
}

// Multiplier returns the decay multiplier for an interaction ageDays old.
// Unknown models are treated as linear.
func Multiplier(model DecayModel, factor, ageDays float64) float64 {
	if factor == 0 || ageDays <= 0 {
		return 1
	}
	switch model {
	case Exponential:
		return math.Exp(-factor * ageDays)
	case Logarithmic:
		return math.Max(0, 1-factor*math.Log1p(ageDays))
	default:
		return math.Max(0, 1-factor*ageDays)
	}
}

// AgeDays returns the age of a timestamp relative to now, in fractional days.
func AgeDays(timestamp int64, now time.Time) float64 {
	return float64(now.UnixMilli()-timestamp) / msPerDay
}

// Score sums weight*multiplier over events. The result is never negative.
func Score(events []Event, factor float64, model DecayModel, now time.Time) float64 {
	total := 0.0
	for _, e := range events {
		total += e.Weight * Multiplier(model, factor, AgeDays(e.Timestamp, now))
	}
	return math.Max(0, total)
}
