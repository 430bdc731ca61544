package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var models = []DecayModel{Linear, Exponential, Logarithmic}

func daysAgo(now time.Time, days float64) int64 {
	return now.Add(-time.Duration(days * float64(24*time.Hour))).UnixMilli()
}

func TestNoDecayIsSumOfWeights(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: daysAgo(now, 0), Weight: 2},
		{Timestamp: daysAgo(now, 30), Weight: 5},
		{Timestamp: daysAgo(now, 900), Weight: 1.5},
	}
	for _, m := range models {
		assert.InDelta(t, 8.5, Score(events, 0, m, now), 1e-9, "model %s", m)
	}
}

func TestLinearExample(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: daysAgo(now, 0), Weight: 2},
		{Timestamp: daysAgo(now, 10), Weight: 5},
	}
	assert.InDelta(t, 2.0, Score(events, 0.1, Linear, now), 1e-9)
}

func TestMultiplierCurves(t *testing.T) {
	assert.InDelta(t, 0.5, Multiplier(Linear, 0.05, 10), 1e-9)
	assert.InDelta(t, math.Exp(-0.5), Multiplier(Exponential, 0.05, 10), 1e-9)
	assert.InDelta(t, 1-0.05*math.Log(11), Multiplier(Logarithmic, 0.05, 10), 1e-9)

	// Clamped at zero.
	assert.Equal(t, 0.0, Multiplier(Linear, 1, 5))
	assert.Equal(t, 0.0, Multiplier(Logarithmic, 2, 100))
}

func TestFutureTimestampsDoNotDecay(t *testing.T) {
	for _, m := range models {
		assert.Equal(t, 1.0, Multiplier(m, 0.3, -4), "model %s", m)
		assert.Equal(t, 1.0, Multiplier(m, 0.3, 0), "model %s", m)
	}
}

func TestDecayIsMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, m := range models {
		for _, f := range []float64{0.001, 0.05, 0.5, 3} {
			prev := math.Inf(1)
			for age := 0.0; age <= 400; age += 0.75 {
				s := Score([]Event{{Timestamp: daysAgo(now, age), Weight: 3}}, f, m, now)
				require.LessOrEqual(t, s, prev+1e-12, "model %s factor %v age %v", m, f, age)
				require.GreaterOrEqual(t, s, 0.0)
				prev = s
			}
		}
	}
}

func TestScoreNeverNegative(t *testing.T) {
	now := time.Now()
	events := []Event{{Timestamp: now.UnixMilli(), Weight: -4}}
	assert.Equal(t, 0.0, Score(events, 0, Linear, now))
}

func TestParseDecayModel(t *testing.T) {
	m, err := ParseDecayModel(" Exponential ")
	require.NoError(t, err)
	assert.Equal(t, Exponential, m)

	_, err = ParseDecayModel("cubic")
	assert.Error(t, err)
}
