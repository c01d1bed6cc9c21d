// Package scoring derives activity metrics from a user's usage rollup.
package scoring

import (
	"math"
	"time"
)

// Activity level buckets ordered from most to least recent.
const (
	// LevelHigh marks activity within the last two days.
	LevelHigh = "high"
	// LevelMedium marks activity exactly three days ago.
	LevelMedium = "medium"
	// LevelLow marks activity older than three days.
	LevelLow = "low"
	// LevelInactive is the zero-value bucket for users without a recorded
	// latest activity. An aggregate built from at least one event always has
	// one, so this bucket never surfaces through the aggregation pipeline.
	LevelInactive = "inactive"
)

// Composite score weights.
const (
	recencyWeight   = 0.5
	frequencyWeight = 0.3
	volumeWeight    = 0.2
)

// Result holds the derived activity metrics for one user aggregate.
type Result struct {
	DaysSinceLastActivity int    // Whole elapsed days since the latest event.
	ActivityLevel         string // Coarse recency bucket.
	RecencyScore          int    // Recency sub-score in [0,100].
	FrequencyScore        int    // Frequency sub-score in [0,100].
	VolumeScore           int    // Volume sub-score in [0,100].
	ActivityScore         int    // Weighted composite in [0,100].
}

// Score computes activity metrics from an aggregate's count, token total and
// latest activity timestamp. It is a pure function of its inputs and now.
func Score(usageCount int, totalTokens int64, latestActivity, now time.Time) Result {
	if latestActivity.IsZero() {
		return Result{ActivityLevel: LevelInactive}
	}

	days := DaysSince(latestActivity, now)

	level := LevelLow
	switch {
	case days <= 2:
		level = LevelHigh
	case days == 3:
		level = LevelMedium
	}

	recency := clampScore(100 - days*2)
	frequency := clampScore(usageCount * 5)
	volume := clampScore(int(totalTokens / 1_000_000))

	composite := int(math.Floor(
		float64(recency)*recencyWeight +
			float64(frequency)*frequencyWeight +
			float64(volume)*volumeWeight))

	return Result{
		DaysSinceLastActivity: days,
		ActivityLevel:         level,
		RecencyScore:          recency,
		FrequencyScore:        frequency,
		VolumeScore:           volume,
		ActivityScore:         composite,
	}
}

// DaysSince returns the whole number of elapsed 24h periods between t and now,
// never negative. It is wall-clock elapsed time, not calendar days.
func DaysSince(t, now time.Time) int {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// clampScore clamps a sub-score into [0,100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
