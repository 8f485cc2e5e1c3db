package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func numericOutcomes(values ...float64) []Outcome {
	now := time.Now()
	outcomes := make([]Outcome, len(values))
	for i, v := range values {
		outcomes[i] = successOutcome(string(rune('a'+i)), v, 0.9, 50, now)
	}
	return outcomes
}

func TestDetectOutliers_DeviationBeyondThreshold(t *testing.T) {
	// Median 102; 150 deviates 47% which exceeds the 20% threshold.
	outcomes := numericOutcomes(100, 102, 150)
	criteria := DefaultSelectionCriteria()

	clean, outliers, penalized := DetectOutliers(outcomes, 3, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 2)
	assert.Len(t, outliers, 1)
	assert.Equal(t, 150.0, outliers[0].Response.Value)
}

func TestDetectOutliers_SkipsBelowThreeResponses(t *testing.T) {
	outcomes := numericOutcomes(100, 500)
	criteria := DefaultSelectionCriteria()

	clean, outliers, penalized := DetectOutliers(outcomes, 2, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 2)
	assert.Empty(t, outliers)
}

func TestDetectOutliers_ZeroThresholdFlagsAllButMedian(t *testing.T) {
	outcomes := numericOutcomes(1, 2, 3)
	criteria := DefaultSelectionCriteria()
	criteria.OutlierThreshold = 0
	criteria.ConsensusThreshold = 0

	clean, outliers, penalized := DetectOutliers(outcomes, 3, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 1)
	assert.Equal(t, 2.0, clean[0].Response.Value)
	assert.Len(t, outliers, 2)
}

func TestDetectOutliers_KeepAllBelowConsensusThreshold(t *testing.T) {
	outcomes := numericOutcomes(100, 102, 150)
	criteria := DefaultSelectionCriteria()
	criteria.ConsensusThreshold = 0.9 // 2/3 survivors would not be enough

	clean, outliers, penalized := DetectOutliers(outcomes, 3, criteria)

	assert.True(t, penalized)
	assert.Len(t, clean, 3)
	assert.Empty(t, outliers)
}

func TestDetectOutliers_StructuredValuesBypass(t *testing.T) {
	now := time.Now()
	outcomes := []Outcome{
		successOutcome("a", map[string]interface{}{"temp": 21.5}, 0.9, 50, now),
		successOutcome("b", map[string]interface{}{"temp": 22.0}, 0.9, 50, now),
		successOutcome("c", map[string]interface{}{"temp": 95.0}, 0.9, 50, now),
	}
	criteria := DefaultSelectionCriteria()

	clean, outliers, penalized := DetectOutliers(outcomes, 3, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 3)
	assert.Empty(t, outliers)
}

func TestDetectOutliers_MixedNumericAndStructured(t *testing.T) {
	now := time.Now()
	outcomes := append(numericOutcomes(100, 102, 150),
		successOutcome("weather", map[string]interface{}{"temp": 20.0}, 0.9, 50, now))
	criteria := DefaultSelectionCriteria()
	criteria.ConsensusThreshold = 0.5

	clean, outliers, penalized := DetectOutliers(outcomes, 4, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 3) // two numeric survivors plus the structured one
	assert.Len(t, outliers, 1)
}

func TestDetectOutliers_ZeroCenter(t *testing.T) {
	// Median is zero: relative deviation is undefined, any non-zero value
	// counts as fully divergent.
	outcomes := numericOutcomes(0, 0, 5)
	criteria := DefaultSelectionCriteria()
	criteria.ConsensusThreshold = 0.5

	clean, outliers, penalized := DetectOutliers(outcomes, 3, criteria)

	assert.False(t, penalized)
	assert.Len(t, clean, 2)
	assert.Len(t, outliers, 1)
	assert.Equal(t, 5.0, outliers[0].Response.Value)
}

func TestMedianOf(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "Odd", values: []float64{3, 1, 2}, want: 2},
		{name: "Even", values: []float64{100, 102}, want: 101},
		{name: "Single", values: []float64{7}, want: 7},
		{name: "Empty", values: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, medianOf(tt.values))
		})
	}
}
