package oracle

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Confidence multiplier recorded when outlier removal was skipped because it
// would have dropped the surviving fraction below the consensus threshold.
const consensusPenaltyFactor = 0.75

// valueWeight is one numeric response paired with its provider's combined
// weight snapshot
type valueWeight struct {
	value  float64
	weight float64
}

// Aggregate combines the clean response set into one consensus value with a
// calibrated confidence and quality metrics. Weights are the providers'
// combined scores snapshotted at selection time.
func Aggregate(clean, outliers []Outcome, method AggregationMethod, penalized bool, now time.Time) *ConsensusResult {
	sources := make([]string, 0, len(clean))
	for _, o := range clean {
		sources = append(sources, o.Provider)
	}
	sort.Strings(sources)

	rejected := make([]string, 0, len(outliers))
	for _, o := range outliers {
		rejected = append(rejected, o.Provider)
	}
	sort.Strings(rejected)

	confidence := meanConfidence(clean)
	if penalized {
		confidence *= consensusPenaltyFactor
	}

	result := &ConsensusResult{
		RoundID:    uuid.New().String(),
		Value:      aggregateValue(clean, method),
		Confidence: clamp(confidence, 0, 1),
		Method:     method,
		Sources:    sources,
		Outliers:   rejected,
		Quality: QualityMetrics{
			Accuracy:    clamp(confidence, 0, 1),
			Freshness:   freshness(clean, now),
			Consistency: consistency(clean),
		},
		Timestamp: now,
	}

	return result
}

// aggregateValue applies the configured method to the numeric values of the
// clean set. A single response degenerates cleanly to its own value. When no
// value is numeric (structured payloads), the highest-weight response wins.
func aggregateValue(clean []Outcome, method AggregationMethod) interface{} {
	if len(clean) == 1 {
		return clean[0].Response.Value
	}

	pairs := make([]valueWeight, 0, len(clean))
	for _, o := range clean {
		if v, ok := numericValue(o.Response.Value); ok {
			pairs = append(pairs, valueWeight{value: v, weight: o.Weight})
		}
	}

	if len(pairs) == 0 {
		return heaviestValue(clean)
	}

	values := make([]float64, len(pairs))
	for i, p := range pairs {
		values[i] = p.value
	}

	switch method {
	case MethodMedian:
		return medianOf(values)

	case MethodAverage:
		return mean(values)

	case MethodWeightedAverage:
		var weightedSum, totalWeight float64
		for _, p := range pairs {
			weightedSum += p.value * p.weight
			totalWeight += p.weight
		}
		if totalWeight == 0 {
			return mean(values)
		}
		return weightedSum / totalWeight

	default: // MethodWeightedMedian
		return weightedMedian(pairs)
	}
}

// weightedMedian sorts (value, weight) pairs by value and accumulates weight
// until the running sum reaches half the total. When the running sum lands
// exactly on half, the result is the mean of that value and the next one;
// otherwise it is the first value whose cumulative weight exceeds half. With
// equal weights this reduces to the standard median.
func weightedMedian(pairs []valueWeight) float64 {
	sorted := append([]valueWeight(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].value < sorted[j].value
	})

	var total float64
	for _, p := range sorted {
		total += p.weight
	}
	if total == 0 {
		values := make([]float64, len(sorted))
		for i, p := range sorted {
			values[i] = p.value
		}
		return medianOf(values)
	}

	half := total / 2
	var cum float64
	for i, p := range sorted {
		cum += p.weight
		if cum > half {
			return p.value
		}
		if cum == half && i+1 < len(sorted) {
			return (p.value + sorted[i+1].value) / 2
		}
	}
	return sorted[len(sorted)-1].value
}

// heaviestValue returns the value of the response with the largest combined
// weight, breaking ties by provider name
func heaviestValue(clean []Outcome) interface{} {
	best := clean[0]
	for _, o := range clean[1:] {
		if o.Weight > best.Weight || (o.Weight == best.Weight && o.Provider < best.Provider) {
			best = o
		}
	}
	return best.Response.Value
}

func meanConfidence(clean []Outcome) float64 {
	if len(clean) == 0 {
		return 0
	}
	var sum float64
	for _, o := range clean {
		sum += o.Response.Confidence
	}
	return sum / float64(len(clean))
}

// freshness is the mean of max(0, 1 - age/window) over contributors; a
// response older than the window contributes zero.
func freshness(clean []Outcome, now time.Time) float64 {
	if len(clean) == 0 {
		return 0
	}
	var sum float64
	for _, o := range clean {
		age := now.Sub(o.Response.Timestamp)
		sum += math.Max(0, 1-age.Seconds()/FreshnessWindow.Seconds())
	}
	return sum / float64(len(clean))
}

// consistency is max(0, 1 - coefficientOfVariation) of the numeric values.
// A single response, or a non-numeric set, is perfectly consistent.
func consistency(clean []Outcome) float64 {
	values := make([]float64, 0, len(clean))
	for _, o := range clean {
		if v, ok := numericValue(o.Response.Value); ok {
			values = append(values, v)
		}
	}

	if len(values) < 2 {
		return 1
	}

	m := mean(values)
	if m == 0 {
		return 0
	}

	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))

	cv := math.Sqrt(variance) / math.Abs(m)
	return math.Max(0, 1-cv)
}
