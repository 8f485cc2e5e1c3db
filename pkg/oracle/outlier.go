package oracle

import (
	"math"
	"sort"
)

// Fewer responses than this and outlier detection is skipped: too few points
// to judge the center robustly.
const minResponsesForDetection = 3

// DetectOutliers partitions successful outcomes into clean responses and
// outliers. Only numeric values are judged; structured payloads bypass
// detection and are always clean. If removal would drop the surviving
// fraction of queried providers below consensusThreshold, every response is
// kept and the caller records a quality penalty instead of failing the round.
func DetectOutliers(successes []Outcome, queried int, criteria SelectionCriteria) (clean, outliers []Outcome, penalized bool) {
	numeric := make([]Outcome, 0, len(successes))
	structured := make([]Outcome, 0)

	for _, o := range successes {
		if _, ok := numericValue(o.Response.Value); ok {
			numeric = append(numeric, o)
		} else {
			structured = append(structured, o)
		}
	}

	if len(numeric) < minResponsesForDetection {
		return successes, nil, false
	}

	values := make([]float64, len(numeric))
	for i, o := range numeric {
		values[i], _ = numericValue(o.Response.Value)
	}
	center := medianOf(values)

	clean = append(clean, structured...)
	for _, o := range numeric {
		v, _ := numericValue(o.Response.Value)
		if relativeDeviation(v, center) > criteria.OutlierThreshold {
			outliers = append(outliers, o)
		} else {
			clean = append(clean, o)
		}
	}

	if len(clean) == 0 ||
		(queried > 0 && float64(len(clean))/float64(queried) < criteria.ConsensusThreshold) {
		// Better a best-effort answer with lowered confidence than no answer.
		return successes, nil, true
	}

	return clean, outliers, false
}

// relativeDeviation is |v - center| / center. A center of exactly zero makes
// the ratio undefined; any non-zero value is then treated as fully divergent.
func relativeDeviation(v, center float64) float64 {
	if center == 0 {
		if v == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(v-center) / math.Abs(center)
}

// medianOf returns the standard median: the middle element for odd counts,
// the mean of the two middle elements for even counts.
func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// numericValue extracts a float64 from a response payload when possible
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
