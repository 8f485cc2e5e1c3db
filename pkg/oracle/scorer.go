package oracle

import (
	"math"
	"sort"
)

// Dynamic strategy component weights
const (
	dynReliabilityWeight  = 0.25
	dynResponseTimeWeight = 0.20
	dynAccuracyWeight     = 0.25
	dynReputationWeight   = 0.15
	dynStakeWeight        = 0.15

	// Recent performance can swing the dynamic score by at most +-5 points
	recentHistoryWindow = 5
	recentBonusFactor   = 0.1
	neutralRoundScore   = 50.0
)

// SelectionScore turns a provider's weight vector and recent history into a
// single 0-100 scalar under the given strategy.
func SelectionScore(node *ProviderNode, strategy WeightingStrategy) float64 {
	switch strategy {
	case StrategyEqual:
		return neutralRoundScore
	case StrategyReliability:
		return node.Weights.Reliability
	case StrategyPerformance:
		return (node.Weights.ResponseTime + node.Weights.Accuracy) / 2
	case StrategyStake:
		return node.Weights.Stake
	default:
		return dynamicScore(node.Weights, node.Metrics.History)
	}
}

// dynamicScore is the weighted sum of the five component scores, adjusted by
// a bonus or penalty derived from the last few round scores and clamped to
// [0,100]. Also used by the feedback loop to re-derive Combined after every
// round, whatever strategy the round used for selection.
func dynamicScore(w WeightVector, history []float64) float64 {
	score := dynReliabilityWeight*w.Reliability +
		dynResponseTimeWeight*w.ResponseTime +
		dynAccuracyWeight*w.Accuracy +
		dynReputationWeight*w.Reputation +
		dynStakeWeight*w.Stake

	if len(history) > 0 {
		recent := history
		if len(recent) > recentHistoryWindow {
			recent = recent[len(recent)-recentHistoryWindow:]
		}
		score += recentBonusFactor * (mean(recent) - neutralRoundScore)
	}

	return clamp(score, MinWeightScore, MaxWeightScore)
}

// RankProviders scores every candidate, sorts descending and returns
// min(max(minProviders, available), maxProviders) providers. Score ties are
// broken by provider name so selection is reproducible.
func RankProviders(candidates []*ProviderNode, criteria SelectionCriteria) []*ProviderNode {
	type scored struct {
		node  *ProviderNode
		score float64
	}

	ranked := make([]scored, 0, len(candidates))
	for _, node := range candidates {
		ranked = append(ranked, scored{node: node, score: SelectionScore(node, criteria.WeightingStrategy)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].node.Provider.Name < ranked[j].node.Provider.Name
	})

	count := len(ranked)
	if count > criteria.MaxProviders {
		count = criteria.MaxProviders
	}

	selected := make([]*ProviderNode, 0, count)
	for _, s := range ranked[:count] {
		selected = append(selected, s.node)
	}
	return selected
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
