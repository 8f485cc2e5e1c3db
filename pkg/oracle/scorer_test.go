package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testNode(w WeightVector, history []float64) *ProviderNode {
	return &ProviderNode{
		Weights: w,
		Metrics: PerformanceMetrics{History: history},
	}
}

func TestSelectionScore_Strategies(t *testing.T) {
	node := testNode(WeightVector{
		Reliability:  80,
		ResponseTime: 60,
		Accuracy:     70,
		Stake:        40,
		Reputation:   50,
	}, nil)

	tests := []struct {
		name     string
		strategy WeightingStrategy
		want     float64
	}{
		{name: "Equal", strategy: StrategyEqual, want: 50},
		{name: "Reliability", strategy: StrategyReliability, want: 80},
		{name: "Performance", strategy: StrategyPerformance, want: 65},
		{name: "Stake", strategy: StrategyStake, want: 40},
		// 0.25*80 + 0.20*60 + 0.25*70 + 0.15*50 + 0.15*40 = 63
		{name: "Dynamic", strategy: StrategyDynamic, want: 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SelectionScore(node, tt.strategy), 1e-9)
		})
	}
}

func TestDynamicScore_RecentHistoryBonus(t *testing.T) {
	weights := WeightVector{
		Reliability:  80,
		ResponseTime: 60,
		Accuracy:     70,
		Stake:        40,
		Reputation:   50,
	}

	t.Run("PerfectRecentHistory", func(t *testing.T) {
		history := []float64{100, 100, 100, 100, 100}
		assert.InDelta(t, 68, dynamicScore(weights, history), 1e-9)
	})

	t.Run("WorstRecentHistory", func(t *testing.T) {
		history := []float64{0, 0, 0, 0, 0}
		assert.InDelta(t, 58, dynamicScore(weights, history), 1e-9)
	})

	t.Run("OnlyLastFiveCount", func(t *testing.T) {
		// Five zeros followed by five hundreds: only the hundreds matter.
		history := []float64{0, 0, 0, 0, 0, 100, 100, 100, 100, 100}
		assert.InDelta(t, 68, dynamicScore(weights, history), 1e-9)
	})

	t.Run("ClampedAtHundred", func(t *testing.T) {
		maxed := WeightVector{
			Reliability:  100,
			ResponseTime: 100,
			Accuracy:     100,
			Stake:        100,
			Reputation:   100,
		}
		history := []float64{100, 100, 100, 100, 100}
		assert.Equal(t, 100.0, dynamicScore(maxed, history))
	})

	t.Run("ClampedAtZero", func(t *testing.T) {
		zeroed := WeightVector{}
		history := []float64{0, 0, 0, 0, 0}
		assert.Equal(t, 0.0, dynamicScore(zeroed, history))
	})
}

func TestRankProviders_TieBreakByName(t *testing.T) {
	nodes := []*ProviderNode{}
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		node := testNode(WeightVector{Reliability: 70}, nil)
		node.Provider = Provider{Name: name}
		nodes = append(nodes, node)
	}

	criteria := DefaultSelectionCriteria()
	criteria.WeightingStrategy = StrategyEqual
	criteria.MaxProviders = 2

	selected := RankProviders(nodes, criteria)
	assert.Len(t, selected, 2)
	assert.Equal(t, "alpha", selected[0].Provider.Name)
	assert.Equal(t, "bravo", selected[1].Provider.Name)
}

func TestRankProviders_ScoreOrdering(t *testing.T) {
	low := testNode(WeightVector{Reliability: 20}, nil)
	low.Provider = Provider{Name: "low"}
	high := testNode(WeightVector{Reliability: 90}, nil)
	high.Provider = Provider{Name: "high"}

	criteria := DefaultSelectionCriteria()
	criteria.WeightingStrategy = StrategyReliability

	selected := RankProviders([]*ProviderNode{low, high}, criteria)
	assert.Equal(t, "high", selected[0].Provider.Name)
	assert.Equal(t, "low", selected[1].Provider.Name)
}

func TestRankProviders_MaxProvidersCap(t *testing.T) {
	nodes := []*ProviderNode{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		node := testNode(WeightVector{Reliability: 50}, nil)
		node.Provider = Provider{Name: name}
		nodes = append(nodes, node)
	}

	criteria := DefaultSelectionCriteria()
	selected := RankProviders(nodes, criteria)
	assert.Len(t, selected, criteria.MaxProviders)
}

func TestRankProviders_FewerAvailableThanMin(t *testing.T) {
	node := testNode(WeightVector{Reliability: 50}, nil)
	node.Provider = Provider{Name: "only"}

	criteria := DefaultSelectionCriteria()
	criteria.MinProviders = 3

	// Selection breadth is a target, not a success requirement.
	selected := RankProviders([]*ProviderNode{node}, criteria)
	assert.Len(t, selected, 1)
}
