package oracle

import (
	"time"

	"go.uber.org/zap"
)

// Every 100ms of average latency costs one response-time weight point
const latencyCostDivisorMs = 100.0

// FeedbackLoop folds each round's outcomes back into the dispatched
// providers' weights and metrics. It runs synchronously at the end of the
// query path, after the result is ready, so the next round always observes
// the updated weights.
type FeedbackLoop struct {
	registry    *Registry
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewFeedbackLoop creates a feedback loop bound to the registry. callTimeout
// is charged as the latency of a timed-out provider.
func NewFeedbackLoop(registry *Registry, callTimeout time.Duration, logger *zap.Logger) *FeedbackLoop {
	return &FeedbackLoop{
		registry:    registry,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Apply updates every dispatched provider, success or failure. outlierSet
// names the providers whose responses were rejected as outliers; their
// responses count as unusable for this round.
func (f *FeedbackLoop) Apply(outcomes []Outcome, outlierSet map[string]bool) {
	now := time.Now()

	for _, outcome := range outcomes {
		o := outcome
		usable := o.Succeeded() && !outlierSet[o.Provider]

		latencyMs := float64(o.Latency.Milliseconds())
		if o.Failure == FailureTimeout {
			// Timed-out calls are charged the full per-call budget.
			latencyMs = float64(f.callTimeout.Milliseconds())
		}

		roundScore := 0.0
		if usable {
			roundScore = o.Response.Confidence * 100
		}

		err := f.registry.UpdateNode(o.Provider, func(node *ProviderNode) {
			node.Metrics.TotalRequests++
			if usable {
				node.Metrics.SuccessfulRequests++
			}

			total := float64(node.Metrics.TotalRequests)
			node.Metrics.AvgResponseTimeMs += (latencyMs - node.Metrics.AvgResponseTimeMs) / total
			node.Weights.ResponseTime = clamp(
				MaxWeightScore-node.Metrics.AvgResponseTimeMs/latencyCostDivisorMs,
				MinWeightScore, MaxWeightScore)

			node.Metrics.History = append(node.Metrics.History, roundScore)
			if len(node.Metrics.History) > MaxHistoryLength {
				node.Metrics.History = node.Metrics.History[len(node.Metrics.History)-MaxHistoryLength:]
			}
			node.Metrics.LastUpdated = now

			node.Weights.Accuracy = mean(node.Metrics.History)

			// Weights always evolve dynamically, whatever strategy the
			// round used for selection.
			node.Weights.Combined = dynamicScore(node.Weights, node.Metrics.History)
		})
		if err != nil {
			f.logger.Warn("Feedback skipped unknown provider",
				zap.String("provider", o.Provider),
				zap.Error(err))
		}
	}
}
