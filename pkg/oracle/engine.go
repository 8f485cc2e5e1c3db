package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"oracle_consensus/pkg/config"
)

// Engine is the consensus aggregation engine: it selects providers for a
// query, fans the query out, cleans the response set, aggregates it and
// feeds the outcome back into provider weights.
type Engine struct {
	registry   *Registry
	dispatcher *Dispatcher
	feedback   *FeedbackLoop
	defaults   SelectionCriteria
	events     chan RoundOutcome
	logger     *zap.Logger
	metrics    *EngineMetrics

	// roundMu serializes rounds: the feedback loop's read-modify-write of
	// provider weights assumes a single in-flight query.
	roundMu    sync.Mutex
	defaultsMu sync.RWMutex
}

// EngineMetrics tracks engine-level counters
type EngineMetrics struct {
	RoundsCompleted int64
	RoundsFailed    int64
	EventsDropped   int64
	AverageLatency  time.Duration
	LastRound       time.Time
	mu              sync.RWMutex
}

// EngineStats is a read-only copy of the engine counters
type EngineStats struct {
	RoundsCompleted int64
	RoundsFailed    int64
	EventsDropped   int64
	AverageLatency  time.Duration
	LastRound       time.Time
}

// NewEngine creates the engine from its registry and configuration
func NewEngine(registry *Registry, logger *zap.Logger, cfg *config.OracleConfig) (*Engine, error) {
	defaults := SelectionCriteria{
		MinProviders:       cfg.MinProviders,
		MaxProviders:       cfg.MaxProviders,
		OutlierThreshold:   cfg.OutlierThreshold,
		ConsensusThreshold: cfg.ConsensusThreshold,
		WeightingStrategy:  WeightingStrategy(cfg.WeightingStrategy),
		AggregationMethod:  AggregationMethod(cfg.AggregationMethod),
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}

	return &Engine{
		registry:   registry,
		dispatcher: NewDispatcher(cfg.CallTimeout, logger),
		feedback:   NewFeedbackLoop(registry, cfg.CallTimeout, logger),
		defaults:   defaults,
		events:     make(chan RoundOutcome, cfg.EventBuffer),
		logger:     logger,
		metrics:    &EngineMetrics{},
	}, nil
}

// Query runs one complete round for dataType/subject and returns the
// consensus result. A nil criteria falls back to the engine defaults.
func (e *Engine) Query(ctx context.Context, dataType, subject string, criteria *SelectionCriteria) (*ConsensusResult, error) {
	if dataType == "" || subject == "" {
		return nil, fmt.Errorf("%w: data type and subject cannot be empty", ErrInvalidCriteria)
	}

	crit := e.DefaultCriteria()
	if criteria != nil {
		if err := criteria.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
		}
		crit = *criteria
	}

	e.roundMu.Lock()
	defer e.roundMu.Unlock()

	start := time.Now()

	candidates := e.registry.ActiveByCapability(dataType)
	if len(candidates) == 0 {
		e.recordRound(start, false)
		return nil, &InsufficientProvidersError{
			DataType: dataType,
			Subject:  subject,
			Failures: map[string]string{},
		}
	}

	selected := RankProviders(candidates, crit)
	selectedNames := make([]string, 0, len(selected))
	for _, node := range selected {
		selectedNames = append(selectedNames, node.Provider.Name)
	}

	e.logger.Debug("Providers selected",
		zap.String("dataType", dataType),
		zap.String("subject", subject),
		zap.Strings("providers", selectedNames),
		zap.String("strategy", string(crit.WeightingStrategy)))

	outcomes := e.dispatcher.Dispatch(ctx, dataType, subject, selected)

	successes := make([]Outcome, 0, len(outcomes))
	failures := make(map[string]string)
	for _, o := range outcomes {
		if o.Succeeded() {
			successes = append(successes, o)
		} else {
			failures[o.Provider] = failureReason(o)
		}
	}

	if len(successes) == 0 {
		// Failed rounds still teach the feedback loop about latency.
		e.feedback.Apply(outcomes, nil)
		e.emit(RoundOutcome{
			DataType:    dataType,
			Subject:     subject,
			Selected:    selectedNames,
			Failures:    failures,
			CompletedAt: time.Now(),
		})
		e.recordRound(start, false)
		return nil, &InsufficientProvidersError{
			DataType: dataType,
			Subject:  subject,
			Failures: failures,
		}
	}

	clean, outliers, penalized := DetectOutliers(successes, len(selected), crit)
	if penalized {
		e.logger.Warn("Outlier removal skipped to preserve consensus threshold",
			zap.String("dataType", dataType),
			zap.String("subject", subject),
			zap.Int("responses", len(successes)),
			zap.Float64("consensusThreshold", crit.ConsensusThreshold))
	}

	result := Aggregate(clean, outliers, crit.AggregationMethod, penalized, time.Now())

	outlierSet := make(map[string]bool, len(outliers))
	for _, o := range outliers {
		outlierSet[o.Provider] = true
	}
	e.feedback.Apply(outcomes, outlierSet)

	e.emit(RoundOutcome{
		RoundID:     result.RoundID,
		DataType:    dataType,
		Subject:     subject,
		Selected:    selectedNames,
		Failures:    failures,
		Result:      result,
		CompletedAt: time.Now(),
	})
	e.recordRound(start, true)

	e.logger.Info("Round completed",
		zap.String("roundID", result.RoundID),
		zap.String("dataType", dataType),
		zap.String("subject", subject),
		zap.Int("sources", len(result.Sources)),
		zap.Int("outliers", len(result.Outliers)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// GetProviderMetrics returns a read-only snapshot of every provider's
// weights, metrics and status
func (e *Engine) GetProviderMetrics() []ProviderSnapshot {
	return e.registry.Snapshot()
}

// DefaultCriteria returns the current process-wide default criteria
func (e *Engine) DefaultCriteria() SelectionCriteria {
	e.defaultsMu.RLock()
	defer e.defaultsMu.RUnlock()
	return e.defaults
}

// UpdateDefaultCriteria swaps the process-wide defaults. Out-of-range
// criteria are rejected and the previous defaults stay in effect.
func (e *Engine) UpdateDefaultCriteria(criteria SelectionCriteria) error {
	if err := criteria.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}

	e.defaultsMu.Lock()
	e.defaults = criteria
	e.defaultsMu.Unlock()

	e.logger.Info("Default selection criteria updated",
		zap.Int("minProviders", criteria.MinProviders),
		zap.Int("maxProviders", criteria.MaxProviders),
		zap.String("strategy", string(criteria.WeightingStrategy)),
		zap.String("method", string(criteria.AggregationMethod)))
	return nil
}

// Events exposes the round outcome stream for audit sinks. The engine never
// blocks on a slow or absent consumer.
func (e *Engine) Events() <-chan RoundOutcome {
	return e.events
}

// GetEngineStats returns current engine counters
func (e *Engine) GetEngineStats() EngineStats {
	e.metrics.mu.RLock()
	defer e.metrics.mu.RUnlock()

	return EngineStats{
		RoundsCompleted: e.metrics.RoundsCompleted,
		RoundsFailed:    e.metrics.RoundsFailed,
		EventsDropped:   e.metrics.EventsDropped,
		AverageLatency:  e.metrics.AverageLatency,
		LastRound:       e.metrics.LastRound,
	}
}

// emit publishes a round outcome without ever blocking the query path. If
// the buffer is full the event is dropped and counted.
func (e *Engine) emit(outcome RoundOutcome) {
	select {
	case e.events <- outcome:
	default:
		e.metrics.mu.Lock()
		e.metrics.EventsDropped++
		e.metrics.mu.Unlock()
		e.logger.Warn("Round outcome dropped: event buffer full",
			zap.String("roundID", outcome.RoundID),
			zap.String("dataType", outcome.DataType))
	}
}

func (e *Engine) recordRound(start time.Time, ok bool) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	if ok {
		e.metrics.RoundsCompleted++
	} else {
		e.metrics.RoundsFailed++
	}
	e.metrics.AverageLatency = (e.metrics.AverageLatency*9 + time.Since(start)) / 10
	e.metrics.LastRound = time.Now()
}

func failureReason(o Outcome) string {
	if o.Failure == FailureTimeout {
		return "timeout"
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return "provider error"
}
