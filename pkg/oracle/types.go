package oracle

import (
	"context"
	"errors"
	"time"
)

// WeightingStrategy selects how a provider's selection score is derived
type WeightingStrategy string

const (
	StrategyEqual       WeightingStrategy = "equal"
	StrategyReliability WeightingStrategy = "reliability"
	StrategyPerformance WeightingStrategy = "performance"
	StrategyStake       WeightingStrategy = "stake"
	StrategyDynamic     WeightingStrategy = "dynamic"
)

// AggregationMethod selects how surviving responses are combined
type AggregationMethod string

const (
	MethodMedian          AggregationMethod = "median"
	MethodWeightedMedian  AggregationMethod = "weightedMedian"
	MethodAverage         AggregationMethod = "average"
	MethodWeightedAverage AggregationMethod = "weightedAverage"
)

// ProviderStatus represents a provider's health state
type ProviderStatus string

const (
	ProviderStatusActive ProviderStatus = "active"
	ProviderStatusError  ProviderStatus = "error"
)

const (
	// Weight score bounds
	MinWeightScore = 0.0
	MaxWeightScore = 100.0

	// Bounded performance history length
	MaxHistoryLength = 10

	// Responses older than this contribute zero freshness
	FreshnessWindow = 5 * time.Minute
)

// Fetcher is the single capability the engine consumes from a provider
// adapter. Implementations map one REST call (or similar) to a value and a
// self-declared confidence in [0,1].
type Fetcher interface {
	Fetch(ctx context.Context, dataType string, subject string) (value interface{}, confidence float64, err error)
}

// HealthReporter is optionally implemented by adapters that support a cheap
// liveness probe. Providers without it are assumed healthy.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// Provider describes a registered data source: immutable identity plus the
// adapter used to query it.
type Provider struct {
	Name        string
	Kind        string
	DataTypes   []string
	Reliability float64 // declared baseline, 0-100
	Fetcher     Fetcher
}

// Validate checks if the provider definition is valid
func (p *Provider) Validate() error {
	if p.Name == "" {
		return errors.New("provider name cannot be empty")
	}
	if p.Reliability < MinWeightScore || p.Reliability > MaxWeightScore {
		return errors.New("reliability must be between 0 and 100")
	}
	if len(p.DataTypes) == 0 {
		return errors.New("provider must declare at least one data type")
	}
	if p.Fetcher == nil {
		return errors.New("provider fetcher cannot be nil")
	}
	return nil
}

// SupportsDataType reports whether the provider can answer the given data type
func (p *Provider) SupportsDataType(dataType string) bool {
	for _, dt := range p.DataTypes {
		if dt == dataType {
			return true
		}
	}
	return false
}

// WeightVector holds the five independent 0-100 scores of a provider.
// Combined is derived from the other five and never set directly.
type WeightVector struct {
	Reliability  float64 `json:"reliability"`
	ResponseTime float64 `json:"response_time"`
	Accuracy     float64 `json:"accuracy"`
	Stake        float64 `json:"stake"`
	Reputation   float64 `json:"reputation"`
	Combined     float64 `json:"combined"`
}

// PerformanceMetrics holds a provider's running counters. Mutated only by the
// feedback loop after each round.
type PerformanceMetrics struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	AvgResponseTimeMs  float64   `json:"avg_response_time_ms"`
	History            []float64 `json:"performance_history"` // last 10 round scores, 0-100
	LastUpdated        time.Time `json:"last_updated"`
}

// ProviderNode is a provider plus its mutable runtime state. It is the unit
// the scorer and dispatcher operate on.
type ProviderNode struct {
	Provider        Provider
	Weights         WeightVector
	Metrics         PerformanceMetrics
	Status          ProviderStatus
	LastHealthCheck time.Time
}

// SelectionCriteria configures one query round. Zero-valued fields are not
// allowed; callers either pass a fully populated value or nil to use the
// engine defaults.
type SelectionCriteria struct {
	MinProviders       int               `mapstructure:"min_providers" json:"min_providers"`
	MaxProviders       int               `mapstructure:"max_providers" json:"max_providers"`
	OutlierThreshold   float64           `mapstructure:"outlier_threshold" json:"outlier_threshold"`
	ConsensusThreshold float64           `mapstructure:"consensus_threshold" json:"consensus_threshold"`
	WeightingStrategy  WeightingStrategy `mapstructure:"weighting_strategy" json:"weighting_strategy"`
	AggregationMethod  AggregationMethod `mapstructure:"aggregation_method" json:"aggregation_method"`
}

// DefaultSelectionCriteria returns the process-wide fallback criteria
func DefaultSelectionCriteria() SelectionCriteria {
	return SelectionCriteria{
		MinProviders:       1,
		MaxProviders:       5,
		OutlierThreshold:   0.2,
		ConsensusThreshold: 0.6,
		WeightingStrategy:  StrategyDynamic,
		AggregationMethod:  MethodWeightedMedian,
	}
}

// Validate checks if the criteria are usable for a round
func (c *SelectionCriteria) Validate() error {
	if c.MinProviders < 1 {
		return errors.New("min_providers must be at least 1")
	}
	if c.MaxProviders < c.MinProviders {
		return errors.New("max_providers cannot be less than min_providers")
	}
	if c.OutlierThreshold < 0 {
		return errors.New("outlier_threshold cannot be negative")
	}
	if c.ConsensusThreshold < 0 || c.ConsensusThreshold > 1 {
		return errors.New("consensus_threshold must be between 0 and 1")
	}
	switch c.WeightingStrategy {
	case StrategyEqual, StrategyReliability, StrategyPerformance, StrategyStake, StrategyDynamic:
	default:
		return errors.New("unknown weighting strategy")
	}
	switch c.AggregationMethod {
	case MethodMedian, MethodWeightedMedian, MethodAverage, MethodWeightedAverage:
	default:
		return errors.New("unknown aggregation method")
	}
	return nil
}

// OracleResponse is one provider's answer within a round
type OracleResponse struct {
	Value      interface{}   `json:"value"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
	Source     string        `json:"source"`
	Latency    time.Duration `json:"latency"`
}

// FailureKind classifies a provider call failure
type FailureKind string

const (
	FailureTimeout FailureKind = "timeout"
	FailureError   FailureKind = "error"
)

// Outcome is the settled result of one dispatched provider call: either a
// response or a typed failure, plus the provider's combined weight snapshotted
// at selection time.
type Outcome struct {
	Provider string
	Response *OracleResponse // nil on failure
	Failure  FailureKind     // empty on success
	Err      error
	Weight   float64
	Latency  time.Duration
}

// Succeeded reports whether the call produced a usable response
func (o *Outcome) Succeeded() bool {
	return o.Response != nil
}

// QualityMetrics describes the quality of an aggregated result
type QualityMetrics struct {
	Accuracy    float64 `json:"accuracy"`
	Freshness   float64 `json:"freshness"`
	Consistency float64 `json:"consistency"`
}

// ConsensusResult is the engine's output for one round
type ConsensusResult struct {
	RoundID    string            `json:"round_id"`
	Value      interface{}       `json:"value"`
	Confidence float64           `json:"confidence"`
	Method     AggregationMethod `json:"method"`
	Sources    []string          `json:"sources"`
	Outliers   []string          `json:"outliers"`
	Quality    QualityMetrics    `json:"quality_metrics"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ProviderSnapshot is a read-only copy of a provider's current state, for
// monitoring dashboards
type ProviderSnapshot struct {
	Name            string             `json:"name"`
	Kind            string             `json:"kind"`
	DataTypes       []string           `json:"data_types"`
	Status          ProviderStatus     `json:"status"`
	Weights         WeightVector       `json:"weights"`
	Metrics         PerformanceMetrics `json:"metrics"`
	LastHealthCheck time.Time          `json:"last_health_check"`
}

// RoundOutcome is emitted after every round for external audit sinks. The
// engine never blocks on its consumption.
type RoundOutcome struct {
	RoundID     string            `json:"round_id"`
	DataType    string            `json:"data_type"`
	Subject     string            `json:"subject"`
	Selected    []string          `json:"selected"`
	Failures    map[string]string `json:"failures,omitempty"`
	Result      *ConsensusResult  `json:"result,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}
