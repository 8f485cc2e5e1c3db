package data

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"oracle_consensus/pkg/oracle"
)

// Error variables for consistent error handling
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate record")
	ErrInvalidRecord = errors.New("invalid record")
)

// RoundRecord is one persisted query round: what was asked, who answered,
// and the consensus the engine produced
type RoundRecord struct {
	ID          string                 `json:"id"`
	DataType    string                 `json:"data_type"`
	Subject     string                 `json:"subject"`
	Value       interface{}            `json:"value"`
	Confidence  float64                `json:"confidence"`
	Method      string                 `json:"method"`
	Sources     []string               `json:"sources"`
	Outliers    []string               `json:"outliers"`
	Failures    map[string]string      `json:"failures,omitempty"`
	Quality     oracle.QualityMetrics  `json:"quality_metrics"`
	Succeeded   bool                   `json:"succeeded"`
	CompletedAt time.Time              `json:"completed_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewRoundRecord builds a record from an emitted round outcome
func NewRoundRecord(outcome oracle.RoundOutcome) *RoundRecord {
	rec := &RoundRecord{
		ID:          outcome.RoundID,
		DataType:    outcome.DataType,
		Subject:     outcome.Subject,
		Failures:    outcome.Failures,
		CompletedAt: outcome.CompletedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if rec.ID == "" {
		// Failed rounds carry no result and therefore no round ID.
		rec.ID = uuid.New().String()
	}

	if outcome.Result != nil {
		rec.Value = outcome.Result.Value
		rec.Confidence = outcome.Result.Confidence
		rec.Method = string(outcome.Result.Method)
		rec.Sources = outcome.Result.Sources
		rec.Outliers = outcome.Result.Outliers
		rec.Quality = outcome.Result.Quality
		rec.Succeeded = true
	}

	return rec
}

// Validate checks if the round record is valid
func (r *RoundRecord) Validate() error {
	if r.ID == "" {
		return errors.New("round ID cannot be empty")
	}
	if r.DataType == "" {
		return errors.New("data type cannot be empty")
	}
	if r.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	if r.CompletedAt.IsZero() {
		return errors.New("completed_at cannot be zero")
	}
	return nil
}

// RoundFilter defines filter parameters for round queries
type RoundFilter struct {
	DataType  string
	Subject   string
	Succeeded *bool
	FromTime  *time.Time
	ToTime    *time.Time
	Limit     int
	Offset    int
}

// ProviderRecord captures one provider's weights and counters at a point in
// time, for offline analysis of weight evolution
type ProviderRecord struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Weights    oracle.WeightVector `json:"weights"`
	Requests   int64               `json:"total_requests"`
	Successes  int64               `json:"successful_requests"`
	AvgLatency float64             `json:"avg_response_time_ms"`
	CapturedAt time.Time           `json:"captured_at"`
}

// NewProviderRecord builds a record from a provider snapshot
func NewProviderRecord(snap oracle.ProviderSnapshot) *ProviderRecord {
	return &ProviderRecord{
		ID:         uuid.New().String(),
		Name:       snap.Name,
		Status:     string(snap.Status),
		Weights:    snap.Weights,
		Requests:   snap.Metrics.TotalRequests,
		Successes:  snap.Metrics.SuccessfulRequests,
		AvgLatency: snap.Metrics.AvgResponseTimeMs,
		CapturedAt: time.Now().UTC(),
	}
}
