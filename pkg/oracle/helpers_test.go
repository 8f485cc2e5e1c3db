package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubFetcher is a canned provider adapter. A non-zero delay is served with
// time.Sleep so the stub ignores its context, like a misbehaving adapter.
type stubFetcher struct {
	value      interface{}
	confidence float64
	err        error
	delay      time.Duration
	healthErr  error
}

func (f *stubFetcher) Fetch(ctx context.Context, dataType, subject string) (interface{}, float64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.value, f.confidence, nil
}

func (f *stubFetcher) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zap.NewNop())
}

func registerStub(t *testing.T, r *Registry, name string, reliability float64, fetcher Fetcher) {
	t.Helper()
	err := r.Register(Provider{
		Name:        name,
		Kind:        "test",
		DataTypes:   []string{"price"},
		Reliability: reliability,
		Fetcher:     fetcher,
	})
	require.NoError(t, err)
}

func successOutcome(provider string, value interface{}, confidence, weight float64, ts time.Time) Outcome {
	return Outcome{
		Provider: provider,
		Response: &OracleResponse{
			Value:      value,
			Confidence: confidence,
			Timestamp:  ts,
			Source:     provider,
		},
		Weight: weight,
	}
}
