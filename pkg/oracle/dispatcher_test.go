package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dispatchNodes(t *testing.T, fetchers map[string]Fetcher) []*ProviderNode {
	t.Helper()
	registry := newTestRegistry(t)
	for name, f := range fetchers {
		registerStub(t, registry, name, 70, f)
	}
	return registry.ActiveByCapability("price")
}

func TestDispatch_Success(t *testing.T) {
	nodes := dispatchNodes(t, map[string]Fetcher{
		"good": &stubFetcher{value: 42.0, confidence: 0.9},
	})

	d := NewDispatcher(time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), "price", "BTC", nodes)

	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Succeeded())
	assert.Equal(t, "good", outcomes[0].Provider)
	assert.Equal(t, 42.0, outcomes[0].Response.Value)
	assert.Equal(t, 0.9, outcomes[0].Response.Confidence)
	assert.Equal(t, "good", outcomes[0].Response.Source)
}

func TestDispatch_ProviderError(t *testing.T) {
	boom := errors.New("upstream 503")
	nodes := dispatchNodes(t, map[string]Fetcher{
		"broken": &stubFetcher{err: boom},
	})

	d := NewDispatcher(time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), "price", "BTC", nodes)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded())
	assert.Equal(t, FailureError, outcomes[0].Failure)
	assert.ErrorIs(t, outcomes[0].Err, boom)
}

func TestDispatch_Timeout(t *testing.T) {
	nodes := dispatchNodes(t, map[string]Fetcher{
		"slow": &stubFetcher{value: 1.0, confidence: 1, delay: 500 * time.Millisecond},
	})

	d := NewDispatcher(50*time.Millisecond, zap.NewNop())
	start := time.Now()
	outcomes := d.Dispatch(context.Background(), "price", "BTC", nodes)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 1)
	assert.Equal(t, FailureTimeout, outcomes[0].Failure)
	// The slow adapter is abandoned at the deadline, not waited for.
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestDispatch_IndependentCalls(t *testing.T) {
	nodes := dispatchNodes(t, map[string]Fetcher{
		"fast":   &stubFetcher{value: 100.0, confidence: 0.9},
		"slow":   &stubFetcher{value: 101.0, confidence: 0.9, delay: 300 * time.Millisecond},
		"broken": &stubFetcher{err: errors.New("boom")},
	})

	d := NewDispatcher(100*time.Millisecond, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), "price", "BTC", nodes)

	require.Len(t, outcomes, 3)

	byProvider := map[string]Outcome{}
	for _, o := range outcomes {
		byProvider[o.Provider] = o
	}

	fast := byProvider["fast"]
	assert.True(t, fast.Succeeded())
	assert.Equal(t, FailureTimeout, byProvider["slow"].Failure)
	assert.Equal(t, FailureError, byProvider["broken"].Failure)
}

func TestDispatch_ContextCancellationSettlesAsTimeout(t *testing.T) {
	nodes := dispatchNodes(t, map[string]Fetcher{
		"slow": &stubFetcher{value: 1.0, confidence: 1, delay: time.Second},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	d := NewDispatcher(5*time.Second, zap.NewNop())
	start := time.Now()
	outcomes := d.Dispatch(ctx, "price", "BTC", nodes)

	require.Len(t, outcomes, 1)
	assert.Equal(t, FailureTimeout, outcomes[0].Failure)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_SnapshotsWeightAtSelection(t *testing.T) {
	registry := newTestRegistry(t)
	registerStub(t, registry, "p1", 70, &stubFetcher{value: 1.0, confidence: 1})
	nodes := registry.ActiveByCapability("price")

	want := nodes[0].Weights.Combined

	d := NewDispatcher(time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), "price", "BTC", nodes)

	require.Len(t, outcomes, 1)
	assert.Equal(t, want, outcomes[0].Weight)
}
