package oracle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher fans a query out concurrently to the selected providers, each
// call bounded by its own timeout. One provider's slowness or failure never
// delays another's: the full settled set is returned once every call has
// answered, errored, or hit its deadline.
type Dispatcher struct {
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher with the given per-call timeout
func NewDispatcher(callTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		callTimeout: callTimeout,
		logger:      logger,
	}
}

type fetchResult struct {
	value      interface{}
	confidence float64
	err        error
}

// Dispatch queries all selected providers concurrently and collects every
// outcome. Each provider's combined weight is snapshotted before the fan-out
// so the feedback loop cannot skew this round's aggregation weights.
// Cancelling ctx stops waiting for still-pending providers; they are settled
// as timeouts.
func (d *Dispatcher) Dispatch(ctx context.Context, dataType, subject string, selected []*ProviderNode) []Outcome {
	outcomes := make([]Outcome, len(selected))

	var wg sync.WaitGroup
	for i, node := range selected {
		wg.Add(1)

		name := node.Provider.Name
		fetcher := node.Provider.Fetcher
		weight := node.Weights.Combined

		go func(idx int) {
			defer wg.Done()
			outcomes[idx] = d.call(ctx, name, fetcher, weight, dataType, subject)
		}(i)
	}
	wg.Wait()

	return outcomes
}

// call runs one provider fetch under the per-call timeout. The fetch itself
// runs in its own goroutine with a buffered result channel so an adapter that
// ignores its context can be abandoned at the deadline without leaking a
// blocked sender.
func (d *Dispatcher) call(ctx context.Context, name string, fetcher Fetcher, weight float64, dataType, subject string) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan fetchResult, 1)

	go func() {
		value, confidence, err := fetcher.Fetch(callCtx, dataType, subject)
		resultCh <- fetchResult{value: value, confidence: confidence, err: err}
	}()

	select {
	case res := <-resultCh:
		latency := time.Since(start)
		if res.err != nil {
			d.logger.Warn("Provider call failed",
				zap.String("provider", name),
				zap.String("dataType", dataType),
				zap.String("subject", subject),
				zap.Duration("latency", latency),
				zap.Error(res.err))
			return Outcome{
				Provider: name,
				Failure:  FailureError,
				Err:      res.err,
				Weight:   weight,
				Latency:  latency,
			}
		}
		return Outcome{
			Provider: name,
			Response: &OracleResponse{
				Value:      res.value,
				Confidence: clamp(res.confidence, 0, 1),
				Timestamp:  time.Now(),
				Source:     name,
				Latency:    latency,
			},
			Weight:  weight,
			Latency: latency,
		}
	case <-callCtx.Done():
		latency := time.Since(start)
		d.logger.Warn("Provider call timed out",
			zap.String("provider", name),
			zap.String("dataType", dataType),
			zap.String("subject", subject),
			zap.Duration("timeout", d.callTimeout))
		return Outcome{
			Provider: name,
			Failure:  FailureTimeout,
			Err:      callCtx.Err(),
			Weight:   weight,
			Latency:  latency,
		}
	}
}
