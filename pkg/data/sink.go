package data

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"oracle_consensus/pkg/oracle"
)

// AuditSink drains the engine's round outcome stream and persists each
// outcome. It runs entirely off the query path; a slow database can never
// delay a round.
type AuditSink struct {
	repo    Repository
	events  <-chan oracle.RoundOutcome
	timeout time.Duration
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewAuditSink creates a sink consuming the given event stream
func NewAuditSink(repo Repository, events <-chan oracle.RoundOutcome, logger *zap.Logger) *AuditSink {
	return &AuditSink{
		repo:    repo,
		events:  events,
		timeout: 10 * time.Second,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start begins draining events until Stop is called
func (s *AuditSink) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx)
	s.logger.Info("Audit sink started")
}

// Stop halts the sink and waits for the drain loop to exit
func (s *AuditSink) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.logger.Info("Audit sink stopped")
	})
}

func (s *AuditSink) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case outcome, ok := <-s.events:
			if !ok {
				return
			}
			s.persist(ctx, outcome)
		}
	}
}

func (s *AuditSink) persist(ctx context.Context, outcome oracle.RoundOutcome) {
	record := NewRoundRecord(outcome)

	saveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.SaveRound(saveCtx, record); err != nil {
		s.logger.Warn("Persisting round outcome failed",
			zap.String("roundID", record.ID),
			zap.String("dataType", record.DataType),
			zap.Error(err))
		return
	}

	s.logger.Debug("Round outcome persisted",
		zap.String("roundID", record.ID),
		zap.Bool("succeeded", record.Succeeded))
}
