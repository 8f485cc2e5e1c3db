package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oracle_consensus/pkg/oracle"
)

func TestAuditSink_PersistsRoundOutcomes(t *testing.T) {
	repo := NewMockRepository()
	events := make(chan oracle.RoundOutcome, 4)

	sink := NewAuditSink(repo, events, zap.NewNop())
	sink.Start()
	defer sink.Stop()

	events <- completedOutcome("round-1")

	require.Eventually(t, func() bool {
		return repo.RoundCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	record, err := repo.GetRound(context.Background(), "round-1")
	require.NoError(t, err)
	assert.Equal(t, "price", record.DataType)
	assert.Equal(t, 101.0, record.Value)
	assert.True(t, record.Succeeded)
}

func TestAuditSink_PersistsFailedRounds(t *testing.T) {
	repo := NewMockRepository()
	events := make(chan oracle.RoundOutcome, 4)

	sink := NewAuditSink(repo, events, zap.NewNop())
	sink.Start()
	defer sink.Stop()

	events <- oracle.RoundOutcome{
		DataType:    "price",
		Subject:     "BTC",
		Selected:    []string{"alpha"},
		Failures:    map[string]string{"alpha": "timeout"},
		CompletedAt: time.Now(),
	}

	require.Eventually(t, func() bool {
		return repo.RoundCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	records, err := repo.ListRounds(context.Background(), RoundFilter{DataType: "price"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Succeeded)
}

func TestAuditSink_SurvivesPersistenceFailure(t *testing.T) {
	repo := NewMockRepository()
	events := make(chan oracle.RoundOutcome, 4)

	sink := NewAuditSink(repo, events, zap.NewNop())
	sink.Start()
	defer sink.Stop()

	// Duplicate ID: the second save fails, the third still lands.
	events <- completedOutcome("round-1")
	events <- completedOutcome("round-1")
	events <- completedOutcome("round-2")

	require.Eventually(t, func() bool {
		return repo.RoundCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAuditSink_StopIsIdempotent(t *testing.T) {
	repo := NewMockRepository()
	events := make(chan oracle.RoundOutcome)

	sink := NewAuditSink(repo, events, zap.NewNop())
	sink.Start()

	sink.Stop()
	sink.Stop() // must not panic or block
}

func TestAuditSink_StopsOnClosedStream(t *testing.T) {
	repo := NewMockRepository()
	events := make(chan oracle.RoundOutcome, 1)

	sink := NewAuditSink(repo, events, zap.NewNop())
	sink.Start()

	events <- completedOutcome("round-1")
	close(events)

	require.Eventually(t, func() bool {
		return repo.RoundCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The drain loop exits on its own once the stream closes.
	sink.Stop()
}
