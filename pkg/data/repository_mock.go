package data

import (
	"context"
	"sort"
	"sync"
)

// MockRepository is an in-memory Repository for tests and for running the
// engine without a database
type MockRepository struct {
	rounds    map[string]*RoundRecord
	snapshots []*ProviderRecord
	mu        sync.RWMutex
}

// Ensure MockRepository implements the Repository interface
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		rounds: make(map[string]*RoundRecord),
	}
}

func (m *MockRepository) SaveRound(ctx context.Context, record *RoundRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rounds[record.ID]; exists {
		return ErrDuplicate
	}
	m.rounds[record.ID] = record
	return nil
}

func (m *MockRepository) GetRound(ctx context.Context, id string) (*RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (m *MockRepository) ListRounds(ctx context.Context, filter RoundFilter) ([]*RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*RoundRecord
	for _, r := range m.rounds {
		if filter.DataType != "" && r.DataType != filter.DataType {
			continue
		}
		if filter.Subject != "" && r.Subject != filter.Subject {
			continue
		}
		if filter.Succeeded != nil && r.Succeeded != *filter.Succeeded {
			continue
		}
		if filter.FromTime != nil && r.CompletedAt.Before(*filter.FromTime) {
			continue
		}
		if filter.ToTime != nil && r.CompletedAt.After(*filter.ToTime) {
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return nil, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(records) {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (m *MockRepository) SaveProviderRecord(ctx context.Context, record *ProviderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots = append(m.snapshots, record)
	return nil
}

func (m *MockRepository) ListProviderRecords(ctx context.Context, name string, limit int) ([]*ProviderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*ProviderRecord
	for _, s := range m.snapshots {
		if s.Name == name {
			records = append(records, s)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CapturedAt.After(records[j].CapturedAt)
	})

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// RoundCount returns the number of stored rounds
func (m *MockRepository) RoundCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rounds)
}
