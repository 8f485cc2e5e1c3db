package oracle

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry holds the set of registered providers and their runtime state.
// Registrations happen at startup; the query path only reads the provider
// list, so the lock is held briefly and never across a provider call.
type Registry struct {
	nodes  map[string]*ProviderNode
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty provider registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		nodes:  make(map[string]*ProviderNode),
		logger: logger,
	}
}

// Register adds a provider or, if one with the same name exists, replaces its
// capability descriptor while preserving accumulated weights and metrics.
func (r *Registry) Register(p Provider) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating provider: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[p.Name]; ok {
		existing.Provider = p
		existing.Weights.Reliability = p.Reliability
		r.logger.Info("Provider re-registered",
			zap.String("provider", p.Name),
			zap.Strings("dataTypes", p.DataTypes))
		return nil
	}

	r.nodes[p.Name] = &ProviderNode{
		Provider: p,
		Weights: WeightVector{
			Reliability:  p.Reliability,
			ResponseTime: 50,
			Accuracy:     50,
			Stake:        50,
			Reputation:   50,
			Combined:     dynamicScore(WeightVector{
				Reliability:  p.Reliability,
				ResponseTime: 50,
				Accuracy:     50,
				Stake:        50,
				Reputation:   50,
			}, nil),
		},
		Status: ProviderStatusActive,
	}

	r.logger.Info("Provider registered",
		zap.String("provider", p.Name),
		zap.String("kind", p.Kind),
		zap.Strings("dataTypes", p.DataTypes),
		zap.Float64("reliability", p.Reliability))

	return nil
}

// Get retrieves a provider node by name
func (r *Registry) Get(name string) (*ProviderNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return node, nil
}

// ListByCapability returns all providers that can answer the given data type,
// regardless of status
func (r *Registry) ListByCapability(dataType string) []*ProviderNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*ProviderNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Provider.SupportsDataType(dataType) {
			nodes = append(nodes, node)
		}
	}
	sortNodesByName(nodes)
	return nodes
}

// ListActive returns all providers whose status is active
func (r *Registry) ListActive() []*ProviderNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*ProviderNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Status == ProviderStatusActive {
			nodes = append(nodes, node)
		}
	}
	sortNodesByName(nodes)
	return nodes
}

// ActiveByCapability returns the candidate set for a round: providers that
// are both active and capable of answering the data type
func (r *Registry) ActiveByCapability(dataType string) []*ProviderNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*ProviderNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.Status == ProviderStatusActive && node.Provider.SupportsDataType(dataType) {
			nodes = append(nodes, node)
		}
	}
	sortNodesByName(nodes)
	return nodes
}

// SetStatus flips a provider's health status. Used only by the health
// checker; touches nothing the query or feedback paths read concurrently.
func (r *Registry) SetStatus(name string, status ProviderStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	if node.Status != status {
		r.logger.Info("Provider status changed",
			zap.String("provider", name),
			zap.String("from", string(node.Status)),
			zap.String("to", string(status)))
	}

	node.Status = status
	node.LastHealthCheck = checkedAt
	return nil
}

// UpdateNode applies fn to the named node under the registry write lock.
// The feedback loop is the only caller on the query path; rounds are
// serialized by the engine, so each update is a clean read-modify-write.
func (r *Registry) UpdateNode(name string, fn func(*ProviderNode)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	fn(node)
	return nil
}

// List returns every registered provider, sorted by name
func (r *Registry) List() []*ProviderNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*ProviderNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sortNodesByName(nodes)
	return nodes
}

// Snapshot returns a read-only copy of every provider's current state,
// sorted by name
func (r *Registry) Snapshot() []ProviderSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]ProviderSnapshot, 0, len(r.nodes))
	for _, node := range r.nodes {
		metrics := node.Metrics
		metrics.History = append([]float64(nil), node.Metrics.History...)

		snapshots = append(snapshots, ProviderSnapshot{
			Name:            node.Provider.Name,
			Kind:            node.Provider.Kind,
			DataTypes:       append([]string(nil), node.Provider.DataTypes...),
			Status:          node.Status,
			Weights:         node.Weights,
			Metrics:         metrics,
			LastHealthCheck: node.LastHealthCheck,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})
	return snapshots
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

func sortNodesByName(nodes []*ProviderNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Provider.Name < nodes[j].Provider.Name
	})
}
