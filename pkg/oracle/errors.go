package oracle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error variables for consistent error handling
var (
	ErrInvalidCriteria       = errors.New("invalid selection criteria")
	ErrInsufficientProviders = errors.New("insufficient providers")
	ErrProviderNotFound      = errors.New("provider not found")
)

// InsufficientProvidersError is returned when a round produces zero usable
// responses. It names every attempted provider and its failure reason.
type InsufficientProvidersError struct {
	DataType string
	Subject  string
	Failures map[string]string // provider name -> reason
}

func (e *InsufficientProvidersError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Failures[name]))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("insufficient providers for %s/%s: no provider supports this data type",
			e.DataType, e.Subject)
	}
	return fmt.Sprintf("insufficient providers for %s/%s: %s",
		e.DataType, e.Subject, strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrInsufficientProviders)
func (e *InsufficientProvidersError) Unwrap() error {
	return ErrInsufficientProviders
}

// AttemptedProviders returns the names of all providers tried in the failed
// round, sorted for determinism
func (e *InsufficientProvidersError) AttemptedProviders() []string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
