// Package advisor defines the Advisor interface for trade decision logic and
// provides a Registry for managing multiple advisor implementations.
package advisor

import (
	"context"
	"sort"

	"moextrader/internal/domain"
)

// Intent is a concrete trade proposal for one ticker. Quantity is in lots and
// always positive; Direction carries the side.
type Intent struct {
	Ticker    string
	Direction domain.Direction
	Quantity  int
}

// Advisor inspects a ticker's candle history together with the current
// account state and proposes at most one trade.
type Advisor interface {
	// Name returns the unique identifier for this advisor.
	Name() string

	// Advise returns a trade intent, or nil when the advisor has no opinion.
	// pos is nil when the account holds no position in the ticker.
	Advise(ctx context.Context, ticker string, candles []domain.Candle, pos *domain.Position, cash float64) (*Intent, error)
}

// Registry holds a named collection of advisors for lookup and enumeration.
type Registry struct {
	advisors map[string]Advisor
}

// NewRegistry creates an empty advisor Registry.
func NewRegistry() *Registry {
	return &Registry{
		advisors: make(map[string]Advisor),
	}
}

// Register adds an advisor to the registry, keyed by its Name().
func (r *Registry) Register(a Advisor) {
	r.advisors[a.Name()] = a
}

// Get retrieves an advisor by name. The second return value indicates whether
// the advisor was found.
func (r *Registry) Get(name string) (Advisor, bool) {
	a, ok := r.advisors[name]
	return a, ok
}

// List returns a sorted slice of all registered advisor names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.advisors))
	for name := range r.advisors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
