package builtins

import "moextrader/internal/advisor"

// NewRegistry returns a Registry with every built-in advisor registered under
// its default parameters. Callers pick one by the name configured for the
// trading loop.
func NewRegistry() *advisor.Registry {
	r := advisor.NewRegistry()
	r.Register(NewSMACross(5, 20))
	return r
}
