package engine

import (
	"slices"

	"github.com/vuhp/cloudthrift/pkg/checks"
	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// ProviderSet bundles everything a scan of one provider needs: how to
// connect, how to classify its errors, and which checks to run. Check order
// is the order findings appear in the report.
type ProviderSet struct {
	Connector  providers.Connector
	Classifier checks.Classifier
	Checks     []checks.Check
}

// Registry holds the provider wiring. It is assembled once at process start
// and read-only afterwards; an unregistered provider fails the scan with a
// ProviderError rather than being discovered lazily.
type Registry struct {
	sets map[waste.Provider]ProviderSet
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[waste.Provider]ProviderSet)}
}

// Register wires a provider. Registering the same provider again replaces
// the earlier set.
func (r *Registry) Register(p waste.Provider, set ProviderSet) {
	r.sets[p] = set
}

func (r *Registry) Lookup(p waste.Provider) (ProviderSet, bool) {
	set, ok := r.sets[p]
	return set, ok
}

// Providers lists the registered providers in stable order.
func (r *Registry) Providers() []waste.Provider {
	out := make([]waste.Provider, 0, len(r.sets))
	for p := range r.sets {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
