package checks

import (
	"context"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// Check inspects one slice of a provider account for waste. Implementations
// are constructed with their tuning up front and must be safe for concurrent
// use; the engine runs every check for a provider in parallel.
type Check interface {
	Name() string

	// Capabilities lists the provider permissions the check depends on,
	// e.g. IAM actions. Used to name what is missing when access is denied.
	Capabilities() []string

	Run(ctx context.Context, conn providers.Connection) ([]waste.Opportunity, error)
}

// Classifier maps raw errors from one provider's SDK onto the closed failure
// variants. Implementations live in the provider adapter packages; already
// tagged errors must pass through unchanged.
type Classifier interface {
	Classify(err error) error
}
