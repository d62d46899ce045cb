package engine

import (
	"fmt"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

// ProviderError is the only failure RunScan itself produces: the provider
// has no registered check set, or establishing the connection failed. Check
// failures never surface here.
type ProviderError struct {
	Provider waste.Provider
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %q is not supported", string(e.Provider))
	}
	return fmt.Sprintf("provider %q: %v", string(e.Provider), e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
