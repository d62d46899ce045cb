package providers

import (
	"context"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

// ConnectOptions carries everything a connector needs to establish a session.
type ConnectOptions struct {
	// Region to scan. Empty lets the connector fall back to its default.
	Region string

	// Credentials is a decrypted bundle from the vault. Empty means the
	// connector should use ambient credentials (env, shared config, IMDS).
	Credentials map[string]string

	// Profile selects a named local profile when no bundle is given.
	Profile string

	// Endpoint overrides the service endpoint. Used by tests.
	Endpoint string
}

// Connection is an established, identity-verified provider session. Concrete
// connections expose service clients to that provider's checks.
type Connection interface {
	Kind() waste.Provider
	Region() string
	Account() string
}

// Connector establishes connections for one provider. Connect must verify the
// session is usable before returning; a Connect error fails the whole scan.
type Connector interface {
	Kind() waste.Provider
	Connect(ctx context.Context, opts ConnectOptions) (Connection, error)
}
