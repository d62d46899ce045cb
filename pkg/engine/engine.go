// Package engine orchestrates scans: it connects to a provider, fans checks
// out concurrently, collects their findings into a report and drives the
// persistence lifecycle around it.
package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vuhp/cloudthrift/pkg/events"
	"github.com/vuhp/cloudthrift/pkg/storage"
	"github.com/vuhp/cloudthrift/pkg/store"
	"github.com/vuhp/cloudthrift/pkg/vault"
)

// DefaultCheckTimeout bounds a single check's remote calls. Generous enough
// for paginated APIs in slow regions; a hung connection cannot pin a scan
// forever.
const DefaultCheckTimeout = 5 * time.Minute

// Engine is the runtime core.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// External dependencies. All optional except the registry: a nil store
	// or cache skips persistence, a nil vault means ambient credentials
	// only.
	registry  *Registry
	vault     *vault.Vault
	store     *store.Store
	cache     *storage.ReportCache
	publisher events.Publisher

	checkTimeout time.Duration
	now          func() time.Time

	// Runtime state.
	mu      sync.Mutex
	running map[uint64]context.CancelFunc
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(opts ...Option) *Engine {
	// Safe defaults.
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		ReplaceAttr: RedactSensitive,
	})
	e := &Engine{
		Logger:       slog.New(handler),
		Tracer:       otel.Tracer("cloudthrift/engine"),
		registry:     NewRegistry(),
		checkTimeout: DefaultCheckTimeout,
		now:          time.Now,
		running:      make(map[uint64]context.CancelFunc),
	}

	// Apply options.
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithRegistry sets the provider registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithVault wires the credential vault.
func WithVault(v *vault.Vault) Option {
	return func(e *Engine) {
		e.vault = v
	}
}

// WithStore wires the scan store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithCache wires the report cache.
func WithCache(c *storage.ReportCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithPublisher wires the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithCheckTimeout overrides the per-check timeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.checkTimeout = d
	}
}

// Abort cancels a running scan. It reports whether a scan with that id was
// in flight; the scan itself finishes through the usual failure path.
func (e *Engine) Abort(scanID uint64) bool {
	e.mu.Lock()
	cancel, ok := e.running[scanID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) track(scanID uint64, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[scanID] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(scanID uint64) {
	e.mu.Lock()
	delete(e.running, scanID)
	e.mu.Unlock()
}

// RedactSensitive scrubs sensitive attribute values from log output.
func RedactSensitive(groups []string, a slog.Attr) slog.Attr {
	// Keys whose values never belong in logs.
	sensitiveKeys := map[string]bool{
		"account": true, "password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"session_token": true, "secret_access_key": true, "access_key_id": true,
		"credential": true, "webhook_url": true, "connection_string": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
