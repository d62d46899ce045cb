// Package events publishes scan lifecycle transitions to pluggable backends.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

// Type tags a lifecycle transition.
type Type string

const (
	TypeScanStarted   Type = "scan.started"
	TypeScanCompleted Type = "scan.completed"
	TypeScanFailed    Type = "scan.failed"
)

// Event is one lifecycle transition. Completed events carry totals, failed
// events carry the reason.
type Event struct {
	Type             Type           `json:"type"`
	ScanID           uint64         `json:"scan_id"`
	Provider         waste.Provider `json:"provider"`
	Region           string         `json:"region,omitempty"`
	TotalSavings     float64        `json:"total_savings,omitempty"`
	OpportunityCount int            `json:"opportunity_count,omitempty"`
	Duration         time.Duration  `json:"duration,omitempty"`
	Error            string         `json:"error,omitempty"`
	At               time.Time      `json:"at"`
}

// ScanStarted builds the started event for a scan row.
func ScanStarted(sc *waste.Scan) Event {
	return Event{
		Type:     TypeScanStarted,
		ScanID:   sc.ID,
		Provider: sc.Provider,
		Region:   sc.Region,
		At:       time.Now().UTC(),
	}
}

// ScanCompleted builds the terminal event for a successful scan.
func ScanCompleted(sc *waste.Scan, duration time.Duration) Event {
	return Event{
		Type:             TypeScanCompleted,
		ScanID:           sc.ID,
		Provider:         sc.Provider,
		Region:           sc.Region,
		TotalSavings:     sc.TotalSavings,
		OpportunityCount: sc.OpportunityCount,
		Duration:         duration,
		At:               time.Now().UTC(),
	}
}

// ScanFailed builds the terminal event for a failed scan.
func ScanFailed(sc *waste.Scan, reason string) Event {
	return Event{
		Type:     TypeScanFailed,
		ScanID:   sc.ID,
		Provider: sc.Provider,
		Region:   sc.Region,
		Error:    reason,
		At:       time.Now().UTC(),
	}
}

// Publisher delivers events to a backend. The engine publishes
// fire-and-forget: a slow or failing publisher can never fail a scan.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// MultiPublisher fans out to multiple publishers.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a publisher that sends to multiple backends.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish sends to every publisher. One backend failing does not stop
// delivery to the rest; the errors are joined.
func (m *MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all publishers.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	Logger *slog.Logger
}

func (l *LogPublisher) Publish(_ context.Context, e Event) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"scan_id", e.ScanID, "provider", string(e.Provider)}
	switch e.Type {
	case TypeScanCompleted:
		attrs = append(attrs, "total_savings", e.TotalSavings, "opportunities", e.OpportunityCount, "duration", e.Duration.String())
	case TypeScanFailed:
		attrs = append(attrs, "error", e.Error)
	}
	log.Info(string(e.Type), attrs...)
	return nil
}

func (l *LogPublisher) Close() error { return nil }
