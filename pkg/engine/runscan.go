package engine

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vuhp/cloudthrift/pkg/checks"
	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// RunScan connects to the provider and runs its registered checks
// concurrently, one goroutine per check. It fails only when the provider is
// unknown, the connection cannot be established or the context dies; check
// failures are absorbed by the runner and show up as missing findings, not
// as errors.
//
// Findings come back in check registration order no matter which goroutine
// finishes first, so two scans of the same account produce comparable
// reports. RunScan persists nothing; that is Execute's job.
func (e *Engine) RunScan(ctx context.Context, scanID uint64, provider waste.Provider, opts providers.ConnectOptions) (*waste.Report, error) {
	ctx, span := e.Tracer.Start(ctx, "engine.RunScan")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("scan.id", int64(scanID)),
		attribute.String("scan.provider", string(provider)),
	)

	set, ok := e.registry.Lookup(provider)
	if !ok {
		err := &ProviderError{Provider: provider}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	conn, err := set.Connector.Connect(ctx, opts)
	if err != nil {
		perr := &ProviderError{Provider: provider, Err: fmt.Errorf("connect: %w", err)}
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return nil, perr
	}
	e.Logger.Info("scan started",
		"scan_id", scanID,
		"provider", string(provider),
		"region", conn.Region(),
		"account", conn.Account(),
		"checks", len(set.Checks),
	)

	runner := &checks.Runner{
		Logger:     e.Logger,
		Classifier: set.Classifier,
		Timeout:    e.checkTimeout,
	}

	// One slot per check keeps findings in registration order regardless of
	// which goroutine finishes first.
	results := make([][]waste.Opportunity, len(set.Checks))
	var wg sync.WaitGroup
	for i, c := range set.Checks {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runner.SafeRun(ctx, c, conn)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	total := 0
	for _, batch := range results {
		total += len(batch)
	}
	opps := make([]waste.Opportunity, 0, total)
	for _, batch := range results {
		opps = append(opps, batch...)
	}

	now := e.now()
	for i := range opps {
		opps[i].ScanID = scanID
		opps[i].DetectedAt = now
	}

	report := &waste.Report{
		ScanID:        scanID,
		Provider:      provider,
		Region:        conn.Region(),
		GeneratedAt:   now,
		TotalSavings:  waste.SumSavings(opps),
		Opportunities: opps,
	}
	span.SetAttributes(
		attribute.Int("scan.findings", len(opps)),
		attribute.Float64("scan.savings", report.TotalSavings),
	)
	return report, nil
}
