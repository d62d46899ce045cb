package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vuhp/cloudthrift/pkg/events"
	"github.com/vuhp/cloudthrift/pkg/policy"
	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/vault"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

// ScanRequest describes one scan invocation.
type ScanRequest struct {
	Provider waste.Provider
	Region   string
	Profile  string
	Endpoint string

	// CredentialID selects a vault bundle. Zero picks the newest bundle
	// for the provider, falling back to ambient credentials when the vault
	// has none.
	CredentialID uint64

	// Filter drops findings before persistence. Nil keeps everything.
	Filter *policy.Filter
}

// Execute runs the full scan lifecycle: record the scan, resolve
// credentials, run the checks, filter, persist the findings and notify.
// Once the filtered findings exist the scan is a success; a store, cache or
// publish error after that point degrades to a warning instead of failing
// it.
func (e *Engine) Execute(ctx context.Context, req ScanRequest) (*waste.Report, error) {
	ctx, span := e.Tracer.Start(ctx, "engine.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("scan.provider", string(req.Provider)))

	if e.store == nil {
		return nil, errors.New("engine: no store configured")
	}

	sc, err := e.store.CreateScan(req.Provider, req.Region)
	if err != nil {
		return nil, fmt.Errorf("recording scan: %w", err)
	}
	span.SetAttributes(attribute.Int64("scan.id", int64(sc.ID)))

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(sc.ID, cancel)
	defer e.untrack(sc.ID)

	start := e.now()
	e.publish(scanCtx, events.ScanStarted(sc))

	creds, err := e.resolveCredentials(req)
	if err != nil {
		return nil, e.failScan(scanCtx, span, sc, err)
	}

	report, err := e.RunScan(scanCtx, sc.ID, req.Provider, providers.ConnectOptions{
		Region:      req.Region,
		Credentials: creds,
		Profile:     req.Profile,
		Endpoint:    req.Endpoint,
	})
	if err != nil {
		return nil, e.failScan(scanCtx, span, sc, err)
	}

	if req.Filter != nil {
		kept, err := req.Filter.Apply(report.Opportunities)
		if err != nil {
			return nil, e.failScan(scanCtx, span, sc, err)
		}
		e.Logger.Info("filter applied",
			"scan_id", sc.ID,
			"expression", req.Filter.String(),
			"before", len(report.Opportunities),
			"after", len(kept),
		)
		report.Opportunities = kept
		report.TotalSavings = waste.SumSavings(kept)
	}

	if err := e.store.SaveOpportunities(sc.ID, report.Opportunities); err != nil {
		e.Logger.Warn("saving findings failed", "scan_id", sc.ID, "error", err)
	}
	if err := e.store.CompleteScan(sc.ID, report.TotalSavings, len(report.Opportunities)); err != nil {
		e.Logger.Warn("completing scan failed", "scan_id", sc.ID, "error", err)
	}
	if e.cache != nil {
		if err := e.cache.Save(report); err != nil {
			e.Logger.Warn("caching report failed", "scan_id", sc.ID, "error", err)
		}
	}

	// The event carries the final row; mirror what CompleteScan recorded.
	sc.Status = waste.StatusCompleted
	sc.TotalSavings = report.TotalSavings
	sc.OpportunityCount = len(report.Opportunities)
	e.publish(scanCtx, events.ScanCompleted(sc, e.now().Sub(start)))

	e.Logger.Info("scan completed",
		"scan_id", sc.ID,
		"findings", len(report.Opportunities),
		"monthly_savings", report.TotalSavings,
		"duration", e.now().Sub(start).String(),
	)
	return report, nil
}

// failScan marks the scan failed, emits the failure event and hands the
// original error back to the caller.
func (e *Engine) failScan(ctx context.Context, span trace.Span, sc *waste.Scan, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if err := e.store.FailScan(sc.ID, cause.Error()); err != nil {
		e.Logger.Warn("marking scan failed", "scan_id", sc.ID, "error", err)
	}
	sc.Status = waste.StatusFailed
	sc.ErrorMessage = cause.Error()
	e.publish(ctx, events.ScanFailed(sc, cause.Error()))

	e.Logger.Error("scan failed", "scan_id", sc.ID, "error", cause)
	return cause
}

// resolveCredentials picks the secret bundle for the request. An explicit
// credential id must resolve; without one the newest bundle for the provider
// is used, and an empty vault silently falls back to ambient credentials.
func (e *Engine) resolveCredentials(req ScanRequest) (map[string]string, error) {
	if e.vault == nil {
		if req.CredentialID != 0 {
			return nil, errors.New("engine: no vault configured")
		}
		return nil, nil
	}

	if req.CredentialID != 0 {
		cred, err := e.vault.Get(req.CredentialID)
		if err != nil {
			return nil, err
		}
		return cred.Secrets, nil
	}

	cred, err := e.vault.GetLatestForProvider(req.Provider)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("using stored credential", "credential_id", cred.ID, "name", cred.Name)
	return cred.Secrets, nil
}

// publish sends a lifecycle event. Publishing is best effort: a slow or
// broken sink logs a warning and the scan moves on. Terminal events still go
// out after an abort.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.Logger.Warn("event publish failed", "event", string(ev.Type), "error", err)
	}
}
