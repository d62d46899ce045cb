package checks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vuhp/cloudthrift/pkg/providers"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

var tracer = otel.Tracer("cloudthrift/checks")

// Runner executes checks under the resilience contract: a check can fail, the
// scan cannot. A permission denial degrades to a warning naming the missing
// capability, anything else to an error log; either way the check contributes
// an empty result and the scan proceeds.
type Runner struct {
	Logger     *slog.Logger
	Classifier Classifier
	Timeout    time.Duration // per check; zero means unbounded
}

// SafeRun executes one check. It never returns an error.
func (r *Runner) SafeRun(ctx context.Context, c Check, conn providers.Connection) []waste.Opportunity {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("check", c.Name(), "provider", string(conn.Kind()))

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "check."+c.Name())
	defer span.End()

	opps, err := r.run(ctx, c, conn)
	if err == nil {
		span.SetAttributes(attribute.Int("findings", len(opps)))
		log.Debug("check finished", "findings", len(opps))
		return opps
	}

	if r.Classifier != nil {
		err = r.Classifier.Classify(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var denied *PermissionDenied
	if errors.As(err, &denied) {
		capability := denied.Capability
		if capability == "" {
			capability = strings.Join(c.Capabilities(), ", ")
		}
		log.Warn("check skipped, missing capability", "capability", capability)
		return nil
	}

	var transient *TransientFailure
	if errors.As(err, &transient) {
		log.Error("check failed", "kind", "transient", "error", transient.Err)
		return nil
	}

	var fatal *Fatal
	if errors.As(err, &fatal) {
		log.Error("check failed", "kind", "fatal", "error", fatal.Err)
		return nil
	}

	log.Error("check failed", "kind", "unclassified", "error", err)
	return nil
}

// run isolates the check call so a panic inside one scanner cannot take down
// the whole scan.
func (r *Runner) run(ctx context.Context, c Check, conn providers.Connection) (opps []waste.Opportunity, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			opps = nil
			err = &Fatal{Err: fmt.Errorf("panic in %s: %v\n%s", c.Name(), rec, debug.Stack())}
		}
	}()
	return c.Run(ctx, conn)
}
