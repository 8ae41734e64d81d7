package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"infosync/internal/platform/config"
	"infosync/internal/platform/metrics"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
)

// Caller performs one remote mutation.
type Caller interface {
	Call(ctx context.Context, baseURL string, audience domain.System, mutation string, input any) (wire.Result, error)
}

// DeliveryMarker records the send attempt on a notification.
type DeliveryMarker interface {
	MarkDelivered(ctx context.Context, id domain.NotificationID, sentAt time.Time, delivered bool) error
}

// Destination is one downstream peer.
type Destination struct {
	System domain.System
	URL    string
	// RequiresInsurer skips the destination for records without an insurer.
	// The insurer's own API URL, when set, replaces URL.
	RequiresInsurer bool
}

// DestinationsFrom turns configured destinations into a stable, ordered list.
func DestinationsFrom(cfg map[string]config.Destination) []Destination {
	out := make([]Destination, 0, len(cfg))
	for name, d := range cfg {
		out = append(out, Destination{System: domain.System(name), URL: d.URL, RequiresInsurer: d.RequiresInsurer})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].System < out[j].System })
	return out
}

// Outcome is what happened for one destination.
type Outcome struct {
	Destination domain.System
	Skipped     bool
	Success     bool
	Message     string
	Attempts    int
}

// Err is nil for a delivered or skipped destination, and describes the
// failure otherwise.
func (o Outcome) Err() error {
	if o.Skipped || o.Success {
		return nil
	}
	return fmt.Errorf("%s: %s", o.Destination, o.Message)
}

// Dispatcher delivers a job to every destination. A destination's failure is
// recorded and never stops or cancels the others.
type Dispatcher struct {
	caller       Caller
	destinations []Destination
	marker       DeliveryMarker
	auditor      Auditor
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time

	parallel       bool
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithSequential dispatches destinations one after another.
func WithSequential() DispatcherOption {
	return func(d *Dispatcher) {
		d.parallel = false
	}
}

// WithRetry allows up to maxAttempts calls per destination with exponential
// backoff between them. Only retryable failures are retried.
func WithRetry(maxAttempts int, initial, maxInterval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if initial > 0 {
			d.backoffInitial = initial
		}
		if maxInterval > 0 {
			d.backoffMax = maxInterval
		}
	}
}

func NewDispatcher(caller Caller, destinations []Destination, marker DeliveryMarker, auditor Auditor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		caller:         caller,
		destinations:   destinations,
		marker:         marker,
		auditor:        auditor,
		logger:         slog.Default(),
		tracer:         otel.Tracer("infosync/propagation"),
		now:            time.Now,
		parallel:       true,
		maxAttempts:    1,
		backoffInitial: 500 * time.Millisecond,
		backoffMax:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends job to every destination and returns one outcome each, in
// destination order. Each outcome is audited as soon as it resolves.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) []Outcome {
	ctx, span := d.tracer.Start(ctx, "propagation.dispatch", trace.WithAttributes(
		attribute.Int64("information.id", int64(job.Record.ID)),
		attribute.Int64("notification.id", int64(job.Notification.ID)),
	))
	defer span.End()

	input := BuildUpsert(job)
	outcomes := make([]Outcome, len(d.destinations))

	var firstErr error
	if d.parallel {
		// Plain group, no WithContext: one failing destination must not
		// cancel the calls still in flight to the others.
		var g errgroup.Group
		for i, dest := range d.destinations {
			g.Go(func() error {
				outcomes[i] = d.dispatchOne(ctx, job, dest, input)
				return outcomes[i].Err()
			})
		}
		firstErr = g.Wait()
	} else {
		for i, dest := range d.destinations {
			outcomes[i] = d.dispatchOne(ctx, job, dest, input)
			if err := outcomes[i].Err(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
	}

	attempted, delivered := 0, false
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		attempted++
		delivered = delivered || o.Success
	}
	if attempted > 0 {
		if err := d.marker.MarkDelivered(ctx, job.Notification.ID, d.now().UTC(), delivered); err != nil {
			d.logger.ErrorContext(ctx, "failed to record notification delivery",
				"notification_id", int64(job.Notification.ID),
				"error", err,
			)
		}
	}
	span.SetAttributes(attribute.Bool("delivered", delivered))
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, job Job, dest Destination, input wire.UpsertInput) Outcome {
	out := Outcome{Destination: dest.System}
	nid := audit.About(job.Notification.ID)

	url := dest.URL
	if dest.RequiresInsurer {
		if job.Insurer == nil {
			out.Skipped = true
			d.logger.DebugContext(ctx, "destination skipped, record has no insurer",
				"destination", string(dest.System),
				"information_id", int64(job.Record.ID),
			)
			return out
		}
		if job.Insurer.APIURL != "" {
			url = job.Insurer.APIURL
		}
	}

	ctx, span := d.tracer.Start(ctx, "propagation.dispatch."+string(dest.System))
	defer span.End()
	start := time.Now()

	mutation, ok := wire.UpsertMutation(dest.System)
	var (
		result wire.Result
		err    error
	)
	if !ok {
		err = fmt.Errorf("%s does not accept information upserts", dest.System)
	} else {
		result, err = d.callWithRetry(ctx, dest, url, mutation, input, &out.Attempts, nid)
	}

	out.Success = err == nil && result.Success
	switch {
	case err != nil:
		out.Message = err.Error()
	case result.Message != "":
		out.Message = result.Message
	case out.Success:
		out.Message = "ok"
	default:
		out.Message = "rejected without message"
	}

	if d.metrics != nil {
		d.metrics.ObserveDispatch(string(dest.System), out.Success, time.Since(start))
	}
	if out.Success {
		d.logger.InfoContext(ctx, "notification dispatched",
			"destination", string(dest.System),
			"notification_id", int64(job.Notification.ID),
			"attempts", out.Attempts,
		)
	} else {
		span.SetStatus(codes.Error, out.Message)
		d.logger.WarnContext(ctx, "notification dispatch failed",
			"destination", string(dest.System),
			"notification_id", int64(job.Notification.ID),
			"attempts", out.Attempts,
			"error", out.Message,
		)
	}
	d.auditor.Record(ctx, audit.DispatchOutcome(dest.System, out.Success),
		fmt.Sprintf("%s: %s", dest.System, out.Message), nid)
	return out
}

func (d *Dispatcher) callWithRetry(ctx context.Context, dest Destination, url, mutation string, input wire.UpsertInput, attempts *int, nid *domain.NotificationID) (wire.Result, error) {
	var result wire.Result
	operation := func() error {
		*attempts++
		res, err := d.caller.Call(ctx, url, dest.System, mutation, input)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		d.auditor.Record(ctx, audit.ActionDispatchRetry,
			fmt.Sprintf("%s attempt %d failed: %v; retrying in %s", dest.System, *attempts, err, wait.Round(time.Millisecond)), nid)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.backoffInitial
	eb.MaxInterval = d.backoffMax
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.maxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, policy, notify)
	return result, err
}

// Handle adapts Dispatch to a queue Handler.
func (d *Dispatcher) Handle(ctx context.Context, job Job) {
	d.Dispatch(ctx, job)
}
