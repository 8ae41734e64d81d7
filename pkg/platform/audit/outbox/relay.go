// Package outbox publishes persisted audit entries to a message broker.
package outbox

import (
	"context"
	"log/slog"
	"time"

	audit "infosync/pkg/platform/audit"
	"infosync/pkg/platform/circuit"
)

// Source yields unpublished outbox rows in insertion order.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]audit.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Publisher delivers one message synchronously.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls the outbox and publishes rows in order. A publish failure stops
// the batch so later rows never overtake earlier ones; the breaker keeps a dead
// broker from being retried on every tick.
type Relay struct {
	source    Source
	publisher Publisher
	topic     string
	batchSize int
	interval  time.Duration
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *audit.Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *audit.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func New(source Source, publisher Publisher, topic string, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		breaker:   circuit.New("audit-outbox", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "audit outbox relay started", "topic", r.topic, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "audit outbox flush failed", "error", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many rows were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, nil
	}

	pending, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]int64, 0, len(pending))
	var publishErr error
	for _, msg := range pending {
		if err := r.publisher.Publish(ctx, r.topic, []byte(msg.Key), msg.Payload); err != nil {
			publishErr = err
			break
		}
		published = append(published, msg.ID)
	}

	if publishErr != nil {
		r.recordFailure()
	} else if len(pending) > 0 {
		r.recordSuccess()
	}

	if err := r.source.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.AddOutboxRelayed(len(published))
	}
	return len(published), publishErr
}

func (r *Relay) recordFailure() {
	change := r.breaker.RecordFailure()
	if r.metrics != nil {
		r.metrics.IncOutboxFailures()
		if change.Opened {
			r.metrics.SetBreakerOpen(true)
		}
	}
	if change.Opened {
		r.logger.Warn("audit outbox breaker opened", "topic", r.topic)
	}
}

func (r *Relay) recordSuccess() {
	change := r.breaker.RecordSuccess()
	if change.Closed {
		if r.metrics != nil {
			r.metrics.SetBreakerOpen(false)
		}
		r.logger.Info("audit outbox breaker closed", "topic", r.topic)
	}
}
