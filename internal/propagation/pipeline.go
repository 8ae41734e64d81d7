package propagation

import (
	"context"
	"fmt"
	"log/slog"

	"infosync/internal/information/models"
	"infosync/internal/platform/metrics"
	audit "infosync/pkg/platform/audit"
	"infosync/pkg/requestcontext"
)

// Pipeline is the post-commit hook of a write that started an episode: it
// composes the notification and queues the dispatch. Nothing it does can
// fail the write that triggered it.
type Pipeline struct {
	composer   *Composer
	dispatcher *Dispatcher
	queue      Queue
	auditor    Auditor
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type PipelineOption func(*Pipeline)

// WithQueue replaces the default inline dispatch.
func WithQueue(q Queue) PipelineOption {
	return func(p *Pipeline) {
		p.queue = q
	}
}

func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func NewPipeline(composer *Composer, dispatcher *Dispatcher, auditor Auditor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		composer:   composer,
		dispatcher: dispatcher,
		auditor:    auditor,
		logger:     slog.Default(),
	}
	p.queue = NewInlineQueue(dispatcher.Handle)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propagate runs one episode. It returns the composed notification, or nil
// when composition failed and was recorded as such.
//
// The write that started the episode has committed, so the episode runs to
// completion even if the caller goes away: ctx keeps its values but loses its
// cancellation. Outbound calls stay bounded by the client timeout.
func (p *Pipeline) Propagate(ctx context.Context, ep Episode) *models.Notification {
	ctx = context.WithoutCancel(ctx)
	if p.metrics != nil {
		p.metrics.IncEpisodesDetected()
	}

	n, err := p.composer.Compose(ctx, ep)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncCompositionFailed()
		}
		p.logger.ErrorContext(ctx, "notification composition failed",
			"information_id", int64(ep.Record.ID),
			"error", err,
		)
		p.auditor.Record(ctx, audit.ActionCompositionFailed,
			fmt.Sprintf("information %d: %v", ep.Record.ID, err), nil)
		return nil
	}

	job := Job{Episode: ep, Notification: *n, RequestID: requestcontext.RequestID(ctx)}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		p.logger.WarnContext(ctx, "enqueue failed, dispatching inline",
			"notification_id", int64(n.ID),
			"error", err,
		)
		p.dispatcher.Handle(ctx, job)
	}
	return n
}
