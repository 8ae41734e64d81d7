package propagation

import (
	"context"
	"log/slog"
	"sync"

	"infosync/internal/platform/metrics"
	"infosync/pkg/requestcontext"
)

// Handler processes one composed job, normally Dispatcher.Dispatch.
type Handler func(ctx context.Context, job Job)

// Queue hands jobs to whatever runs the dispatcher.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// InlineQueue runs the handler on the caller's goroutine.
type InlineQueue struct {
	handle Handler
}

func NewInlineQueue(handle Handler) *InlineQueue {
	return &InlineQueue{handle: handle}
}

func (q *InlineQueue) Enqueue(ctx context.Context, job Job) error {
	q.handle(ctx, job)
	return nil
}

// AsyncQueue is a bounded in-process worker pool. When the buffer is full,
// or after Close, the job runs inline instead of being dropped.
type AsyncQueue struct {
	handle  Handler
	jobs    chan Job
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncQueue(handle Handler, workers, size int, logger *slog.Logger, m *metrics.Metrics) *AsyncQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &AsyncQueue{
		handle:  handle,
		jobs:    make(chan Job, size),
		workers: workers,
		logger:  logger,
		metrics: m,
	}
}

// Start launches the workers. Jobs run under ctx's values only, so a job
// already taken off the queue finishes even when ctx is cancelled.
func (q *AsyncQueue) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.reportDepth()
				q.handle(requestcontext.WithRequestID(ctx, job.RequestID), job)
			}
		}()
	}
}

func (q *AsyncQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	if !q.closed {
		select {
		case q.jobs <- job:
			q.mu.RUnlock()
			q.reportDepth()
			return nil
		default:
		}
	}
	q.mu.RUnlock()

	q.logger.WarnContext(ctx, "dispatch queue unavailable, dispatching inline",
		"notification_id", int64(job.Notification.ID),
	)
	q.handle(ctx, job)
	return nil
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *AsyncQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *AsyncQueue) reportDepth() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.jobs))
	}
}
