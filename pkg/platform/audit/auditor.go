package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"infosync/pkg/domain"
	"infosync/pkg/requestcontext"
)

// Store persists audit entries. Append assigns Seq, which breaks timestamp
// ties in insertion order.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context) ([]Entry, error)
	ListByNotification(ctx context.Context, id domain.NotificationID) ([]Entry, error)
}

// Auditor is the only writer of the audit trail. Record never fails the
// caller: a store error is logged and counted, and the business operation
// carries on.
//
// Timestamps never go backwards across the entries one auditor issues, even
// if the wall clock steps back. Only the stamping is serialized; appends run
// concurrently, so stores order reads by (Timestamp, Seq).
type Auditor struct {
	store   Store
	service domain.System
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

type Option func(*Auditor)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// NewAuditor builds an auditor that stamps entries with service.
func NewAuditor(store Store, service domain.System, opts ...Option) *Auditor {
	a := &Auditor{
		store:   store,
		service: service,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record appends an entry. Kinds outside the closed set are rewritten as
// custom kinds rather than dropped.
func (a *Auditor) Record(ctx context.Context, kind ActionKind, description string, notificationID *domain.NotificationID) {
	if !kind.Valid() {
		kind = Custom(string(kind))
	}
	entry := &Entry{
		Kind:           kind,
		Description:    description,
		NotificationID: notificationID,
		Service:        a.service,
		RequestID:      requestcontext.RequestID(ctx),
	}

	entry.Timestamp = a.stamp()
	if err := a.store.Append(ctx, entry); err != nil {
		attrs := []any{"kind", kind, "error", err}
		if notificationID != nil {
			attrs = append(attrs, "notification_id", int64(*notificationID))
		}
		a.logger.ErrorContext(ctx, "audit append failed", attrs...)
		if a.metrics != nil {
			a.metrics.IncAppendFailures(kind)
		}
		return
	}
	if a.metrics != nil {
		a.metrics.IncAppended(kind)
	}
}

func (a *Auditor) stamp() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := a.now().UTC()
	if ts.Before(a.last) {
		ts = a.last
	}
	a.last = ts
	return ts
}
