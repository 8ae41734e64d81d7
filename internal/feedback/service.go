// Package feedback records acknowledgements that downstream services send
// back to the origin about a notification.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"infosync/internal/information/models"
	"infosync/internal/platform/metrics"
	"infosync/internal/propagation"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	"infosync/pkg/platform/sentinel"
)

// Store is the slice of the record store the receiver needs.
type Store interface {
	FindNotification(ctx context.Context, id domain.NotificationID) (*models.Notification, error)
	MarkAcknowledged(ctx context.Context, id domain.NotificationID) error
}

type Service struct {
	store   Store
	auditor propagation.Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, auditor propagation.Auditor, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Receive records one acknowledgement. A positive status also marks the
// notification acknowledged.
func (s *Service) Receive(ctx context.Context, in wire.FeedbackInput) wire.Result {
	id := domain.NotificationID(in.NotificationID)
	if in.NotificationID <= 0 {
		return wire.Fail("notification not found")
	}
	n, err := s.store.FindNotification(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "feedback for unknown notification",
			"notification_id", in.NotificationID,
			"source", in.Source,
		)
		return wire.Fail("notification not found")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "loading notification for feedback failed",
			"notification_id", in.NotificationID,
			"error", err,
		)
		return wire.Fail("error: " + err.Error())
	}

	source := strings.ToLower(strings.TrimSpace(in.Source))
	s.auditor.Record(ctx, audit.FeedbackFrom(source), describe(source, in), audit.About(n.ID))
	if s.metrics != nil {
		s.metrics.IncFeedbackReceived(source)
	}

	if in.Status && !n.Acknowledged {
		if err := s.store.MarkAcknowledged(ctx, n.ID); err != nil {
			s.logger.ErrorContext(ctx, "marking notification acknowledged failed",
				"notification_id", int64(n.ID),
				"error", err,
			)
		}
	}
	return wire.OK("feedback recorded")
}

func describe(source string, in wire.FeedbackInput) string {
	status := "failure"
	if in.Status {
		status = "success"
	}
	if in.Message == "" {
		return fmt.Sprintf("feedback from %s: %s", source, status)
	}
	return fmt.Sprintf("feedback from %s: %s: %s", source, status, in.Message)
}
