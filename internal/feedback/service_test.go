package feedback_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infosync/internal/feedback"
	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/internal/platform/metrics"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	auditmemory "infosync/pkg/platform/audit/store/memory"
)

type fixture struct {
	ctx          context.Context
	repo         *store.InMemoryStore
	auditStore   *auditmemory.InMemoryStore
	metrics      *metrics.Metrics
	svc          *feedback.Service
	notification models.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := store.NewInMemoryStore()
	auditStore := auditmemory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	person := &models.Person{FirstName: "Jean", LastName: "Dupont"}
	require.NoError(t, repo.CreatePerson(ctx, person))
	rec := &models.InformationRecord{PersonID: person.ID, Confirmed: true}
	require.NoError(t, repo.CreateRecord(ctx, rec))
	n := &models.Notification{InformationID: rec.ID, Subject: "Information confirmed", ComposedAt: time.Now()}
	require.NoError(t, repo.CreateNotification(ctx, n))

	auditor := audit.NewAuditor(auditStore, domain.SystemHR, audit.WithLogger(logger))
	return &fixture{
		ctx:          ctx,
		repo:         repo,
		auditStore:   auditStore,
		metrics:      m,
		svc:          feedback.New(repo, auditor, feedback.WithLogger(logger), feedback.WithMetrics(m)),
		notification: *n,
	}
}

func TestReceive_PositiveFeedback(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Receive(f.ctx, wire.FeedbackInput{
		NotificationID: int64(f.notification.ID),
		Status:         true,
		Message:        "processed",
		Source:         "employee",
	})

	assert.Equal(t, wire.OK("feedback recorded"), res)
	entries, err := f.auditStore.ListByNotification(f.ctx, f.notification.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionFeedbackEmployee, entries[0].Kind)
	assert.Equal(t, "feedback from employee: success: processed", entries[0].Description)

	n, err := f.repo.FindNotification(f.ctx, f.notification.ID)
	require.NoError(t, err)
	assert.True(t, n.Acknowledged)
}

func TestReceive_NegativeFeedbackIsRecordedWithoutAcknowledging(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Receive(f.ctx, wire.FeedbackInput{NotificationID: int64(f.notification.ID), Source: "Insurance"})

	assert.True(t, res.Success)
	assert.Equal(t, []audit.ActionKind{audit.ActionFeedbackInsurance}, f.auditStore.Kinds())
	n, err := f.repo.FindNotification(f.ctx, f.notification.ID)
	require.NoError(t, err)
	assert.False(t, n.Acknowledged)
}

func TestReceive_UnknownSourceBecomesCustomKind(t *testing.T) {
	f := newFixture(t)

	f.svc.Receive(f.ctx, wire.FeedbackInput{NotificationID: int64(f.notification.ID), Status: true, Source: "payroll"})

	assert.Equal(t, []audit.ActionKind{audit.Custom("feedback_payroll")}, f.auditStore.Kinds())
}

func TestReceive_UnknownNotification(t *testing.T) {
	f := newFixture(t)

	for _, id := range []int64{0, 999} {
		res := f.svc.Receive(f.ctx, wire.FeedbackInput{NotificationID: id, Status: true, Source: "employee"})
		assert.Equal(t, wire.Fail("notification not found"), res)
	}
	assert.Empty(t, f.auditStore.Kinds())
}
