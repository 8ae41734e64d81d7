package propagation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/internal/propagation"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	auditmemory "infosync/pkg/platform/audit/store/memory"
)

var testNow = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ctx        context.Context
	records    *store.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	auditor    *audit.Auditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auditStore := auditmemory.NewInMemoryStore()
	return &fixture{
		ctx:        context.Background(),
		records:    store.NewInMemoryStore(),
		auditStore: auditStore,
		auditor:    audit.NewAuditor(auditStore, domain.SystemHR, audit.WithLogger(discardLogger())),
	}
}

// seedEpisode stores a confirmed record for Jean Dupont, with an insurer when
// withInsurer is set.
func (f *fixture) seedEpisode(t *testing.T, withInsurer bool) propagation.Episode {
	t.Helper()
	person := &models.Person{FirstName: "Jean", LastName: "Dupont", Email: "jean@example.com", CreatedAt: testNow}
	require.NoError(t, f.records.CreatePerson(f.ctx, person))

	rec := &models.InformationRecord{
		PersonID:          person.ID,
		EmployeeNumber:    "E100",
		Address:           "1 rue de Paris",
		InsuranceNumber:   "A-77",
		NationalID:        "CIN-1",
		Confirmed:         true,
		NotificationEmail: "rh@example.com",
		CreatedAt:         testNow,
		ModifiedAt:        testNow,
	}
	var insurer *models.Insurer
	if withInsurer {
		insurer = &models.Insurer{Name: "AXA", Email: "claims@axa.example", CreatedAt: testNow}
		require.NoError(t, f.records.CreateInsurer(f.ctx, insurer))
		rec.InsurerID = &insurer.ID
	}
	require.NoError(t, f.records.CreateRecord(f.ctx, rec))
	return propagation.Episode{Record: *rec, Person: *person, Insurer: insurer}
}

func (f *fixture) kinds() []audit.ActionKind {
	return f.auditStore.Kinds()
}

func (f *fixture) entries(t *testing.T) []audit.Entry {
	t.Helper()
	entries, err := f.auditStore.List(f.ctx)
	require.NoError(t, err)
	return entries
}
