package inbound_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"infosync/internal/inbound"
	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/internal/propagation"
	"infosync/internal/propagation/mocks"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	auditmemory "infosync/pkg/platform/audit/store/memory"
	"infosync/pkg/requestcontext"
	"infosync/pkg/testutil"
)

const originURL = "http://hr.test"

var (
	yes = true
	no  = false
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dupontUpsert() wire.UpsertInput {
	return wire.UpsertInput{
		InformationID:   12,
		Utilisateur:     wire.Utilisateur{ID: 7, Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com"},
		NumeroEmploye:   "E100",
		Adresse:         "1 rue de Paris",
		NumeroAssurance: "A-77",
		CIN:             "CIN-1",
		Statut:          &yes,
		Notification: &wire.Notification{
			ID:        21,
			Objet:     "Information confirmed",
			Contenu:   "Information 12 for Jean Dupont has been confirmed and is now up to date",
			DateEnvoi: "2026-03-02T14:30:00Z",
		},
	}
}

type recordingRelay struct {
	mu       sync.Mutex
	episodes []propagation.Episode
}

func (r *recordingRelay) Propagate(_ context.Context, ep propagation.Episode) *models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.episodes = append(r.episodes, ep)
	return nil
}

type UpsertSuite struct {
	suite.Suite
	ctx        context.Context
	repo       *store.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	auditor    *audit.Auditor
	caller     *mocks.MockCaller
}

func TestUpsertSuite(t *testing.T) {
	suite.Run(t, new(UpsertSuite))
}

func (s *UpsertSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))
	s.repo = store.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.auditor = audit.NewAuditor(s.auditStore, domain.SystemEmployee, audit.WithLogger(discardLogger()))
	s.caller = mocks.NewMockCaller(gomock.NewController(s.T()))
}

func (s *UpsertSuite) employee(opts ...inbound.Option) *inbound.Service {
	opts = append([]inbound.Option{inbound.WithLogger(discardLogger())}, opts...)
	return inbound.New(domain.SystemEmployee, s.repo, s.auditor, opts...)
}

func (s *UpsertSuite) copyOf(informationID int64) *models.InformationRecord {
	rec, err := s.repo.FindRecordByOrigin(s.ctx, domain.ForeignRef{System: domain.SystemHR, ID: informationID})
	s.Require().NoError(err)
	return rec
}

func (s *UpsertSuite) TestFirstDeliveryCreatesCopy() {
	svc := s.employee()

	res := svc.Upsert(s.ctx, dupontUpsert())
	s.Require().True(res.Success, res.Message)
	s.Equal("employee information updated", res.Message)

	rec := s.copyOf(12)
	s.Equal("E100", rec.EmployeeNumber)
	s.Equal("A-77", rec.InsuranceNumber)
	s.True(rec.Confirmed)

	person, err := s.repo.FindPerson(s.ctx, rec.PersonID)
	s.Require().NoError(err)
	s.Equal(domain.ForeignRef{System: domain.SystemHR, ID: 7}, person.Origin)
	s.Equal("Jean Dupont", person.FullName())
}

func (s *UpsertSuite) TestRepeatedDeliveryIsIdempotent() {
	svc := s.employee()
	in := dupontUpsert()
	in.Notification = nil

	s.Require().True(svc.Upsert(s.ctx, in).Success)
	first := s.copyOf(12)
	s.Require().True(svc.Upsert(s.ctx, in).Success)
	second := s.copyOf(12)

	s.Equal(first.ID, second.ID)
	s.Equal(first.PersonID, second.PersonID)
	s.Equal(first.EmployeeNumber, second.EmployeeNumber)
	s.Equal(first.Confirmed, second.Confirmed)
	_, err := s.repo.FindPersonByOrigin(s.ctx, domain.ForeignRef{System: domain.SystemHR, ID: 7})
	s.NoError(err)
}

func (s *UpsertSuite) TestMergeNeverErases() {
	svc := s.employee()
	first := dupontUpsert()
	first.Notification = nil
	s.Require().True(svc.Upsert(s.ctx, first).Success)

	later := requestcontext.WithTime(s.ctx, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))
	res := svc.Upsert(later, wire.UpsertInput{
		InformationID: 12,
		Utilisateur:   wire.Utilisateur{ID: 7, Email: "j.dupont@example.com"},
		Adresse:       "2 avenue Foch",
	})
	s.Require().True(res.Success, res.Message)

	rec := s.copyOf(12)
	s.Equal("2 avenue Foch", rec.Address)
	s.Equal("E100", rec.EmployeeNumber)
	s.Equal("CIN-1", rec.NationalID)
	s.True(rec.Confirmed, "absent statut keeps the stored value")
	s.True(rec.ModifiedAt.After(rec.CreatedAt))

	person, err := s.repo.FindPerson(s.ctx, rec.PersonID)
	s.Require().NoError(err)
	s.Equal("Dupont", person.LastName)
	s.Equal("j.dupont@example.com", person.Email)

	s.Require().True(svc.Upsert(s.ctx, wire.UpsertInput{InformationID: 12, Utilisateur: wire.Utilisateur{ID: 7}, Statut: &no}).Success)
	s.False(s.copyOf(12).Confirmed, "supplied statut overwrites")
}

func (s *UpsertSuite) TestCreateWithoutStatutIsUnconfirmed() {
	in := dupontUpsert()
	in.Statut = nil
	in.Notification = nil
	s.Require().True(s.employee().Upsert(s.ctx, in).Success)
	s.False(s.copyOf(12).Confirmed)
}

func (s *UpsertSuite) TestReceivedNotificationIsStoredAndAcknowledged() {
	s.caller.EXPECT().
		Call(gomock.Any(), originURL, domain.SystemHR, wire.MutationFeedback, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ domain.System, _ string, input any) (wire.Result, error) {
			fb, ok := input.(wire.FeedbackInput)
			s.True(ok)
			s.Equal(int64(21), fb.NotificationID)
			s.True(fb.Status)
			s.Equal("employee", fb.Source)
			return wire.OK("feedback recorded"), nil
		})
	svc := s.employee(inbound.WithFeedback(s.caller, originURL, time.Second))

	s.Require().True(svc.Upsert(s.ctx, dupontUpsert()).Success)
	s.Require().NoError(svc.Wait(s.ctx))

	entries, err := s.auditStore.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionReception, entries[0].Kind)
	s.Require().NotNil(entries[0].NotificationID)

	n, err := s.repo.FindNotification(s.ctx, *entries[0].NotificationID)
	s.Require().NoError(err)
	s.Equal(domain.ForeignRef{System: domain.SystemHR, ID: 21}, n.Origin)
	s.Equal("HR system", n.Sender)
	s.Equal("Employee Jean Dupont", n.Recipient)
	s.Equal("Information confirmed", n.Subject)
	s.Equal(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), n.ComposedAt)
	s.Equal(s.copyOf(12).ID, n.InformationID)
}

func (s *UpsertSuite) TestFeedbackFailureDoesNotChangeResult() {
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(wire.Result{}, &propagation.CallError{Category: propagation.FailureNetwork, Message: "connection refused"})
	svc := s.employee(inbound.WithFeedback(s.caller, originURL, time.Second))

	res := svc.Upsert(s.ctx, dupontUpsert())
	s.Require().NoError(svc.Wait(s.ctx))
	s.True(res.Success)
}

func (s *UpsertSuite) TestInsuranceRecipientUsesCompanyLabel() {
	svc := inbound.New(domain.SystemInsurance, s.repo, s.auditor,
		inbound.WithLogger(discardLogger()), inbound.WithCompanyName("AXA"))

	res := svc.Upsert(s.ctx, dupontUpsert())
	s.Require().True(res.Success, res.Message)
	s.Equal(wire.MutationUpdateInsurance, svc.Mutation())

	entries, err := s.auditStore.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	n, err := s.repo.FindNotification(s.ctx, *entries[0].NotificationID)
	s.Require().NoError(err)
	s.Equal("Insurance company AXA", n.Recipient)
}

func (s *UpsertSuite) TestValidationFailures() {
	tests := []struct {
		name    string
		system  domain.System
		company string
		mutate  func(*wire.UpsertInput)
		message string
	}{
		{name: "insurance without company", system: domain.SystemInsurance, message: "no insurance company is configured on this service"},
		{name: "missing information id", system: domain.SystemEmployee, mutate: func(in *wire.UpsertInput) { in.InformationID = 0 }, message: "informationId must be positive"},
		{name: "missing person id", system: domain.SystemEmployee, mutate: func(in *wire.UpsertInput) { in.Utilisateur.ID = 0 }, message: "utilisateur.id must be positive"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			svc := inbound.New(tt.system, s.repo, s.auditor, inbound.WithLogger(discardLogger()), inbound.WithCompanyName(tt.company))
			in := dupontUpsert()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			res := svc.Upsert(s.ctx, in)
			s.False(res.Success)
			s.Equal(tt.message, res.Message)
		})
	}
	s.Empty(s.auditStore.Kinds())
}

func (s *UpsertSuite) TestRelayFiresOnLocalConfirmationOnly() {
	relay := &recordingRelay{}
	svc := s.employee(inbound.WithRelay(relay))
	in := dupontUpsert()
	in.Notification = nil
	in.Statut = &no

	s.Require().True(svc.Upsert(s.ctx, in).Success)
	s.Empty(relay.episodes)

	in.Statut = &yes
	s.Require().True(svc.Upsert(s.ctx, in).Success)
	s.Require().True(svc.Upsert(s.ctx, in).Success)

	s.Require().Len(relay.episodes, 1)
	ep := relay.episodes[0]
	s.Equal(int64(12), ep.Record.WireID())
	s.Equal(int64(7), ep.Person.WireID())
}

// hopCaller hands relayed upserts straight to the next service and records
// the acknowledgements sent towards the origin.
type hopCaller struct {
	next *inbound.Service

	mu       sync.Mutex
	feedback []wire.FeedbackInput
}

func (c *hopCaller) Call(ctx context.Context, _ string, _ domain.System, mutation string, input any) (wire.Result, error) {
	switch in := input.(type) {
	case wire.UpsertInput:
		return c.next.Upsert(ctx, in), nil
	case wire.FeedbackInput:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.feedback = append(c.feedback, in)
		return wire.OK("feedback recorded"), nil
	}
	return wire.Result{}, fmt.Errorf("unexpected mutation %s", mutation)
}

// relayChain wires employee -> insurance with a real relay pipeline on the
// employee side. Both services acknowledge to the origin through hop.
func (s *UpsertSuite) relayChain() (employee, insurance *inbound.Service, insuranceRepo *store.InMemoryStore, hop *hopCaller) {
	hop = &hopCaller{}
	insuranceRepo = store.NewInMemoryStore()
	insuranceAuditor := audit.NewAuditor(auditmemory.NewInMemoryStore(), domain.SystemInsurance, audit.WithLogger(discardLogger()))
	insurance = inbound.New(domain.SystemInsurance, insuranceRepo, insuranceAuditor,
		inbound.WithLogger(discardLogger()),
		inbound.WithCompanyName("AXA"),
		inbound.WithFeedback(hop, originURL, time.Second),
	)
	hop.next = insurance

	composer, err := propagation.NewComposer(s.repo, s.auditor, propagation.WithComposerLogger(discardLogger()))
	s.Require().NoError(err)
	dispatcher := propagation.NewDispatcher(hop,
		[]propagation.Destination{{System: domain.SystemInsurance, URL: "http://insurance.test"}},
		s.repo, s.auditor, propagation.WithDispatcherLogger(discardLogger()))
	pipeline := propagation.NewPipeline(composer, dispatcher, s.auditor, propagation.WithPipelineLogger(discardLogger()))

	employee = s.employee(inbound.WithFeedback(hop, originURL, time.Second), inbound.WithRelay(pipeline))
	return employee, insurance, insuranceRepo, hop
}

func (s *UpsertSuite) TestRelayedFeedbackNamesTheOriginNotification() {
	employee, insurance, insuranceRepo, hop := s.relayChain()

	s.Require().True(employee.Upsert(s.ctx, dupontUpsert()).Success)
	s.Require().NoError(employee.Wait(s.ctx))
	s.Require().NoError(insurance.Wait(s.ctx))

	hop.mu.Lock()
	defer hop.mu.Unlock()
	s.Require().Len(hop.feedback, 2)
	sources := make([]string, 0, len(hop.feedback))
	for _, fb := range hop.feedback {
		s.Equal(int64(21), fb.NotificationID, "feedback from %s", fb.Source)
		sources = append(sources, fb.Source)
	}
	s.ElementsMatch([]string{"employee", "insurance"}, sources)

	rec, err := insuranceRepo.FindRecordByOrigin(s.ctx, domain.ForeignRef{System: domain.SystemHR, ID: 12})
	s.Require().NoError(err)
	s.Equal("E100", rec.EmployeeNumber)
}

func (s *UpsertSuite) TestRelayWithoutOriginNotificationSendsNoFeedback() {
	employee, insurance, _, hop := s.relayChain()
	in := dupontUpsert()
	in.Notification = nil

	s.Require().True(employee.Upsert(s.ctx, in).Success)
	s.Require().NoError(employee.Wait(s.ctx))
	s.Require().NoError(insurance.Wait(s.ctx))

	hop.mu.Lock()
	defer hop.mu.Unlock()
	s.Empty(hop.feedback, "a relay's local notification id is unknown to the origin")
}

func (s *UpsertSuite) TestConcurrentFirstDeliveriesConverge() {
	svc := s.employee()
	in := dupontUpsert()
	in.Notification = nil

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.True(svc.Upsert(s.ctx, in).Success)
		}()
	}
	wg.Wait()
	s.Equal("E100", s.copyOf(12).EmployeeNumber)
}

// TestDupontScenario follows one confirmation from the origin's wire payload
// to the acknowledgement the origin receives.
func TestDupontScenario(t *testing.T) {
	var (
		mu       sync.Mutex
		feedback []wire.FeedbackInput
	)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		name, err := req.MutationName()
		require.NoError(t, err)
		assert.Equal(t, wire.MutationFeedback, name)
		var in wire.FeedbackInput
		require.NoError(t, req.DecodeInput(&in))
		mu.Lock()
		feedback = append(feedback, in)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(wire.NewResponse(name, wire.OK("feedback recorded")))
	}))
	defer origin.Close()

	ctx := context.Background()
	repo := store.NewInMemoryStore()
	auditStore := auditmemory.NewInMemoryStore()
	svc := inbound.New(domain.SystemEmployee, repo, audit.NewAuditor(auditStore, domain.SystemEmployee),
		inbound.WithLogger(discardLogger()),
		inbound.WithFeedback(propagation.NewClient(time.Second), origin.URL, time.Second),
	)

	testutil.Given(t, "an employee service without a copy of information 12", func(t *testing.T) {
		_, err := repo.FindRecordByOrigin(ctx, domain.ForeignRef{System: domain.SystemHR, ID: 12})
		require.Error(t, err)
	})

	var res wire.Result
	testutil.When(t, "the origin delivers the confirmed E100 record", func(t *testing.T) {
		res = svc.Upsert(ctx, dupontUpsert())
		require.NoError(t, svc.Wait(ctx))
	})

	testutil.Then(t, "the upsert succeeds", func(t *testing.T) {
		assert.True(t, res.Success)
	})

	testutil.And(t, "the local copy is confirmed and keyed by the origin id", func(t *testing.T) {
		rec, err := repo.FindRecordByOrigin(ctx, domain.ForeignRef{System: domain.SystemHR, ID: 12})
		require.NoError(t, err)
		assert.True(t, rec.Confirmed)
		assert.Equal(t, "E100", rec.EmployeeNumber)
	})

	testutil.And(t, "the reception is audited", func(t *testing.T) {
		assert.Equal(t, []audit.ActionKind{audit.ActionReception}, auditStore.Kinds())
	})

	testutil.And(t, "the origin is told about notification 21", func(t *testing.T) {
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, feedback, 1)
		assert.Equal(t, int64(21), feedback[0].NotificationID)
		assert.Equal(t, "employee", feedback[0].Source)
		assert.True(t, feedback[0].Status)
	})
}
