package propagation_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"infosync/internal/information/models"
	"infosync/internal/platform/metrics"
	"infosync/internal/propagation"
	"infosync/internal/propagation/mocks"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/dispatcher-mocks.go -package=mocks Caller

type DispatcherSuite struct {
	suite.Suite
	f      *fixture
	caller *mocks.MockCaller
	job    propagation.Job
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

var (
	employeeDest  = propagation.Destination{System: domain.SystemEmployee, URL: "http://employee.test"}
	insuranceDest = propagation.Destination{System: domain.SystemInsurance, URL: "http://insurance.test", RequiresInsurer: true}
)

func (s *DispatcherSuite) SetupTest() {
	s.f = newFixture(s.T())
	ctrl := gomock.NewController(s.T())
	s.caller = mocks.NewMockCaller(ctrl)
	s.job = s.composeJob(true)
}

func (s *DispatcherSuite) composeJob(withInsurer bool) propagation.Job {
	ep := s.f.seedEpisode(s.T(), withInsurer)
	n := &models.Notification{InformationID: ep.Record.ID, Subject: "Information confirmed", Sender: "System", Recipient: "Administration", ComposedAt: testNow, SentAt: testNow}
	s.Require().NoError(s.f.records.CreateNotification(s.f.ctx, n))
	return propagation.Job{Episode: ep, Notification: *n}
}

func (s *DispatcherSuite) newDispatcher(opts ...propagation.DispatcherOption) *propagation.Dispatcher {
	opts = append([]propagation.DispatcherOption{
		propagation.WithDispatcherLogger(discardLogger()),
		propagation.WithDispatcherClock(func() time.Time { return testNow.Add(time.Second) }),
	}, opts...)
	return propagation.NewDispatcher(s.caller, []propagation.Destination{employeeDest, insuranceDest}, s.f.records, s.f.auditor, opts...)
}

func (s *DispatcherSuite) TestBothDestinationsSucceed() {
	s.caller.EXPECT().Call(gomock.Any(), "http://employee.test", domain.SystemEmployee, wire.MutationUpdateEmployee, gomock.Any()).
		DoAndReturn(func(_ any, _ string, _ domain.System, _ string, input any) (wire.Result, error) {
			in := input.(wire.UpsertInput)
			s.Equal(int64(s.job.Record.ID), in.InformationID)
			s.Equal("E100", in.NumeroEmploye)
			s.Require().NotNil(in.Notification)
			s.Equal(int64(s.job.Notification.ID), in.Notification.ID)
			return wire.OK("updated"), nil
		})
	s.caller.EXPECT().Call(gomock.Any(), "http://insurance.test", domain.SystemInsurance, wire.MutationUpdateInsurance, gomock.Any()).
		Return(wire.OK("created"), nil)

	outcomes := s.newDispatcher().Dispatch(s.f.ctx, s.job)

	s.Require().Len(outcomes, 2)
	s.True(outcomes[0].Success)
	s.True(outcomes[1].Success)
	s.ElementsMatch([]audit.ActionKind{audit.ActionEmployeeSuccess, audit.ActionInsuranceSuccess}, s.f.kinds())

	n, err := s.f.records.FindNotification(s.f.ctx, s.job.Notification.ID)
	s.Require().NoError(err)
	s.True(n.Delivered)
	s.Equal(testNow.Add(time.Second), n.SentAt, "SentAt moves to when dispatch resolved")
	s.Equal(testNow, n.ComposedAt, "ComposedAt is never rewritten")
}

func (s *DispatcherSuite) TestOneFailureDoesNotSuppressTheOther() {
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).
		Return(wire.Result{}, errors.New("connection reset"))
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).
		Return(wire.OK("created"), nil)

	outcomes := s.newDispatcher(propagation.WithSequential()).Dispatch(s.f.ctx, s.job)

	s.False(outcomes[0].Success)
	s.Contains(outcomes[0].Message, "connection reset")
	s.True(outcomes[1].Success)
	s.Equal([]audit.ActionKind{audit.ActionEmployeeFailed, audit.ActionInsuranceSuccess}, s.f.kinds())

	n, err := s.f.records.FindNotification(s.f.ctx, s.job.Notification.ID)
	s.Require().NoError(err)
	s.True(n.Delivered, "delivered when at least one destination succeeded")
}

func (s *DispatcherSuite) TestRejectedResultIsAFailure() {
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).
		Return(wire.Fail("person unknown"), nil)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).
		Return(wire.Fail(""), nil)

	outcomes := s.newDispatcher().Dispatch(s.f.ctx, s.job)

	s.Equal("person unknown", outcomes[0].Message)
	s.False(outcomes[1].Success)
	s.ElementsMatch([]audit.ActionKind{audit.ActionEmployeeFailed, audit.ActionInsuranceFailed}, s.f.kinds())

	n, err := s.f.records.FindNotification(s.f.ctx, s.job.Notification.ID)
	s.Require().NoError(err)
	s.False(n.Delivered)
}

func (s *DispatcherSuite) TestInsuranceSkippedWithoutInsurer() {
	job := s.composeJob(false)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).
		Return(wire.OK("updated"), nil)

	outcomes := s.newDispatcher().Dispatch(s.f.ctx, job)

	s.True(outcomes[1].Skipped)
	s.Zero(outcomes[1].Attempts)
	s.Equal([]audit.ActionKind{audit.ActionEmployeeSuccess}, s.f.kinds())
}

func (s *DispatcherSuite) TestInsurerAPIURLOverridesConfiguredURL() {
	s.job.Insurer.APIURL = "http://axa.example"
	s.caller.EXPECT().Call(gomock.Any(), "http://employee.test", gomock.Any(), gomock.Any(), gomock.Any()).Return(wire.OK(""), nil)
	s.caller.EXPECT().Call(gomock.Any(), "http://axa.example", domain.SystemInsurance, gomock.Any(), gomock.Any()).Return(wire.OK(""), nil)

	s.newDispatcher().Dispatch(s.f.ctx, s.job)
}

func (s *DispatcherSuite) TestRetryableFailureIsRetriedAndEachAttemptAudited() {
	outage := &propagation.CallError{Category: propagation.FailureOutage, Message: "status 503", Retryable: true}
	gomock.InOrder(
		s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.Result{}, outage),
		s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.Result{}, outage),
		s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.OK("updated"), nil),
	)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).Return(wire.OK(""), nil)

	d := s.newDispatcher(propagation.WithSequential(), propagation.WithRetry(3, time.Millisecond, 2*time.Millisecond))
	outcomes := d.Dispatch(s.f.ctx, s.job)

	s.True(outcomes[0].Success)
	s.Equal(3, outcomes[0].Attempts)
	s.Equal([]audit.ActionKind{
		audit.ActionDispatchRetry,
		audit.ActionDispatchRetry,
		audit.ActionEmployeeSuccess,
		audit.ActionInsuranceSuccess,
	}, s.f.kinds())
}

func (s *DispatcherSuite) TestRetriesAreBounded() {
	outage := &propagation.CallError{Category: propagation.FailureTimeout, Message: "call timed out", Retryable: true}
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.Result{}, outage).Times(2)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).Return(wire.OK(""), nil)

	d := s.newDispatcher(propagation.WithSequential(), propagation.WithRetry(2, time.Millisecond, time.Millisecond))
	outcomes := d.Dispatch(s.f.ctx, s.job)

	s.False(outcomes[0].Success)
	s.Equal(2, outcomes[0].Attempts)
	s.Equal([]audit.ActionKind{audit.ActionDispatchRetry, audit.ActionEmployeeFailed, audit.ActionInsuranceSuccess}, s.f.kinds())
}

func (s *DispatcherSuite) TestPermanentFailureIsNotRetried() {
	rejected := &propagation.CallError{Category: propagation.FailureStatus, Message: "status 400"}
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.Result{}, rejected).Times(1)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).Return(wire.OK(""), nil)

	outcomes := s.newDispatcher(propagation.WithRetry(5, time.Millisecond, time.Millisecond)).Dispatch(s.f.ctx, s.job)

	s.Equal(1, outcomes[0].Attempts)
	s.NotContains(s.f.kinds(), audit.ActionDispatchRetry)
}

func (s *DispatcherSuite) TestDefaultIsASingleAttempt() {
	outage := &propagation.CallError{Category: propagation.FailureOutage, Message: "status 503", Retryable: true}
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemEmployee, gomock.Any(), gomock.Any()).Return(wire.Result{}, outage).Times(1)
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), domain.SystemInsurance, gomock.Any(), gomock.Any()).Return(wire.Result{}, outage).Times(1)

	outcomes := s.newDispatcher().Dispatch(s.f.ctx, s.job)

	s.Equal(1, outcomes[0].Attempts)
	s.Equal(1, outcomes[1].Attempts)
	s.ElementsMatch([]audit.ActionKind{audit.ActionEmployeeFailed, audit.ActionInsuranceFailed}, s.f.kinds())
}

func (s *DispatcherSuite) TestAuditTimestampsNeverDecrease() {
	s.caller.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(wire.OK(""), nil).Times(2)

	s.newDispatcher().Dispatch(s.f.ctx, s.job)

	entries := s.f.entries(s.T())
	for i := 1; i < len(entries); i++ {
		s.False(entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

// A slow destination times out while the other answers; both are attempted
// and audited, and the fast one is not held back by the slow one.
func TestDispatcher_TimeoutIsolatedFromOtherDestination(t *testing.T) {
	f := newFixture(t)
	ep := f.seedEpisode(t, true)
	n := &models.Notification{InformationID: ep.Record.ID, Subject: "s", Sender: "System", Recipient: "Administration", ComposedAt: testNow, SentAt: testNow}
	require.NoError(t, f.records.CreateNotification(f.ctx, n))

	release := make(chan struct{})
	defer close(release)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	var fastCalls atomic.Int32
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fastCalls.Add(1)
		respond(http.StatusOK, `{"data":{"updateInsuranceInfo":{"success":true,"message":"created"}}}`)(w, r)
	}))
	defer fast.Close()

	reg := prometheus.NewRegistry()
	d := propagation.NewDispatcher(
		propagation.NewClient(150*time.Millisecond),
		[]propagation.Destination{
			{System: domain.SystemEmployee, URL: slow.URL},
			{System: domain.SystemInsurance, URL: fast.URL, RequiresInsurer: true},
		},
		f.records, f.auditor,
		propagation.WithDispatcherLogger(discardLogger()),
		propagation.WithDispatcherMetrics(metrics.New(reg)),
	)

	outcomes := d.Dispatch(f.ctx, propagation.Job{Episode: ep, Notification: *n})

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Contains(t, outcomes[0].Message, "timeout")
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, int32(1), fastCalls.Load())
	assert.ElementsMatch(t, []audit.ActionKind{audit.ActionEmployeeFailed, audit.ActionInsuranceSuccess}, f.kinds())

	entries, err := f.auditStore.ListByNotification(f.ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBuildUpsert_NotificationID(t *testing.T) {
	hr := func(id int64) domain.ForeignRef { return domain.ForeignRef{System: domain.SystemHR, ID: id} }
	tests := []struct {
		name         string
		recordOrigin domain.ForeignRef
		notifOrigin  domain.ForeignRef
		want         int64
	}{
		{name: "origin sends its own id", want: 31},
		{name: "relay forwards the origin notification", recordOrigin: hr(12), notifOrigin: hr(21), want: 21},
		{name: "relay without origin notification sends none", recordOrigin: hr(12), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := propagation.Job{
				Episode: propagation.Episode{
					Record: models.InformationRecord{ID: 5, Origin: tt.recordOrigin},
					Person: models.Person{ID: 3, Origin: hr(7)},
				},
				Notification: models.Notification{ID: 31, Origin: tt.notifOrigin, ComposedAt: testNow},
			}

			in := propagation.BuildUpsert(job)

			require.NotNil(t, in.Notification)
			assert.Equal(t, tt.want, in.Notification.ID)
			assert.Equal(t, int64(7), in.Utilisateur.ID)
		})
	}
}

func TestOutcome_Err(t *testing.T) {
	tests := []struct {
		name    string
		outcome propagation.Outcome
		wantErr string
	}{
		{"delivered", propagation.Outcome{Destination: domain.SystemEmployee, Success: true}, ""},
		{"skipped", propagation.Outcome{Destination: domain.SystemInsurance, Skipped: true}, ""},
		{"failed", propagation.Outcome{Destination: domain.SystemInsurance, Message: "timeout: call timed out"}, "insurance: timeout: call timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Err()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
