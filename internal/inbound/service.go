// Package inbound applies upserts received from the origin to a downstream
// service's local copy, and reports back to the origin.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/internal/platform/metrics"
	"infosync/internal/propagation"
	"infosync/internal/wire"
	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
	audit "infosync/pkg/platform/audit"
	"infosync/pkg/platform/sentinel"
	"infosync/pkg/requestcontext"
)

var tracer = otel.Tracer("infosync/inbound")

const (
	senderLabel            = "HR system"
	receptionDescription   = "notification received from the HR system about an information update"
	defaultFeedbackTimeout = 5 * time.Second
)

// Relay propagates a locally confirmed copy one hop further.
type Relay interface {
	Propagate(ctx context.Context, ep propagation.Episode) *models.Notification
}

// Service is the upsert handler of one downstream system.
type Service struct {
	system      domain.System
	companyName string
	repo        store.Repository
	auditor     propagation.Auditor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	relay       Relay

	feedbackCaller  propagation.Caller
	feedbackURL     string
	feedbackTimeout time.Duration
	feedbackWG      sync.WaitGroup
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

// WithCompanyName sets the insurer an insurance-side deployment belongs to.
func WithCompanyName(name string) Option {
	return func(s *Service) {
		s.companyName = strings.TrimSpace(name)
	}
}

// WithFeedback enables acknowledgements to the origin at baseURL.
func WithFeedback(caller propagation.Caller, baseURL string, timeout time.Duration) Option {
	return func(s *Service) {
		s.feedbackCaller = caller
		s.feedbackURL = baseURL
		if timeout > 0 {
			s.feedbackTimeout = timeout
		}
	}
}

// WithRelay forwards confirmations of the local copy to further peers.
func WithRelay(r Relay) Option {
	return func(s *Service) {
		s.relay = r
	}
}

func New(system domain.System, repo store.Repository, auditor propagation.Auditor, opts ...Option) *Service {
	s := &Service{
		system:          system,
		repo:            repo,
		auditor:         auditor,
		logger:          slog.Default(),
		feedbackTimeout: defaultFeedbackTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mutation is the upsert mutation this service answers.
func (s *Service) Mutation() string {
	m, _ := wire.UpsertMutation(s.system)
	return m
}

// Upsert creates or merges the local copy described by in. It never returns
// an error: every failure is a structured result.
func (s *Service) Upsert(ctx context.Context, in wire.UpsertInput) wire.Result {
	ctx, span := tracer.Start(ctx, "inbound.upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("service", string(s.system)),
		attribute.Int64("origin.information_id", in.InformationID),
	)

	res, err := s.upsert(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "upsert failed",
			"information_id", in.InformationID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncUpserts(false)
		}
		return wire.Fail(resultMessage(err))
	}
	if s.metrics != nil {
		s.metrics.IncUpserts(true)
	}
	return res
}

func (s *Service) upsert(ctx context.Context, in wire.UpsertInput) (wire.Result, error) {
	if err := s.validate(in); err != nil {
		return wire.Result{}, err
	}
	personRef := domain.ForeignRef{System: domain.SystemHR, ID: in.Utilisateur.ID}
	recordRef := domain.ForeignRef{System: domain.SystemHR, ID: in.InformationID}
	now := requestcontext.Now(ctx).UTC()

	applied, err := s.apply(ctx, personRef, recordRef, in, now)
	if errors.Is(err, sentinel.ErrConflict) {
		// A concurrent first delivery created the same person or record.
		applied, err = s.apply(ctx, personRef, recordRef, in, now)
	}
	if err != nil {
		return wire.Result{}, err
	}

	if in.Notification != nil {
		s.receive(ctx, applied, *in.Notification, now)
	}
	if applied.episode != nil {
		if in.Notification != nil && in.Notification.ID > 0 {
			applied.episode.OriginNotification = domain.ForeignRef{System: domain.SystemHR, ID: in.Notification.ID}
		}
		s.relay.Propagate(ctx, *applied.episode)
	}
	return wire.OK(s.successMessage()), nil
}

func (s *Service) validate(in wire.UpsertInput) error {
	if s.system == domain.SystemInsurance && s.companyName == "" {
		return dErrors.New(dErrors.CodeValidation, "no insurance company is configured on this service")
	}
	if in.InformationID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "informationId must be positive")
	}
	if in.Utilisateur.ID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "utilisateur.id must be positive")
	}
	return nil
}

type applied struct {
	person  models.Person
	record  models.InformationRecord
	episode *propagation.Episode
}

// apply runs the person and record upsert in one transaction keyed by the
// origin's information id.
func (s *Service) apply(ctx context.Context, personRef, recordRef domain.ForeignRef, in wire.UpsertInput, now time.Time) (applied, error) {
	var out applied
	txCtx := store.WithLockKey(ctx, "origin-information:"+recordRef.String())
	err := s.repo.RunInTx(txCtx, func(tx store.Store) error {
		person, err := upsertPerson(txCtx, tx, personRef, in.Utilisateur, now)
		if err != nil {
			return err
		}

		patch := models.RecordPatch{
			EmployeeNumber:  in.NumeroEmploye,
			Address:         in.Adresse,
			InsuranceNumber: in.NumeroAssurance,
			NationalID:      in.CIN,
			Confirmed:       in.Statut,
		}
		var prev *models.InformationRecord
		rec, err := tx.FindRecordByOrigin(txCtx, recordRef)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			rec = &models.InformationRecord{PersonID: person.ID, Origin: recordRef, CreatedAt: now}
			rec.Apply(patch, now)
			if err := tx.CreateRecord(txCtx, rec); err != nil {
				return fmt.Errorf("create information copy: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find information copy: %w", err)
		default:
			before := *rec
			prev = &before
			rec.PersonID = person.ID
			rec.Apply(patch, now)
			if err := tx.UpdateRecord(txCtx, rec); err != nil {
				return fmt.Errorf("update information copy: %w", err)
			}
		}

		out = applied{person: *person, record: *rec}
		if s.relay != nil && propagation.ShouldPropagate(prev, *rec) {
			ep, err := propagation.LoadEpisode(txCtx, tx, *rec)
			if err != nil {
				return fmt.Errorf("load relay episode: %w", err)
			}
			out.episode = &ep
		}
		return nil
	})
	return out, err
}

func upsertPerson(ctx context.Context, tx store.Store, ref domain.ForeignRef, u wire.Utilisateur, now time.Time) (*models.Person, error) {
	patch := models.PersonPatch{FirstName: u.Prenom, LastName: u.Nom, Email: u.Email}
	person, err := tx.FindPersonByOrigin(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		person = &models.Person{Origin: ref, CreatedAt: now}
		person.Apply(patch)
		if err := tx.CreatePerson(ctx, person); err != nil {
			return nil, fmt.Errorf("create person copy: %w", err)
		}
		return person, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person copy: %w", err)
	}
	if person.Apply(patch) {
		if err := tx.UpdatePerson(ctx, person); err != nil {
			return nil, fmt.Errorf("update person copy: %w", err)
		}
	}
	return person, nil
}

// receive stores the local trace of the origin's notification and
// acknowledges it. The upsert has already committed, so failures here are
// logged and do not change the result.
func (s *Service) receive(ctx context.Context, a applied, in wire.Notification, now time.Time) {
	composedAt := now
	if t, err := time.Parse(time.RFC3339, in.DateEnvoi); err == nil {
		composedAt = t.UTC()
	}
	n := &models.Notification{
		InformationID: a.record.ID,
		Subject:       in.Objet,
		Body:          in.Contenu,
		Sender:        senderLabel,
		Recipient:     s.recipientLabel(a.person),
		ComposedAt:    composedAt,
		SentAt:        composedAt,
		Delivered:     true,
	}
	if in.ID > 0 {
		n.Origin = domain.ForeignRef{System: domain.SystemHR, ID: in.ID}
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "storing received notification failed",
			"information_id", int64(a.record.ID),
			"origin_notification_id", in.ID,
			"error", err,
		)
	} else {
		s.auditor.Record(ctx, audit.ActionReception, receptionDescription, audit.About(n.ID))
	}

	if in.ID > 0 {
		s.sendFeedback(ctx, in.ID)
	}
}

func (s *Service) recipientLabel(p models.Person) string {
	if s.system == domain.SystemInsurance {
		return "Insurance company " + s.companyName
	}
	return "Employee " + p.FullName()
}

func (s *Service) successMessage() string {
	if s.system == domain.SystemInsurance {
		return "insured person information updated"
	}
	return "employee information updated"
}

// sendFeedback acknowledges the origin notification in the background. The
// call is detached from ctx so it outlives the request.
func (s *Service) sendFeedback(ctx context.Context, originNotificationID int64) {
	if s.feedbackCaller == nil || s.feedbackURL == "" {
		return
	}
	input := wire.FeedbackInput{
		NotificationID: originNotificationID,
		Status:         true,
		Message:        fmt.Sprintf("notification received and processed by the %s service", s.system),
		Source:         string(s.system),
	}
	detached := context.WithoutCancel(ctx)

	s.feedbackWG.Add(1)
	go func() {
		defer s.feedbackWG.Done()
		fctx, cancel := context.WithTimeout(detached, s.feedbackTimeout)
		defer cancel()

		res, err := s.feedbackCaller.Call(fctx, s.feedbackURL, domain.SystemHR, wire.MutationFeedback, input)
		ok := err == nil && res.Success
		if s.metrics != nil {
			s.metrics.IncFeedbackSent(ok)
		}
		if !ok {
			msg := res.Message
			if err != nil {
				msg = err.Error()
			}
			s.logger.WarnContext(fctx, "feedback to origin failed",
				"origin_notification_id", originNotificationID,
				"error", msg,
			)
		}
	}()
}

// Wait blocks until in-flight feedback calls finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.feedbackWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "error: " + err.Error()
}
