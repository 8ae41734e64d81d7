// Package service is the origin's thin write path: persons, insurers and
// information records. A write that confirms a record hands the committed
// state to the propagation pipeline after the transaction ends.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"infosync/internal/information/models"
	"infosync/internal/information/store"
	"infosync/internal/propagation"
	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
	"infosync/pkg/platform/sentinel"
	"infosync/pkg/requestcontext"
)

// Propagator runs a propagation episode after commit. It must not fail the
// write: errors are its own to record.
type Propagator interface {
	Propagate(ctx context.Context, ep propagation.Episode) *models.Notification
}

type Service struct {
	repo       store.Repository
	propagator Propagator
	logger     *slog.Logger
}

type Option func(*Service)

func WithPropagator(p Propagator) Option {
	return func(s *Service) {
		s.propagator = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreatePersonCommand struct {
	FirstName string
	LastName  string
	Email     string
	Role      string
}

func (c CreatePersonCommand) Validate() error {
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return dErrors.New(dErrors.CodeValidation, "first name or last name is required")
	}
	if email := strings.TrimSpace(c.Email); email != "" && !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

func (s *Service) CreatePerson(ctx context.Context, cmd CreatePersonCommand) (*models.Person, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	p := &models.Person{CreatedAt: requestcontext.Now(ctx).UTC()}
	p.Apply(models.PersonPatch{
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Email:     cmd.Email,
		Role:      cmd.Role,
	})
	if err := s.repo.CreatePerson(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create person")
	}
	return p, nil
}

type CreateInsurerCommand struct {
	Name    string
	Address string
	Email   string
	APIURL  string
}

func (c CreateInsurerCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "insurer name is required")
	}
	if email := strings.TrimSpace(c.Email); email != "" && !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

func (s *Service) CreateInsurer(ctx context.Context, cmd CreateInsurerCommand) (*models.Insurer, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	i := &models.Insurer{
		Name:      strings.TrimSpace(cmd.Name),
		Address:   strings.TrimSpace(cmd.Address),
		Email:     strings.TrimSpace(cmd.Email),
		APIURL:    strings.TrimRight(strings.TrimSpace(cmd.APIURL), "/"),
		CreatedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := s.repo.CreateInsurer(ctx, i); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create insurer")
	}
	return i, nil
}

// SaveResult is what a record write produced. Notification is nil when the
// write did not start an episode, or when composing it failed.
type SaveResult struct {
	Record       models.InformationRecord
	Propagated   bool
	Notification *models.Notification
}

// CreateInformation stores a new record for personID. A record created
// confirmed starts an episode.
func (s *Service) CreateInformation(ctx context.Context, personID domain.PersonID, patch models.RecordPatch) (*SaveResult, error) {
	now := requestcontext.Now(ctx).UTC()
	var (
		rec models.InformationRecord
		ep  *propagation.Episode
	)
	err := s.repo.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.FindPerson(ctx, personID); err != nil {
			return referenceErr(err, "person")
		}
		if err := checkInsurer(ctx, tx, patch.InsurerID); err != nil {
			return err
		}
		rec = models.InformationRecord{PersonID: personID, CreatedAt: now}
		rec.Apply(patch, now)
		if err := tx.CreateRecord(ctx, &rec); err != nil {
			return fmt.Errorf("create information record: %w", err)
		}
		var err error
		ep, err = episodeIf(ctx, tx, nil, rec)
		return err
	})
	if err != nil {
		return nil, writeErr(err, "failed to create information record")
	}
	return s.afterCommit(ctx, rec, ep), nil
}

// UpdateInformation merges patch into the record. Only supplied fields
// change; Confirmed changes only when the patch carries it.
func (s *Service) UpdateInformation(ctx context.Context, id domain.InformationID, patch models.RecordPatch) (*SaveResult, error) {
	now := requestcontext.Now(ctx).UTC()
	var (
		rec models.InformationRecord
		ep  *propagation.Episode
	)
	txCtx := store.WithLockKey(ctx, fmt.Sprintf("information:%d", id))
	err := s.repo.RunInTx(txCtx, func(tx store.Store) error {
		prev, err := tx.FindRecord(txCtx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeNotFound, "information record not found")
			}
			return err
		}
		if err := checkInsurer(txCtx, tx, patch.InsurerID); err != nil {
			return err
		}
		rec = *prev
		rec.Apply(patch, now)
		if err := tx.UpdateRecord(txCtx, &rec); err != nil {
			return fmt.Errorf("update information record: %w", err)
		}
		ep, err = episodeIf(txCtx, tx, prev, rec)
		return err
	})
	if err != nil {
		return nil, writeErr(err, "failed to update information record")
	}
	return s.afterCommit(ctx, rec, ep), nil
}

// episodeIf evaluates the detector against the locked previous state and,
// when it fires, snapshots the episode inside the same transaction.
func episodeIf(ctx context.Context, tx store.Store, prev *models.InformationRecord, next models.InformationRecord) (*propagation.Episode, error) {
	if !propagation.ShouldPropagate(prev, next) {
		return nil, nil
	}
	ep, err := propagation.LoadEpisode(ctx, tx, next)
	if err != nil {
		return nil, fmt.Errorf("load episode: %w", err)
	}
	return &ep, nil
}

func (s *Service) afterCommit(ctx context.Context, rec models.InformationRecord, ep *propagation.Episode) *SaveResult {
	res := &SaveResult{Record: rec}
	if ep == nil {
		return res
	}
	res.Propagated = true
	s.logger.InfoContext(ctx, "information confirmed, propagating",
		"information_id", int64(rec.ID),
		"person_id", int64(rec.PersonID),
	)
	if s.propagator != nil {
		res.Notification = s.propagator.Propagate(ctx, *ep)
	}
	return res
}

func checkInsurer(ctx context.Context, tx store.Store, id *domain.InsurerID) error {
	if id == nil {
		return nil
	}
	if _, err := tx.FindInsurer(ctx, *id); err != nil {
		return referenceErr(err, "insurer")
	}
	return nil
}

func referenceErr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeValidation, what+" does not exist")
	}
	return err
}

// writeErr keeps coded errors from inside the transaction and codes the rest
// as internal.
func writeErr(err error, message string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
