// Package store is the Record Store: persons, insurers, information records
// and notifications, in memory or in SQL.
package store

import (
	"context"
	"time"

	"infosync/internal/information/models"
	"infosync/pkg/domain"
)

// Store is the set of record operations. Lookups return sentinel.ErrNotFound
// for missing rows; creates that collide on an origin reference return
// sentinel.ErrConflict.
type Store interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	UpdatePerson(ctx context.Context, p *models.Person) error
	FindPerson(ctx context.Context, id domain.PersonID) (*models.Person, error)
	FindPersonByOrigin(ctx context.Context, ref domain.ForeignRef) (*models.Person, error)

	CreateInsurer(ctx context.Context, i *models.Insurer) error
	FindInsurer(ctx context.Context, id domain.InsurerID) (*models.Insurer, error)

	CreateRecord(ctx context.Context, r *models.InformationRecord) error
	UpdateRecord(ctx context.Context, r *models.InformationRecord) error
	// FindRecord reads a record. Inside RunInTx the row stays locked until
	// the transaction ends.
	FindRecord(ctx context.Context, id domain.InformationID) (*models.InformationRecord, error)
	FindRecordByOrigin(ctx context.Context, ref domain.ForeignRef) (*models.InformationRecord, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	FindNotification(ctx context.Context, id domain.NotificationID) (*models.Notification, error)
	MarkDelivered(ctx context.Context, id domain.NotificationID, sentAt time.Time, delivered bool) error
	MarkAcknowledged(ctx context.Context, id domain.NotificationID) error
}

// Repository is a Store that can also run a read-evaluate-write step
// atomically. Calls made directly on the Repository autocommit.
type Repository interface {
	Store
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}

type lockKey struct{}

// WithLockKey names the entity a transaction is about. The in-memory store
// serializes transactions that share a key; SQL stores rely on row locks and
// ignore it.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKey{}, key)
}

func lockKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(lockKey{}).(string)
	return key
}
