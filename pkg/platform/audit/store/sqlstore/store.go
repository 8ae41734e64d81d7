// Package sqlstore persists audit entries with sqlx. Each append also writes
// an outbox row in the same transaction; the outbox relay publishes those rows
// to Kafka for external reporting.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	"infosync/pkg/platform/sqldb"
)

// Store implements audit.Store and the outbox source.
//
// It never joins a caller's transaction: an audit entry must survive a
// rolled-back business write, and a failed audit write must never roll one back.
type Store struct {
	db     *sqlx.DB
	outbox bool
}

type Option func(*Store)

// WithoutOutbox disables outbox rows, for deployments with no Kafka.
func WithoutOutbox() Option {
	return func(s *Store) {
		s.outbox = false
	}
}

func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, outbox: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type entryRow struct {
	Seq            int64         `db:"seq"`
	OccurredAt     time.Time     `db:"occurred_at"`
	Kind           string        `db:"kind"`
	Description    string        `db:"description"`
	NotificationID sql.NullInt64 `db:"notification_id"`
	Service        string        `db:"service"`
	RequestID      string        `db:"request_id"`
}

func (r entryRow) toEntry() audit.Entry {
	e := audit.Entry{
		Seq:         r.Seq,
		Timestamp:   r.OccurredAt.UTC(),
		Kind:        audit.ActionKind(r.Kind),
		Description: r.Description,
		Service:     domain.System(r.Service),
		RequestID:   r.RequestID,
	}
	if r.NotificationID.Valid {
		e.NotificationID = audit.About(domain.NotificationID(r.NotificationID.Int64))
	}
	return e
}

// outboxPayload is the JSON document published on the audit topic.
type outboxPayload struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	Timestamp      string `json:"timestamp"`
	Kind           string `json:"kind"`
	Category       string `json:"category"`
	Description    string `json:"description,omitempty"`
	NotificationID *int64 `json:"notification_id,omitempty"`
	Service        string `json:"service"`
	RequestID      string `json:"request_id,omitempty"`
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	var notificationID sql.NullInt64
	if entry.NotificationID != nil {
		notificationID = sql.NullInt64{Int64: int64(*entry.NotificationID), Valid: true}
	}

	return sqldb.RunInTx(ctx, s.db, 0, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO audit_entries (occurred_at, kind, description, notification_id, service, request_id)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING seq
		`)
		var seq int64
		if err := tx.QueryRowxContext(ctx, query,
			entry.Timestamp,
			string(entry.Kind),
			entry.Description,
			notificationID,
			string(entry.Service),
			entry.RequestID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		entry.Seq = seq

		if !s.outbox {
			return nil
		}
		return s.insertOutbox(ctx, tx, entry)
	})
}

func (s *Store) insertOutbox(ctx context.Context, tx *sqlx.Tx, entry *audit.Entry) error {
	eventID := uuid.New()
	payload := outboxPayload{
		ID:          eventID.String(),
		Seq:         entry.Seq,
		Timestamp:   entry.Timestamp.Format(time.RFC3339Nano),
		Kind:        string(entry.Kind),
		Category:    string(entry.Kind.Category()),
		Description: entry.Description,
		Service:     string(entry.Service),
		RequestID:   entry.RequestID,
	}
	key := string(entry.Service)
	if entry.NotificationID != nil {
		id := int64(*entry.NotificationID)
		payload.NotificationID = &id
		key = fmt.Sprintf("%s:%d", entry.Service, id)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := tx.Rebind(`
		INSERT INTO audit_outbox (event_id, entry_seq, message_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, query, eventID.String(), entry.Seq, key, string(body), entry.Timestamp); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

const selectEntries = `
	SELECT seq, occurred_at, kind, description, notification_id, service, request_id
	FROM audit_entries
`

func (s *Store) List(ctx context.Context) ([]audit.Entry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, selectEntries+" ORDER BY occurred_at, seq"); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return toEntries(rows), nil
}

func (s *Store) ListByNotification(ctx context.Context, id domain.NotificationID) ([]audit.Entry, error) {
	var rows []entryRow
	query := s.db.Rebind(selectEntries + " WHERE notification_id = ? ORDER BY occurred_at, seq")
	if err := s.db.SelectContext(ctx, &rows, query, int64(id)); err != nil {
		return nil, fmt.Errorf("list audit entries for notification: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []entryRow) []audit.Entry {
	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out
}

// FetchPending returns up to limit unpublished outbox rows, oldest first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]audit.OutboxMessage, error) {
	var rows []struct {
		ID      int64  `db:"id"`
		Key     string `db:"message_key"`
		Payload string `db:"payload"`
	}
	query := s.db.Rebind(`
		SELECT id, message_key, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?
	`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("fetch pending outbox rows: %w", err)
	}
	out := make([]audit.OutboxMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, audit.OutboxMessage{ID: r.ID, Key: r.Key, Payload: []byte(r.Payload)})
	}
	return out, nil
}

// MarkPublished stamps the given outbox rows as delivered to the broker.
func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE audit_outbox SET published_at = ? WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build mark published query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}
