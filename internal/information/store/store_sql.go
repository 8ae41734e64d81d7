package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"infosync/internal/information/models"
	"infosync/pkg/domain"
	"infosync/pkg/platform/sentinel"
	"infosync/pkg/platform/sqldb"
)

// SQLStore implements Repository on Postgres or SQLite through sqlx. Inside
// RunInTx record reads take a row lock on Postgres; SQLite runs on a single
// connection, so its transactions are already serialized.
type SQLStore struct {
	db      *sqlx.DB
	q       sqlx.ExtContext
	dialect sqldb.Dialect
	timeout time.Duration
	inTx    bool
}

func NewSQLStore(db *sqlx.DB, txTimeout time.Duration) *SQLStore {
	return &SQLStore{
		db:      db,
		q:       db,
		dialect: sqldb.DialectOf(db),
		timeout: txTimeout,
	}
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return sqldb.RunInTx(ctx, s.db, s.timeout, func(tx *sqlx.Tx) error {
		return fn(&SQLStore{db: s.db, q: tx, dialect: s.dialect, timeout: s.timeout, inTx: true})
	})
}

type personRow struct {
	ID           int64          `db:"id"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Email        string         `db:"email"`
	Role         string         `db:"role"`
	OriginSystem sql.NullString `db:"origin_system"`
	OriginID     sql.NullInt64  `db:"origin_id"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r personRow) toModel() *models.Person {
	return &models.Person{
		ID:        domain.PersonID(r.ID),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Role:      r.Role,
		Origin:    fromNullRef(r.OriginSystem, r.OriginID),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type insurerRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Address   string    `db:"address"`
	Email     string    `db:"email"`
	APIURL    string    `db:"api_url"`
	CreatedAt time.Time `db:"created_at"`
}

type recordRow struct {
	ID                int64          `db:"id"`
	PersonID          int64          `db:"person_id"`
	EmployeeNumber    string         `db:"employee_number"`
	Address           string         `db:"address"`
	InsuranceNumber   string         `db:"insurance_number"`
	NationalID        string         `db:"national_id"`
	Notes             string         `db:"notes"`
	Confirmed         bool           `db:"confirmed"`
	InsurerID         sql.NullInt64  `db:"insurer_id"`
	NotificationEmail string         `db:"notification_email"`
	OriginSystem      sql.NullString `db:"origin_system"`
	OriginID          sql.NullInt64  `db:"origin_id"`
	CreatedAt         time.Time      `db:"created_at"`
	ModifiedAt        time.Time      `db:"modified_at"`
}

func (r recordRow) toModel() *models.InformationRecord {
	rec := &models.InformationRecord{
		ID:                domain.InformationID(r.ID),
		PersonID:          domain.PersonID(r.PersonID),
		EmployeeNumber:    r.EmployeeNumber,
		Address:           r.Address,
		InsuranceNumber:   r.InsuranceNumber,
		NationalID:        r.NationalID,
		Notes:             r.Notes,
		Confirmed:         r.Confirmed,
		NotificationEmail: r.NotificationEmail,
		Origin:            fromNullRef(r.OriginSystem, r.OriginID),
		CreatedAt:         r.CreatedAt.UTC(),
		ModifiedAt:        r.ModifiedAt.UTC(),
	}
	if r.InsurerID.Valid {
		id := domain.InsurerID(r.InsurerID.Int64)
		rec.InsurerID = &id
	}
	return rec
}

type notificationRow struct {
	ID            int64          `db:"id"`
	InformationID int64          `db:"information_id"`
	Subject       string         `db:"subject"`
	Body          string         `db:"body"`
	Sender        string         `db:"sender"`
	Recipient     string         `db:"recipient"`
	ComposedAt    time.Time      `db:"composed_at"`
	SentAt        time.Time      `db:"sent_at"`
	Delivered     bool           `db:"delivered"`
	Acknowledged  bool           `db:"acknowledged"`
	OriginSystem  sql.NullString `db:"origin_system"`
	OriginID      sql.NullInt64  `db:"origin_id"`
}

func (r notificationRow) toModel() *models.Notification {
	return &models.Notification{
		ID:            domain.NotificationID(r.ID),
		InformationID: domain.InformationID(r.InformationID),
		Subject:       r.Subject,
		Body:          r.Body,
		Sender:        r.Sender,
		Recipient:     r.Recipient,
		ComposedAt:    r.ComposedAt.UTC(),
		SentAt:        r.SentAt.UTC(),
		Delivered:     r.Delivered,
		Acknowledged:  r.Acknowledged,
		Origin:        fromNullRef(r.OriginSystem, r.OriginID),
	}
}

func (s *SQLStore) CreatePerson(ctx context.Context, p *models.Person) error {
	system, id := toNullRef(p.Origin)
	query := s.q.Rebind(`
		INSERT INTO persons (first_name, last_name, email, role, origin_system, origin_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var newID int64
	err := s.q.QueryRowxContext(ctx, query,
		p.FirstName, p.LastName, p.Email, p.Role, system, id, p.CreatedAt.UTC(),
	).Scan(&newID)
	if err != nil {
		return insertErr("person", err)
	}
	p.ID = domain.PersonID(newID)
	return nil
}

func (s *SQLStore) UpdatePerson(ctx context.Context, p *models.Person) error {
	query := s.q.Rebind(`
		UPDATE persons SET first_name = ?, last_name = ?, email = ?, role = ?
		WHERE id = ?
	`)
	res, err := s.q.ExecContext(ctx, query, p.FirstName, p.LastName, p.Email, p.Role, int64(p.ID))
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return requireAffected(res)
}

const selectPerson = `
	SELECT id, first_name, last_name, email, role, origin_system, origin_id, created_at
	FROM persons
`

func (s *SQLStore) FindPerson(ctx context.Context, id domain.PersonID) (*models.Person, error) {
	var row personRow
	if err := sqlx.GetContext(ctx, s.q, &row, s.q.Rebind(selectPerson+" WHERE id = ?"), int64(id)); err != nil {
		return nil, findErr("person", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) FindPersonByOrigin(ctx context.Context, ref domain.ForeignRef) (*models.Person, error) {
	var row personRow
	query := s.q.Rebind(selectPerson + " WHERE origin_system = ? AND origin_id = ?")
	if err := sqlx.GetContext(ctx, s.q, &row, query, string(ref.System), ref.ID); err != nil {
		return nil, findErr("person", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) CreateInsurer(ctx context.Context, i *models.Insurer) error {
	query := s.q.Rebind(`
		INSERT INTO insurers (name, address, email, api_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	var newID int64
	if err := s.q.QueryRowxContext(ctx, query, i.Name, i.Address, i.Email, i.APIURL, i.CreatedAt.UTC()).Scan(&newID); err != nil {
		return insertErr("insurer", err)
	}
	i.ID = domain.InsurerID(newID)
	return nil
}

func (s *SQLStore) FindInsurer(ctx context.Context, id domain.InsurerID) (*models.Insurer, error) {
	var row insurerRow
	query := s.q.Rebind(`SELECT id, name, address, email, api_url, created_at FROM insurers WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.q, &row, query, int64(id)); err != nil {
		return nil, findErr("insurer", err)
	}
	return &models.Insurer{
		ID:        domain.InsurerID(row.ID),
		Name:      row.Name,
		Address:   row.Address,
		Email:     row.Email,
		APIURL:    row.APIURL,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (s *SQLStore) CreateRecord(ctx context.Context, r *models.InformationRecord) error {
	system, origin := toNullRef(r.Origin)
	query := s.q.Rebind(`
		INSERT INTO information_records (
			person_id, employee_number, address, insurance_number, national_id, notes,
			confirmed, insurer_id, notification_email, origin_system, origin_id, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var newID int64
	err := s.q.QueryRowxContext(ctx, query,
		int64(r.PersonID), r.EmployeeNumber, r.Address, r.InsuranceNumber, r.NationalID, r.Notes,
		r.Confirmed, nullInsurer(r.InsurerID), r.NotificationEmail, system, origin,
		r.CreatedAt.UTC(), r.ModifiedAt.UTC(),
	).Scan(&newID)
	if err != nil {
		return insertErr("information record", err)
	}
	r.ID = domain.InformationID(newID)
	return nil
}

func (s *SQLStore) UpdateRecord(ctx context.Context, r *models.InformationRecord) error {
	query := s.q.Rebind(`
		UPDATE information_records SET
			person_id = ?, employee_number = ?, address = ?, insurance_number = ?, national_id = ?,
			notes = ?, confirmed = ?, insurer_id = ?, notification_email = ?, modified_at = ?
		WHERE id = ?
	`)
	res, err := s.q.ExecContext(ctx, query,
		int64(r.PersonID), r.EmployeeNumber, r.Address, r.InsuranceNumber, r.NationalID,
		r.Notes, r.Confirmed, nullInsurer(r.InsurerID), r.NotificationEmail, r.ModifiedAt.UTC(),
		int64(r.ID),
	)
	if err != nil {
		return fmt.Errorf("update information record: %w", err)
	}
	return requireAffected(res)
}

const selectRecord = `
	SELECT id, person_id, employee_number, address, insurance_number, national_id, notes,
		confirmed, insurer_id, notification_email, origin_system, origin_id, created_at, modified_at
	FROM information_records
`

func (s *SQLStore) FindRecord(ctx context.Context, id domain.InformationID) (*models.InformationRecord, error) {
	var row recordRow
	query := s.q.Rebind(selectRecord + " WHERE id = ?" + s.lockSuffix())
	if err := sqlx.GetContext(ctx, s.q, &row, query, int64(id)); err != nil {
		return nil, findErr("information record", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) FindRecordByOrigin(ctx context.Context, ref domain.ForeignRef) (*models.InformationRecord, error) {
	var row recordRow
	query := s.q.Rebind(selectRecord + " WHERE origin_system = ? AND origin_id = ?" + s.lockSuffix())
	if err := sqlx.GetContext(ctx, s.q, &row, query, string(ref.System), ref.ID); err != nil {
		return nil, findErr("information record", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	system, origin := toNullRef(n.Origin)
	query := s.q.Rebind(`
		INSERT INTO notifications (
			information_id, subject, body, sender, recipient, composed_at, sent_at,
			delivered, acknowledged, origin_system, origin_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var newID int64
	err := s.q.QueryRowxContext(ctx, query,
		int64(n.InformationID), n.Subject, n.Body, n.Sender, n.Recipient,
		n.ComposedAt.UTC(), n.SentAt.UTC(), n.Delivered, n.Acknowledged, system, origin,
	).Scan(&newID)
	if err != nil {
		return insertErr("notification", err)
	}
	n.ID = domain.NotificationID(newID)
	return nil
}

func (s *SQLStore) FindNotification(ctx context.Context, id domain.NotificationID) (*models.Notification, error) {
	var row notificationRow
	query := s.q.Rebind(`
		SELECT id, information_id, subject, body, sender, recipient, composed_at, sent_at,
			delivered, acknowledged, origin_system, origin_id
		FROM notifications WHERE id = ?
	`)
	if err := sqlx.GetContext(ctx, s.q, &row, query, int64(id)); err != nil {
		return nil, findErr("notification", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) MarkDelivered(ctx context.Context, id domain.NotificationID, sentAt time.Time, delivered bool) error {
	query := s.q.Rebind(`UPDATE notifications SET sent_at = ?, delivered = ? WHERE id = ?`)
	res, err := s.q.ExecContext(ctx, query, sentAt.UTC(), delivered, int64(id))
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) MarkAcknowledged(ctx context.Context, id domain.NotificationID) error {
	query := s.q.Rebind(`UPDATE notifications SET acknowledged = ? WHERE id = ?`)
	res, err := s.q.ExecContext(ctx, query, true, int64(id))
	if err != nil {
		return fmt.Errorf("mark notification acknowledged: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) lockSuffix() string {
	if !s.inTx {
		return ""
	}
	return s.dialect.ForUpdate()
}

func toNullRef(ref domain.ForeignRef) (sql.NullString, sql.NullInt64) {
	if ref.IsZero() {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: string(ref.System), Valid: true}, sql.NullInt64{Int64: ref.ID, Valid: true}
}

func fromNullRef(system sql.NullString, id sql.NullInt64) domain.ForeignRef {
	if !system.Valid || !id.Valid {
		return domain.ForeignRef{}
	}
	return domain.ForeignRef{System: domain.System(system.String), ID: id.Int64}
}

func nullInsurer(id *domain.InsurerID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func insertErr(entity string, err error) error {
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("insert %s: %w", entity, sentinel.ErrConflict)
	}
	return fmt.Errorf("insert %s: %w", entity, err)
}

func findErr(entity string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find %s: %w", entity, sentinel.ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", entity, err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
