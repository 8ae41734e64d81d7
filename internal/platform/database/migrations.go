package database

import "infosync/pkg/platform/sqldb"

type migration struct {
	version int
	sql     string
}

func migrationsFor(d sqldb.Dialect) []migration {
	if d == sqldb.SQLite {
		return sqliteMigrations
	}
	return postgresMigrations
}

// Foreign references are stored as (origin_system, origin_id) pairs. Audit
// entries point at notifications with ON DELETE SET NULL so the trail
// outlives them.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS persons (
	id            BIGSERIAL PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	origin_system TEXT,
	origin_id     BIGINT,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (origin_system, origin_id)
);

CREATE TABLE IF NOT EXISTS insurers (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	api_url    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS information_records (
	id                 BIGSERIAL PRIMARY KEY,
	person_id          BIGINT NOT NULL REFERENCES persons(id),
	employee_number    TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	insurance_number   TEXT NOT NULL DEFAULT '',
	national_id        TEXT NOT NULL DEFAULT '',
	notes              TEXT NOT NULL DEFAULT '',
	confirmed          BOOLEAN NOT NULL DEFAULT FALSE,
	insurer_id         BIGINT REFERENCES insurers(id) ON DELETE SET NULL,
	notification_email TEXT NOT NULL DEFAULT '',
	origin_system      TEXT,
	origin_id          BIGINT,
	created_at         TIMESTAMPTZ NOT NULL,
	modified_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (origin_system, origin_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id             BIGSERIAL PRIMARY KEY,
	information_id BIGINT NOT NULL REFERENCES information_records(id) ON DELETE CASCADE,
	subject        TEXT NOT NULL,
	body           TEXT NOT NULL,
	sender         TEXT NOT NULL,
	recipient      TEXT NOT NULL,
	composed_at    TIMESTAMPTZ NOT NULL,
	sent_at        TIMESTAMPTZ NOT NULL,
	delivered      BOOLEAN NOT NULL DEFAULT FALSE,
	acknowledged   BOOLEAN NOT NULL DEFAULT FALSE,
	origin_system  TEXT,
	origin_id      BIGINT
);

CREATE INDEX IF NOT EXISTS idx_notifications_information ON notifications(information_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	seq             BIGSERIAL PRIMARY KEY,
	occurred_at     TIMESTAMPTZ NOT NULL,
	kind            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	notification_id BIGINT REFERENCES notifications(id) ON DELETE SET NULL,
	service         TEXT NOT NULL,
	request_id      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_notification ON audit_entries(notification_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_order ON audit_entries(occurred_at, seq);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           BIGSERIAL PRIMARY KEY,
	event_id     TEXT NOT NULL UNIQUE,
	entry_seq    BIGINT NOT NULL,
	message_key  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_pending ON audit_outbox(id) WHERE published_at IS NULL;
`,
	},
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS persons (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	origin_system TEXT,
	origin_id     INTEGER,
	created_at    DATETIME NOT NULL,
	UNIQUE (origin_system, origin_id)
);

CREATE TABLE IF NOT EXISTS insurers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	api_url    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS information_records (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id          INTEGER NOT NULL REFERENCES persons(id),
	employee_number    TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	insurance_number   TEXT NOT NULL DEFAULT '',
	national_id        TEXT NOT NULL DEFAULT '',
	notes              TEXT NOT NULL DEFAULT '',
	confirmed          INTEGER NOT NULL DEFAULT 0 CHECK(confirmed IN (0, 1)),
	insurer_id         INTEGER REFERENCES insurers(id) ON DELETE SET NULL,
	notification_email TEXT NOT NULL DEFAULT '',
	origin_system      TEXT,
	origin_id          INTEGER,
	created_at         DATETIME NOT NULL,
	modified_at        DATETIME NOT NULL,
	UNIQUE (origin_system, origin_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	information_id INTEGER NOT NULL REFERENCES information_records(id) ON DELETE CASCADE,
	subject        TEXT NOT NULL,
	body           TEXT NOT NULL,
	sender         TEXT NOT NULL,
	recipient      TEXT NOT NULL,
	composed_at    DATETIME NOT NULL,
	sent_at        DATETIME NOT NULL,
	delivered      INTEGER NOT NULL DEFAULT 0 CHECK(delivered IN (0, 1)),
	acknowledged   INTEGER NOT NULL DEFAULT 0 CHECK(acknowledged IN (0, 1)),
	origin_system  TEXT,
	origin_id      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_notifications_information ON notifications(information_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at     DATETIME NOT NULL,
	kind            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	notification_id INTEGER REFERENCES notifications(id) ON DELETE SET NULL,
	service         TEXT NOT NULL,
	request_id      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_notification ON audit_entries(notification_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_order ON audit_entries(occurred_at, seq);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id     TEXT NOT NULL UNIQUE,
	entry_seq    INTEGER NOT NULL,
	message_key  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	published_at DATETIME
);
`,
	},
}
