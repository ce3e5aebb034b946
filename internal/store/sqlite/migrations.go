package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaTooNew is returned when the database was written by a newer
// release than this binary understands.
var ErrSchemaTooNew = errors.New("database schema is newer than supported")

const globalsSchema = `
CREATE TABLE IF NOT EXISTS globals (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    version     INTEGER NOT NULL DEFAULT 0,
    last_sync   TEXT NOT NULL DEFAULT ''
);
INSERT OR IGNORE INTO globals (id, version, last_sync) VALUES (1, 0, '');
`

// migrations are applied in order; the schema version stored in globals is
// the number of migrations already applied.
var migrations = []string{
	// 1: folder tree and forum messages
	`
CREATE TABLE IF NOT EXISTS folders (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_id       INTEGER NOT NULL,
    name            TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    flags           INTEGER NOT NULL DEFAULT 0,
    tree_index      INTEGER NOT NULL DEFAULT 0,
    unread          INTEGER NOT NULL DEFAULT 0,
    unread_priority INTEGER NOT NULL DEFAULT 0,
    resign_pending  BOOLEAN NOT NULL DEFAULT FALSE,
    mark_read_range_pending BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id       INTEGER NOT NULL DEFAULT 0,
    topic_id        INTEGER NOT NULL,
    comment_id      INTEGER NOT NULL DEFAULT 0,
    root_id         INTEGER NOT NULL DEFAULT 0,
    author          TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL DEFAULT '',
    date            TEXT NOT NULL DEFAULT '',
    unread          BOOLEAN NOT NULL DEFAULT FALSE,
    priority        BOOLEAN NOT NULL DEFAULT FALSE,
    starred         BOOLEAN NOT NULL DEFAULT FALSE,
    read_locked     BOOLEAN NOT NULL DEFAULT FALSE,
    ignored         BOOLEAN NOT NULL DEFAULT FALSE,
    withdrawn       BOOLEAN NOT NULL DEFAULT FALSE,
    read_pending    BOOLEAN NOT NULL DEFAULT FALSE,
    post_pending    BOOLEAN NOT NULL DEFAULT FALSE,
    star_pending    BOOLEAN NOT NULL DEFAULT FALSE,
    withdraw_pending BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic_id);
`,
	// 2: private conversations
	`
CREATE TABLE IF NOT EXISTS conversations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id       INTEGER NOT NULL DEFAULT 0,
    author          TEXT NOT NULL DEFAULT '',
    subject         TEXT NOT NULL DEFAULT '',
    date            TEXT NOT NULL DEFAULT '',
    unread          BOOLEAN NOT NULL DEFAULT FALSE,
    priority        BOOLEAN NOT NULL DEFAULT FALSE,
    read_pending    BOOLEAN NOT NULL DEFAULT FALSE,
    delete_pending  BOOLEAN NOT NULL DEFAULT FALSE,
    last_error      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS mail (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id       INTEGER NOT NULL DEFAULT 0,
    conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    author          TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL DEFAULT '',
    date            TEXT NOT NULL DEFAULT '',
    send_pending    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_mail_conversation ON mail(conversation_id);
`,
	// 3: forum directory
	`
CREATE TABLE IF NOT EXISTS dir_categories (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    name    TEXT NOT NULL,
    sub     TEXT NOT NULL DEFAULT '',
    UNIQUE (name, sub)
);

CREATE TABLE IF NOT EXISTS dir_forums (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE COLLATE NOCASE,
    title           TEXT NOT NULL DEFAULT '',
    descr           TEXT NOT NULL DEFAULT '',
    type            TEXT NOT NULL DEFAULT '',
    cat             TEXT NOT NULL DEFAULT '',
    sub             TEXT NOT NULL DEFAULT '',
    recent          INTEGER NOT NULL DEFAULT 0,
    moderators      TEXT NOT NULL DEFAULT '[]',
    participants    TEXT NOT NULL DEFAULT '[]',
    added_mods      TEXT NOT NULL DEFAULT '[]',
    removed_mods    TEXT NOT NULL DEFAULT '[]',
    added_parts     TEXT NOT NULL DEFAULT '[]',
    removed_parts   TEXT NOT NULL DEFAULT '[]',
    details_pending BOOLEAN NOT NULL DEFAULT FALSE
);
`,
	// 4: rule list blob
	`
CREATE TABLE IF NOT EXISTS rules (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    blob    BLOB
);
`,
	// 5: confirmation tokens and provisional joins
	`
ALTER TABLE messages ADD COLUMN pending_token TEXT NOT NULL DEFAULT '';
ALTER TABLE conversations ADD COLUMN pending_token TEXT NOT NULL DEFAULT '';
ALTER TABLE dir_forums ADD COLUMN pending_token TEXT NOT NULL DEFAULT '';
ALTER TABLE folders ADD COLUMN join_pending BOOLEAN NOT NULL DEFAULT FALSE;
`,
	// 6: pending lookups
	`
CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(read_pending, post_pending, star_pending, withdraw_pending);
`,
	// 7: user profiles
	`
CREATE TABLE IF NOT EXISTS profiles (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    username        TEXT NOT NULL UNIQUE COLLATE NOCASE,
    full_name       TEXT NOT NULL DEFAULT '',
    email           TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    sex             TEXT NOT NULL DEFAULT '',
    about           TEXT NOT NULL DEFAULT '',
    flags           INTEGER NOT NULL DEFAULT 0,
    first_on        TEXT NOT NULL DEFAULT '',
    last_on         TEXT NOT NULL DEFAULT '',
    last_post       TEXT NOT NULL DEFAULT '',
    fetched         TEXT NOT NULL DEFAULT '',
    pending         BOOLEAN NOT NULL DEFAULT FALSE,
    pending_token   TEXT NOT NULL DEFAULT ''
);
`,
}

// LatestVersion is the schema version this binary writes.
var LatestVersion = len(migrations)

func (s *DB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, globalsSchema); err != nil {
		return fmt.Errorf("failed to apply globals schema: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM globals WHERE id = 1`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > LatestVersion {
		return fmt.Errorf("%w: have %d, support %d", ErrSchemaTooNew, version, LatestVersion)
	}

	for v := version; v < LatestVersion; v++ {
		if err := s.applyMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) applyMigration(ctx context.Context, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", index+1, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[index]); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", index+1, err)
	}
	if err := setVersion(ctx, tx, index+1); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", index+1, err)
	}
	return nil
}

func setVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE globals SET version = ? WHERE id = 1`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}
