// Package history persists whitelist entries, flagged-sender records, and the
// append-only action ledger across runs. It is the single source of truth for
// past decisions; scans only ever read from it, the runner writes through
// RecordAction.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mailsweep/internal/model"
	"mailsweep/internal/util"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed decision history. Writes are serialized by mu so
// ledger appends and flagged upserts from concurrent sender workers never
// interleave inconsistently.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	now func() time.Time // test hook
}

// Open opens (or creates) the database at the given path and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps concurrent readers cheap while the writer lock is held.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS whitelist (
	pattern  TEXT PRIMARY KEY,
	note     TEXT NOT NULL DEFAULT '',
	added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS flagged_senders (
	sender           TEXT PRIMARY KEY,
	first_flagged_at TEXT NOT NULL,
	last_seen_at     TEXT NOT NULL,
	encounter_count  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS action_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender       TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	strategy     TEXT NOT NULL DEFAULT '',
	at           TEXT NOT NULL,
	success      INTEGER NOT NULL,
	affected     INTEGER NOT NULL DEFAULT 0,
	error_detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_action_log_sender ON action_log(sender);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsFlagged reports whether the sender has a flagged record.
func (s *Store) IsFlagged(ctx context.Context, address string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM flagged_senders WHERE sender = ?", address).Scan(&n)
	return n > 0, err
}

// IsWhitelisted reports whether the address matches an email-type pattern
// exactly or a domain-type pattern by its domain part.
func (s *Store) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	domain := util.Domain(address)
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM whitelist WHERE pattern = ? OR pattern = ?",
		address, domain).Scan(&n)
	return n > 0, err
}

// RecordAction appends to the audit log and, for a successful
// unsubscribe/delete/both action, upserts the sender's flagged record.
// Both writes happen in one transaction under the store's write lock.
func (s *Store) RecordAction(ctx context.Context, rec model.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	at := rec.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	ts := at.UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO action_log (sender, action_type, strategy, at, success, affected, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SenderAddress, string(rec.ActionType), rec.StrategyUsed, ts,
		boolToInt(rec.Success), rec.AffectedMessageCount, rec.ErrorDetail,
	); err != nil {
		return fmt.Errorf("append action: %w", err)
	}

	if rec.Success && flaggingAction(rec.ActionType) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flagged_senders (sender, first_flagged_at, last_seen_at, encounter_count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(sender) DO UPDATE SET
				last_seen_at    = excluded.last_seen_at,
				encounter_count = encounter_count + 1`,
			rec.SenderAddress, ts, ts,
		); err != nil {
			return fmt.Errorf("upsert flagged sender: %w", err)
		}
	}

	return tx.Commit()
}

func flaggingAction(t model.ActionType) bool {
	switch t {
	case model.ActionUnsubscribe, model.ActionDelete, model.ActionBoth:
		return true
	}
	return false
}

// AddWhitelistEntry upserts a whitelist pattern. User action only; the core
// never calls this on its own.
func (s *Store) AddWhitelistEntry(ctx context.Context, pattern, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whitelist (pattern, note, added_at) VALUES (?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET note = excluded.note`,
		pattern, note, s.now().UTC().Format(time.RFC3339))
	return err
}

// RemoveWhitelistEntry deletes a pattern. Removing an absent pattern is a
// no-op.
func (s *Store) RemoveWhitelistEntry(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM whitelist WHERE pattern = ?", pattern)
	return err
}

// ListWhitelist returns all entries ordered by pattern.
func (s *Store) ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT pattern, note, added_at FROM whitelist ORDER BY pattern")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WhitelistEntry
	for rows.Next() {
		var e model.WhitelistEntry
		var added string
		if err := rows.Scan(&e.Pattern, &e.Note, &added); err != nil {
			return nil, err
		}
		e.AddedAt, _ = time.Parse(time.RFC3339, added)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FlaggedSender returns the flagged record for an address, or nil if none.
func (s *Store) FlaggedSender(ctx context.Context, address string) (*model.FlaggedSenderRecord, error) {
	var rec model.FlaggedSenderRecord
	var first, last string
	err := s.db.QueryRowContext(ctx, `
		SELECT sender, first_flagged_at, last_seen_at, encounter_count
		FROM flagged_senders WHERE sender = ?`, address).
		Scan(&rec.SenderAddress, &first, &last, &rec.EncounterCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.FirstFlaggedAt, _ = time.Parse(time.RFC3339, first)
	rec.LastSeenAt, _ = time.Parse(time.RFC3339, last)
	return &rec, nil
}

// Unflag removes a sender's flagged record. Explicit user action only; there
// is no automatic expiry.
func (s *Store) Unflag(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM flagged_senders WHERE sender = ?", address)
	return err
}

// ListActions returns the most recent ledger entries, newest first.
func (s *Store) ListActions(ctx context.Context, limit int) ([]model.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, action_type, strategy, at, success, affected, error_detail
		FROM action_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		var at, actionType string
		var success int
		if err := rows.Scan(&rec.SenderAddress, &actionType, &rec.StrategyUsed,
			&at, &success, &rec.AffectedMessageCount, &rec.ErrorDetail); err != nil {
			return nil, err
		}
		rec.ActionType = model.ActionType(actionType)
		rec.Success = success != 0
		rec.Timestamp, _ = time.Parse(time.RFC3339, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSetting reads a configuration key, returning "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

// SetSetting upserts a configuration key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
