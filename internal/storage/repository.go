// Package storage persists the append-only ledger and the quarantine table
// in SQLite. Ledger entries are never updated or deleted; corrections arrive
// as new offsetting entries.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finrep/internal/core"

	_ "modernc.org/sqlite"
)

const (
	dateFormat = "2006-01-02"
	tsFormat   = time.RFC3339
)

type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at dbPath and applies the
// schema migrations. Pass ":memory:" for an in-memory database.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL keeps report reads consistent while an ingestion run appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// AppendEntries inserts ledger entries inside one transaction, ignoring
// identities that are already present. Returns the number actually appended.
func (r *Repository) AppendEntries(ctx context.Context, entries []core.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO ledger_entries
		(entry_id, date, amount_cents, category, vendor, source, raw_ref, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(tsFormat)
	inserted := 0
	for i := range entries {
		e := &entries[i]
		res, err := stmt.ExecContext(ctx,
			e.EntryID, e.Date.Format(dateFormat), e.Amount.Cents, string(e.Category),
			nullableString(e.Vendor), e.Source, e.RawRef, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert entry %s: %w", e.EntryID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// HasEntry reports whether an entry identity is already ledgered.
func (r *Repository) HasEntry(ctx context.Context, entryID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM ledger_entries WHERE entry_id = ?", entryID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query entry %s: %w", entryID, err)
	}
	return true, nil
}

// EntryCount returns the ledger size.
func (r *Repository) EntryCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries").Scan(&count)
	return count, err
}

// EntriesInPeriod returns the ledger entries whose business date falls in the
// half-open period, in one query so reports see a consistent snapshot.
func (r *Repository) EntriesInPeriod(ctx context.Context, p core.Period) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_id, date, amount_cents, category, vendor, source, raw_ref
		FROM ledger_entries
		WHERE date >= ? AND date < ?
		ORDER BY date, entry_id`,
		p.Start.Format(dateFormat), p.End.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		var (
			e       core.LedgerEntry
			dateStr string
			cat     string
			vendor  sql.NullString
		)
		if err := rows.Scan(&e.EntryID, &dateStr, &e.Amount.Cents, &cat, &vendor, &e.Source, &e.RawRef); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Date, err = time.Parse(dateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		e.Category = core.Category(cat)
		e.Vendor = vendor.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertQuarantine appends quarantine records. Every failed attempt is
// retained; the attempt id keeps repeated failures distinct.
func (r *Repository) InsertQuarantine(ctx context.Context, recs []core.QuarantineRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quarantine
		(attempt_id, source, native_id, record_date, category_hint, fields_json,
		 rule, severity, detail, quarantined_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range recs {
		q := &recs[i]
		if len(q.Diagnostics) == 0 {
			return fmt.Errorf("quarantine record %s has no diagnostic", q.AttemptID)
		}
		terminal := q.Diagnostics[0]

		fieldsJSON, err := json.Marshal(q.Record.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields for %s: %w", q.AttemptID, err)
		}

		var recordDate any
		if d, err := core.ParseDate(q.Record.Field(core.FieldDate)); err == nil {
			recordDate = d.Format(dateFormat)
		}

		_, err = stmt.ExecContext(ctx,
			q.AttemptID, q.Record.Source, nullableString(q.Record.NativeID()),
			recordDate, nullableString(q.Record.Field(core.FieldCategory)),
			string(fieldsJSON), string(terminal.Rule), string(terminal.Severity),
			terminal.Detail, q.QuarantinedAt.UTC().Format(tsFormat),
		)
		if err != nil {
			return fmt.Errorf("insert quarantine %s: %w", q.AttemptID, err)
		}
	}

	return tx.Commit()
}

// ListQuarantine returns quarantine records, optionally restricted to a
// period. Records whose raw date never parsed are attributed to the period of
// their attempt timestamp so they are not invisible to remediation.
func (r *Repository) ListQuarantine(ctx context.Context, p *core.Period) ([]core.QuarantineRecord, error) {
	query := `SELECT attempt_id, source, fields_json, rule, severity, detail, quarantined_at
		FROM quarantine`
	var args []any
	if p != nil {
		query += ` WHERE COALESCE(record_date, date(quarantined_at)) >= ?
			AND COALESCE(record_date, date(quarantined_at)) < ?`
		args = append(args, p.Start.Format(dateFormat), p.End.Format(dateFormat))
	}
	query += " ORDER BY quarantined_at, attempt_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quarantine: %w", err)
	}
	defer rows.Close()

	var recs []core.QuarantineRecord
	for rows.Next() {
		var (
			q          core.QuarantineRecord
			fieldsJSON string
			d          core.Diagnostic
			rule, sev  string
			ts         string
		)
		if err := rows.Scan(&q.AttemptID, &q.Record.Source, &fieldsJSON, &rule, &sev, &d.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan quarantine: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &q.Record.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for %s: %w", q.AttemptID, err)
		}
		d.Rule = core.Rule(rule)
		d.Severity = core.Severity(sev)
		q.Diagnostics = []core.Diagnostic{d}
		if q.QuarantinedAt, err = time.Parse(tsFormat, ts); err != nil {
			return nil, fmt.Errorf("parse quarantined_at %q: %w", ts, err)
		}
		recs = append(recs, q)
	}
	return recs, rows.Err()
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
