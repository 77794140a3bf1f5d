package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finrep/internal/core"
)

// SQLSource reads transaction rows out of an upstream relational database.
// The query's column names are matched against the known labels, so
// `SELECT id, date, amount, currency, category, vendor FROM ...` works as-is
// and other schemas can alias their columns in the query.
type SQLSource struct {
	name  string
	db    *sql.DB
	query string
}

func NewSQLSource(name string, db *sql.DB, query string) *SQLSource {
	return &SQLSource{name: name, db: db, query: query}
}

func (s *SQLSource) Name() string { return s.name }

func (s *SQLSource) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", s.name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: columns: %w", s.name, err)
	}
	headers := canonicalHeaders(cols)

	now := time.Now().UTC()
	var records []core.RawRecord
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.name, err)
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = c.String
		}
		records = append(records, rowToRecord(s.name, headers, row, now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", s.name, err)
	}
	return records, nil
}
