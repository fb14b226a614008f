// Package sink writes prepared datasets to PostgreSQL. It is an optional
// output target: runs write CSV by default and only touch the database
// when a connection URL is configured.
package sink

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qualprep/qualprep/internal/config"
	"github.com/qualprep/qualprep/internal/dataset"
)

// Connect opens a connection pool using the database settings.
// The pool is pinged before being returned so misconfiguration fails fast.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Writer stores prepared datasets as database tables.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter creates a Writer backed by pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Write creates the target table if needed and bulk-loads the dataset
// into it via COPY. All columns are TEXT; missing cells become NULL.
// Returns the number of rows written.
func (w *Writer) Write(ctx context.Context, table string, d *dataset.Dataset) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("table name is empty")
	}
	if d.NumColumns() == 0 {
		return 0, fmt.Errorf("dataset has no columns")
	}

	cols := make([]string, d.NumColumns())
	for i, name := range d.Columns() {
		cols[i] = SanitizeIdentifier(name)
	}
	if err := checkDuplicateColumns(cols); err != nil {
		return 0, err
	}

	if err := w.createTable(ctx, table, cols); err != nil {
		return 0, err
	}

	rows := make([][]any, d.NumRows())
	for r := 0; r < d.NumRows(); r++ {
		row := make([]any, d.NumColumns())
		for c, cell := range d.Row(r) {
			row[c] = pgtype.Text{String: cell.String, Valid: cell.Valid}
		}
		rows[r] = row
	}

	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{SanitizeIdentifier(table)}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %q: %w", table, err)
	}
	return n, nil
}

// createTable issues CREATE TABLE IF NOT EXISTS with TEXT columns.
func (w *Writer) createTable(ctx context.Context, table string, cols []string) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{SanitizeIdentifier(table)}.Sanitize(),
		strings.Join(defs, ", "))

	if _, err := w.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	return nil
}

// SanitizeIdentifier converts an arbitrary column or table name into a
// conservative SQL identifier: lowercase, letters/digits/underscores only,
// never starting with a digit.
func SanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128, r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" {
		return "col"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	return s
}

func checkDuplicateColumns(cols []string) error {
	seen := make(map[string]string, len(cols))
	for _, c := range cols {
		if prev, dup := seen[c]; dup {
			return fmt.Errorf("columns %q and %q collide after sanitizing", prev, c)
		}
		seen[c] = c
	}
	return nil
}
