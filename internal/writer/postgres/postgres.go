package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabular/internal/normalize"
	"tabular/internal/writer"
)

func init() {
	writer.Register("postgres", New)
}

// PGWriter loads normalized tables into Postgres.
//
// Per table it:
//  1. creates the table if missing (all columns TEXT)
//  2. adds columns the table has grown since the last run
//  3. applies the table's delete spec
//  4. bulk loads rows via COPY
//
// Steps 3 and 4 run inside one transaction so a reload is all-or-nothing.
type PGWriter struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg writer.Config) (writer.Writer, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres writer: %w", err)
	}
	return &PGWriter{pool: pool}, nil
}

func (w *PGWriter) Close() error {
	w.pool.Close()
	return nil
}

func (w *PGWriter) WriteTable(ctx context.Context, t *normalize.Table, columns []string) error {
	if err := w.ensureTable(ctx, t.Name, columns); err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres writer: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if t.DeleteWhere != nil && len(t.DeleteWhere.Values) > 0 {
		sql, args := buildDeleteSQL(t.Name, t.DeleteWhere)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres writer: delete %s: %w", t.Name, err)
		}
	}

	rows := writer.RowValues(t, columns)
	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{t.Name},
			columns,
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("postgres writer: copy %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres writer: commit %s: %w", t.Name, err)
	}
	return nil
}

func (w *PGWriter) ensureTable(ctx context.Context, table string, columns []string) error {
	if _, err := w.pool.Exec(ctx, buildCreateSQL(table, columns)); err != nil {
		return fmt.Errorf("postgres writer: create table %s: %w", table, err)
	}
	// Columns discovered in later runs are added one at a time; IF NOT EXISTS
	// keeps this idempotent.
	for _, col := range columns {
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT;",
			pgIdent(table), pgIdent(col))
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("postgres writer: add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

// buildCreateSQL constructs CREATE TABLE IF NOT EXISTS with TEXT columns.
// Pure so placeholder and quoting behavior is unit-testable without a database.
func buildCreateSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(" TEXT")
	}
	b.WriteString(");")
	return b.String()
}

func buildDeleteSQL(table string, spec *normalize.DeleteSpec) (string, []any) {
	values := spec.SortedValues()

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(pgIdent(table))
	b.WriteString(" WHERE ")
	b.WriteString(pgIdent(spec.Column))
	b.WriteString(" IN (")

	args := make([]any, 0, len(values))
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
		args = append(args, v)
	}
	b.WriteString(");")
	return b.String(), args
}

// pgIdent quotes a Postgres identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
