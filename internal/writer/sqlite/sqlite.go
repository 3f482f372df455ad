package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tabular/internal/normalize"
	"tabular/internal/writer"
)

func init() {
	writer.Register("sqlite", New)
}

// SQLiteWriter loads normalized tables into SQLite. All columns have TEXT
// affinity; the delete spec and row inserts run in one transaction.
type SQLiteWriter struct {
	db *sql.DB
}

func New(ctx context.Context, cfg writer.Config) (writer.Writer, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite writer: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite writer: ping: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

func (w *SQLiteWriter) Close() error { return w.db.Close() }

func (w *SQLiteWriter) WriteTable(ctx context.Context, t *normalize.Table, columns []string) error {
	if err := w.ensureTable(ctx, t.Name, columns); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite writer: begin: %w", err)
	}
	defer tx.Rollback()

	if t.DeleteWhere != nil && len(t.DeleteWhere.Values) > 0 {
		delSQL, args := buildDeleteSQL(t.Name, t.DeleteWhere)
		if _, err := tx.ExecContext(ctx, delSQL, args...); err != nil {
			return fmt.Errorf("sqlite writer: delete %s: %w", t.Name, err)
		}
	}

	rows := writer.RowValues(t, columns)
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, buildInsertSQL(t.Name, columns))
		if err != nil {
			return fmt.Errorf("sqlite writer: prepare insert %s: %w", t.Name, err)
		}
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("sqlite writer: insert %s: %w", t.Name, err)
			}
		}
		_ = stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite writer: commit %s: %w", t.Name, err)
	}
	return nil
}

func (w *SQLiteWriter) ensureTable(ctx context.Context, table string, columns []string) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c))
		b.WriteString(" TEXT")
	}
	b.WriteString(");")

	if _, err := w.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("sqlite writer: create table %s: %w", table, err)
	}

	existing, err := w.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if _, ok := existing[col]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT;", quoteIdent(table), quoteIdent(col))
		if _, err := w.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("sqlite writer: add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

// tableColumns reads the current column set via PRAGMA table_info. SQLite has
// no ADD COLUMN IF NOT EXISTS, so grown columns need an existence check first.
func (w *SQLiteWriter) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("sqlite writer: table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]struct{}{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("sqlite writer: scan table_info %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

func buildInsertSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(");")
	return b.String()
}

func buildDeleteSQL(table string, spec *normalize.DeleteSpec) (string, []any) {
	values := spec.SortedValues()

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" WHERE ")
	b.WriteString(quoteIdent(spec.Column))
	b.WriteString(" IN (")

	args := make([]any, 0, len(values))
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		args = append(args, v)
	}
	b.WriteString(");")
	return b.String(), args
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
