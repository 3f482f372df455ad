package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"tabular/internal/normalize"
	"tabular/internal/writer"
)

func init() {
	writer.Register("mysql", New)
}

// MySQLWriter loads normalized tables into MySQL. Rows go in as multi-row
// VALUES inserts inside one transaction with the delete spec.
type MySQLWriter struct {
	db *sql.DB
}

func New(ctx context.Context, cfg writer.Config) (writer.Writer, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql writer: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql writer: ping: %w", err)
	}
	return &MySQLWriter{db: db}, nil
}

func (w *MySQLWriter) Close() error { return w.db.Close() }

func (w *MySQLWriter) WriteTable(ctx context.Context, t *normalize.Table, columns []string) error {
	if err := w.ensureTable(ctx, t.Name, columns); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql writer: begin: %w", err)
	}
	defer tx.Rollback()

	if t.DeleteWhere != nil && len(t.DeleteWhere.Values) > 0 {
		delSQL, args := buildDeleteSQL(t.Name, t.DeleteWhere)
		if _, err := tx.ExecContext(ctx, delSQL, args...); err != nil {
			return fmt.Errorf("mysql writer: delete %s: %w", t.Name, err)
		}
	}

	rows := writer.RowValues(t, columns)
	if len(rows) > 0 {
		insSQL, args := buildInsertSQL(t.Name, columns, rows)
		if _, err := tx.ExecContext(ctx, insSQL, args...); err != nil {
			return fmt.Errorf("mysql writer: insert %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql writer: commit %s: %w", t.Name, err)
	}
	return nil
}

func (w *MySQLWriter) ensureTable(ctx context.Context, table string, columns []string) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(backtickIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(backtickIdent(c))
		b.WriteString(" TEXT")
	}
	b.WriteString(");")

	if _, err := w.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("mysql writer: create table %s: %w", table, err)
	}

	existing, err := w.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if _, ok := existing[col]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT;", backtickIdent(table), backtickIdent(col))
		if _, err := w.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("mysql writer: add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

func (w *MySQLWriter) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := w.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?", table)
	if err != nil {
		return nil, fmt.Errorf("mysql writer: columns %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mysql writer: scan columns %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(backtickIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(backtickIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func buildDeleteSQL(table string, spec *normalize.DeleteSpec) (string, []any) {
	values := spec.SortedValues()

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(backtickIdent(table))
	b.WriteString(" WHERE ")
	b.WriteString(backtickIdent(spec.Column))
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

func backtickIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
