package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"tabular/internal/normalize"
	"tabular/internal/writer"
)

func init() {
	writer.Register("mssql", New)
}

// SQL Server caps parameterized statements at 2100 parameters. Batches stay
// under that with headroom.
const maxParams = 2000

// MSSQLWriter loads normalized tables into Microsoft SQL Server. Inserts are
// batched multi-row VALUES statements sized to the parameter limit.
type MSSQLWriter struct {
	db *sql.DB
}

func New(ctx context.Context, cfg writer.Config) (writer.Writer, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql writer: %w", err)
	}

	// Conservative defaults for bursty batch loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql writer: ping: %w", err)
	}
	return &MSSQLWriter{db: db}, nil
}

func (w *MSSQLWriter) Close() error { return w.db.Close() }

func (w *MSSQLWriter) WriteTable(ctx context.Context, t *normalize.Table, columns []string) error {
	if err := w.ensureTable(ctx, t.Name, columns); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql writer: begin: %w", err)
	}
	defer tx.Rollback()

	if t.DeleteWhere != nil && len(t.DeleteWhere.Values) > 0 {
		delSQL, args := buildDeleteSQL(t.Name, t.DeleteWhere)
		if _, err := tx.ExecContext(ctx, delSQL, args...); err != nil {
			return fmt.Errorf("mssql writer: delete %s: %w", t.Name, err)
		}
	}

	rows := writer.RowValues(t, columns)
	batchRows := maxParams / len(columns)
	if batchRows < 1 {
		batchRows = 1
	}
	for start := 0; start < len(rows); start += batchRows {
		end := start + batchRows
		if end > len(rows) {
			end = len(rows)
		}
		insSQL, args := buildInsertSQL(t.Name, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, insSQL, args...); err != nil {
			return fmt.Errorf("mssql writer: insert %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql writer: commit %s: %w", t.Name, err)
	}
	return nil
}

func (w *MSSQLWriter) ensureTable(ctx context.Context, table string, columns []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (", table, bracketIdent(table))
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bracketIdent(c))
		b.WriteString(" NVARCHAR(MAX)")
	}
	b.WriteString(");")

	if _, err := w.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("mssql writer: create table %s: %w", table, err)
	}

	for _, col := range columns {
		alter := fmt.Sprintf(
			"IF COL_LENGTH(N'%s', N'%s') IS NULL ALTER TABLE %s ADD %s NVARCHAR(MAX);",
			table, col, bracketIdent(table), bracketIdent(col))
		if _, err := w.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("mssql writer: add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

// buildInsertSQL constructs a multi-row INSERT with @pN placeholders. Pure so
// placeholder numbering is unit-testable without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(bracketIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bracketIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
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
	b.WriteString(bracketIdent(table))
	b.WriteString(" WHERE ")
	b.WriteString(bracketIdent(spec.Column))
	b.WriteString(" IN (")

	args := make([]any, 0, len(values))
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
		args = append(args, v)
	}
	b.WriteString(");")
	return b.String(), args
}

func bracketIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
