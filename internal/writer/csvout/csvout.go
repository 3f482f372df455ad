// Package csvout writes normalized tables as CSV files with a JSON manifest
// per table describing columns, primary key and incremental load settings.
package csvout

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"tabular/internal/normalize"
	"tabular/internal/writer"
)

func init() {
	writer.Register("csv", New)
}

// CSVWriter writes one <table>.csv and one <table>.csv.manifest per table
// under OutDir.
//
// Options:
//   - incremental  bool, recorded in the manifest (default false)
type CSVWriter struct {
	outDir      string
	incremental bool
}

func New(_ context.Context, cfg writer.Config) (writer.Writer, error) {
	if cfg.OutDir == "" {
		return nil, fmt.Errorf("csv writer: out_dir is required")
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("csv writer: create out dir: %w", err)
	}
	return &CSVWriter{
		outDir:      cfg.OutDir,
		incremental: cfg.Options.Bool("incremental", false),
	}, nil
}

func (w *CSVWriter) WriteTable(_ context.Context, t *normalize.Table, columns []string) error {
	if err := w.writeCSV(t, columns); err != nil {
		return err
	}
	return w.writeManifest(t, columns)
}

func (w *CSVWriter) Close() error { return nil }

func (w *CSVWriter) writeCSV(t *normalize.Table, columns []string) error {
	path := filepath.Join(w.outDir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv writer: create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(columns); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv writer: write header %s: %w", t.Name, err)
	}
	for _, row := range writer.RowStrings(t, columns) {
		for i, cell := range row {
			row[i] = sanitizeCell(cell)
		}
		if err := cw.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("csv writer: write row %s: %w", t.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv writer: flush %s: %w", t.Name, err)
	}
	return f.Close()
}

// manifest mirrors the sidecar format downstream loaders consume.
type manifest struct {
	Columns     []string        `json:"columns"`
	PrimaryKey  []string        `json:"primary_key"`
	Incremental bool            `json:"incremental"`
	DeleteWhere *deleteManifest `json:"delete_where,omitempty"`
}

type deleteManifest struct {
	Column   string   `json:"where_column"`
	Operator string   `json:"where_operator"`
	Values   []string `json:"where_values"`
}

func (w *CSVWriter) writeManifest(t *normalize.Table, columns []string) error {
	m := manifest{
		Columns:     columns,
		PrimaryKey:  t.IDColumns,
		Incremental: w.incremental,
	}
	if t.DeleteWhere != nil && len(t.DeleteWhere.Values) > 0 {
		m.DeleteWhere = &deleteManifest{
			Column:   t.DeleteWhere.Column,
			Operator: t.DeleteWhere.Operator,
			Values:   t.DeleteWhere.SortedValues(),
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("csv writer: marshal manifest %s: %w", t.Name, err)
	}
	path := filepath.Join(w.outDir, t.Name+".csv.manifest")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("csv writer: write manifest %s: %w", t.Name, err)
	}
	return nil
}

// sanitizeCell strips control runes that break downstream CSV loaders.
// Tab and newline survive because encoding/csv quotes them correctly.
func sanitizeCell(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if unicode.Is(unicode.C, r) {
			return -1
		}
		return r
	}, s)
}
