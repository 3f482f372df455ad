package writer

import (
	"context"
	"fmt"
	"sync"

	"tabular/internal/config"
	"tabular/internal/normalize"
)

// Config is the minimal configuration needed to create a table writer.
//
// Kind must match a registered backend kind. DSN is passed through to the
// backend factory for database writers; OutDir is used by file writers.
// Options carries backend-specific settings.
type Config struct {
	Kind    string
	DSN     string
	OutDir  string
	Options config.Options
}

// Writer persists one normalized table fragment per call. The runner walks a
// table and its children and calls WriteTable once per table with the final
// column order for that table.
//
// Backends implement idempotent reload semantics in their own way: database
// writers apply the table's delete spec before inserting, the CSV writer
// emits a manifest describing the delete spec instead.
type Writer interface {
	WriteTable(ctx context.Context, t *normalize.Table, columns []string) error

	// Close releases backend resources. Call once at shutdown.
	Close() error
}

type factory func(ctx context.Context, cfg Config) (Writer, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a writer backend under a kind (e.g. "postgres", "csv").
//
// Call Register from an init() function in a backend package. Registering an
// empty kind, a nil factory, or the same kind twice panics so ambiguous
// backend selection fails at startup.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("writer: Register called with empty kind")
	}
	if f == nil {
		panic("writer: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("writer: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Writer using the registered backend factory.
func New(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("writer: missing writer.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported writer.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// RowStrings renders the table's rows against the given column order. Columns
// a row does not have are rendered as empty strings, so every output row has
// exactly len(columns) cells.
func RowStrings(t *normalize.Table, columns []string) [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok {
				cells[i] = normalize.LeafString(v)
			}
		}
		out = append(out, cells)
	}
	return out
}

// RowValues is RowStrings with []any cells, for database/sql argument lists.
func RowValues(t *normalize.Table, columns []string) [][]any {
	out := make([][]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok {
				cells[i] = normalize.LeafString(v)
			} else {
				cells[i] = ""
			}
		}
		out = append(out, cells)
	}
	return out
}
