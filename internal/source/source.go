// Package source defines the upstream record-source contract and a registry
// of source kinds. Each backend registers itself from an init() in its own
// file, keeping this package free of backend imports at the call sites.
package source

import (
	"context"
	"fmt"
	"sync"

	"tabular/internal/config"
	"tabular/internal/record"
)

// Source yields a lazy sequence of record batches.
//
// Contract:
//   - Next returns one batch per call, in source order. An empty batch is
//     legal and does not terminate the stream.
//   - Next returns io.EOF (and no batch) once the source is exhausted.
//   - Close releases backend resources; call once when done.
type Source interface {
	Next(ctx context.Context) ([]*record.Record, error)
	Close() error
}

// Params carries the per-run inputs every source factory receives.
type Params struct {
	// Options is the source-specific option bag from the pipeline config.
	Options config.Options

	// PageSize is the requested batch size. Backends may return smaller
	// batches; 0 means backend default.
	PageSize int

	// Since is the opaque last-successful-run marker from the state store,
	// used by incremental sources to compute a server-side filter. Empty on
	// the first run.
	Since string
}

type factory func(params Params) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a source backend under a kind (e.g. "http", "file").
//
// Panics on empty kind, nil factory, or duplicate registration; failing fast
// here avoids ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("source: Register called with empty kind")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("source: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Source using the registered factory for kind.
func New(kind string, params Params) (Source, error) {
	mu.RLock()
	f := factories[kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source.kind=%s", kind)
	}
	return f(params)
}
