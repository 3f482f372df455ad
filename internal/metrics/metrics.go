// Package metrics defines the minimal metrics surface the pipeline emits.
//
// The core depends only on the Backend interface; concrete backends (Datadog,
// test fakes) are wired at startup via SetBackend. The default backend is a
// no-op, so instrumented code never needs nil checks.
package metrics

import "sync"

// Labels are metric dimensions, e.g. {"step": "merge", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is optionally implemented by backends that buffer metrics.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter increments a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records a histogram sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers metrics.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
