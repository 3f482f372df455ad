package metrics

import "testing"

type captureBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	flushed    int
}

func newCaptureBackend() *captureBackend {
	return &captureBackend{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
	}
}

func (b *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	b.counters[name] += delta
}

func (b *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	b.histograms[name] = append(b.histograms[name], value)
}

func (b *captureBackend) Flush() error {
	b.flushed++
	return nil
}

func TestPackageHelpers_RouteToInstalledBackend(t *testing.T) {
	b := newCaptureBackend()
	SetBackend(b)
	defer SetBackend(nil)

	IncCounter("tabular_batches_total", 2, Labels{})
	ObserveHistogram("tabular_step_duration_seconds", 0.5, Labels{"step": "merge"})

	if b.counters["tabular_batches_total"] != 2 {
		t.Fatalf("counter = %v", b.counters)
	}
	if len(b.histograms["tabular_step_duration_seconds"]) != 1 {
		t.Fatalf("histograms = %v", b.histograms)
	}

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.flushed != 1 {
		t.Fatalf("flushed = %d", b.flushed)
	}
}

func TestNopBackend_FlushIsNoop(t *testing.T) {
	SetBackend(nil)
	IncCounter("anything", 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}
