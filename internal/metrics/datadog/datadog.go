// Package datadog implements a Datadog backend for the internal/metrics package.
//
// The backend buffers metrics in memory, submits them on a periodic ticker,
// and flushes one final time on Close. Short-lived runs get a single tail
// flush; long runs get a proper time series.
//
// Concurrency model:
//   - pipeline goroutines can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tabular/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "tabular".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:tabular"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; unit tests set
	// them to avoid real network submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics. The
// Datadog SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead enables deterministic tests with a fake submitter.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	stepCounts      map[string]float64
	recordCounts    map[string]float64
	batchCount      float64
	durationSamples map[string][]float64

	// Source page metrics.
	pageCounts map[string]float64 // status -> count
	pageDur    map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Call once at process shutdown.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client.
// Network errors surface from Flush(), not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tabular"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	envTag := resolveEnvTag()
	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, envTag, "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		stepCounts:      make(map[string]float64),
		recordCounts:    make(map[string]float64),
		durationSamples: make(map[string][]float64),

		pageCounts: make(map[string]float64),
		pageDur:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "tabular_step_total":
		step := labels["step"]
		status := labels["status"]
		b.stepCounts[stepStatusKey(step, status)] += delta

	case "tabular_records_total":
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.recordCounts[kind] += delta

	case "tabular_batches_total":
		b.batchCount += delta

	case "tabular_pages_total":
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.pageCounts[status] += delta

	default:
		// Ignore unknown metrics.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "tabular_step_duration_seconds":
		step := labels["step"]
		status := labels["status"]
		k := stepStatusKey(step, status)
		b.durationSamples[k] = append(b.durationSamples[k], value)

	case "tabular_page_duration_seconds":
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.pageDur[status] = append(b.pageDur[status], value)

	default:
		// Ignore unknown histograms.
	}
}

// snapshot is the detached buffered metric state used to build a flush
// payload. Flush() resets buffers under a lock and submits out-of-lock.
type snapshot struct {
	stepCounts      map[string]float64
	recordCounts    map[string]float64
	batchCount      float64
	durationSamples map[string][]float64

	pageCounts map[string]float64
	pageDur    map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		stepCounts:      b.stepCounts,
		recordCounts:    b.recordCounts,
		batchCount:      b.batchCount,
		durationSamples: b.durationSamples,

		pageCounts: b.pageCounts,
		pageDur:    b.pageDur,
	}

	b.stepCounts = make(map[string]float64)
	b.recordCounts = make(map[string]float64)
	b.batchCount = 0
	b.durationSamples = make(map[string][]float64)

	b.pageCounts = make(map[string]float64)
	b.pageDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.stepCounts) == 0 &&
		len(s.recordCounts) == 0 &&
		s.batchCount == 0 &&
		len(s.durationSamples) == 0 &&
		len(s.pageCounts) == 0 &&
		len(s.pageDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
// Buffers reset even if submission fails so instrumented code never blocks
// on a slow or unavailable intake.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// Pure (no locks, no network, no clocks) so naming and tagging behavior is
// unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.stepCounts)+len(s.recordCounts)+32)

	for k, v := range s.stepCounts {
		if v == 0 {
			continue
		}
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		series = append(series, countSeries("tabular.step.total", v, tags, nowUnix))
	}

	for kind, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "kind:"+kind)
		series = append(series, countSeries("tabular.records.total", v, tags, nowUnix))
	}

	if s.batchCount != 0 {
		series = append(series, countSeries("tabular.batches.total", s.batchCount, b.baseTags, nowUnix))
	}

	for k, samples := range s.durationSamples {
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		addPercentiles(&series, "tabular.step.duration_seconds", samples, tags, nowUnix)
	}

	for status, v := range s.pageCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries("tabular.pages.total", v, tags, nowUnix))
	}
	for status, samples := range s.pageDur {
		tags := withTags(b.baseTags, "status:"+status)
		addPercentiles(&series, "tabular.page.duration_seconds", samples, tags, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
// Sorts a copy, never the input.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:tabular".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
