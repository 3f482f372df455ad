package datadog

import (
	"context"
	"net/http"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tabular/internal/metrics"
)

type fakeSubmitter struct {
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "unit",
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func metricNames(series []datadogV2.MetricSeries) []string {
	names := make([]string, 0, len(series))
	for _, s := range series {
		names = append(names, s.Metric)
	}
	sort.Strings(names)
	return names
}

func findSeries(series []datadogV2.MetricSeries, name string) *datadogV2.MetricSeries {
	for i := range series {
		if series[i].Metric == name {
			return &series[i]
		}
	}
	return nil
}

func TestBuildSeries_NamesValuesAndTags(t *testing.T) {
	b := newTestBackend(t, &fakeSubmitter{})

	b.IncCounter("tabular_step_total", 2, metrics.Labels{"step": "merge", "status": "ok"})
	b.IncCounter("tabular_records_total", 3, metrics.Labels{"kind": "fetched"})
	b.IncCounter("tabular_batches_total", 1, metrics.Labels{})
	b.IncCounter("tabular_pages_total", 7, metrics.Labels{"status": "ok"})
	b.ObserveHistogram("tabular_step_duration_seconds", 0.5, metrics.Labels{"step": "merge", "status": "ok"})

	series := b.buildSeries(b.snapshotAndReset(), 1000)

	want := []string{
		"tabular.batches.total",
		"tabular.pages.total",
		"tabular.records.total",
		"tabular.step.duration_seconds.max",
		"tabular.step.duration_seconds.p50",
		"tabular.step.duration_seconds.p90",
		"tabular.step.duration_seconds.p95",
		"tabular.step.duration_seconds.p99",
		"tabular.step.duration_seconds.samples",
		"tabular.step.total",
	}
	if got := metricNames(series); !reflect.DeepEqual(got, want) {
		t.Fatalf("metric names = %v, want %v", got, want)
	}

	step := findSeries(series, "tabular.step.total")
	if *step.Points[0].Value != 2 {
		t.Fatalf("step total = %v", *step.Points[0].Value)
	}
	wantTags := map[string]bool{"job:unit": true, "step:merge": true, "status:ok": true}
	for tagName := range wantTags {
		found := false
		for _, tag := range step.Tags {
			if tag == tagName {
				found = true
			}
		}
		if !found {
			t.Fatalf("step series tags = %v, missing %s", step.Tags, tagName)
		}
	}

	if p50 := findSeries(series, "tabular.step.duration_seconds.p50"); *p50.Points[0].Value != 0.5 {
		t.Fatalf("p50 = %v", *p50.Points[0].Value)
	}
}

func TestFlush_SubmitsOnceAndResetsBuffers(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("tabular_batches_total", 1, metrics.Labels{})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(sub.payloads))
	}

	// Nothing buffered: no submission.
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("empty flush must not submit, payloads = %d", len(sub.payloads))
	}
}

func TestIncCounter_IgnoresUnknownAndNonPositive(t *testing.T) {
	b := newTestBackend(t, &fakeSubmitter{})

	b.IncCounter("unknown_total", 1, metrics.Labels{})
	b.IncCounter("tabular_batches_total", 0, metrics.Labels{})
	b.IncCounter("tabular_batches_total", -5, metrics.Labels{})
	b.IncCounter("tabular_records_total", 1, metrics.Labels{}) // kind missing
	b.ObserveHistogram("tabular_step_duration_seconds", -1, metrics.Labels{"step": "x", "status": "ok"})

	snap := b.snapshotAndReset()
	if !snap.isEmpty() {
		t.Fatalf("snapshot = %+v, want empty", snap)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 6},
		{0.9, 9},
		{1, 10},
	}
	for _, tc := range cases {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("p%.0f = %v, want %v", tc.p*100, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:tabular ,, ")
	want := []string{"env:prod", "service:tabular"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseTagsCSV = %v, want %v", got, want)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("empty input must return nil")
	}
}
