// Package run orchestrates one pipeline execution: fetch pages from the
// configured source, normalize each batch into a table tree, merge the
// fragments, then write every table and persist run state.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"tabular/internal/config"
	"tabular/internal/metrics"
	"tabular/internal/normalize"
	"tabular/internal/source"
	"tabular/internal/state"
	"tabular/internal/writer"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes a configured pipeline.
//
// The factory fields are seams: production uses the source and writer
// registries, unit tests inject fakes to run without network or databases.
type Runner struct {
	Logger Logger

	// DryRun skips the write and state-save phases and only logs what would
	// be written.
	DryRun bool

	// NewSource is a seam over source.New. When nil, source.New is used.
	NewSource func(kind string, params source.Params) (source.Source, error)

	// NewWriter is a seam over writer.New. When nil, writer.New is used.
	NewWriter func(ctx context.Context, cfg writer.Config) (writer.Writer, error)

	// Store is a seam over the file state store. When nil, a FileStore at
	// cfg.State.Path is used; with an empty path state is kept in memory
	// for the duration of the run only.
	Store state.Store

	// now is injected for deterministic tests. Production uses time.Now.
	now func() time.Time
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Run executes the pipeline described by cfg.
//
// Batches merge in fetch order, so reruns over the same input produce the
// same tables. An empty page is not an error: it logs a warning and the run
// continues with whatever later pages return.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logf := r.logger()
	runStart := r.clock()()

	st, store, err := r.loadState(cfg)
	if err != nil {
		return err
	}

	root, err := r.extract(ctx, cfg, st, logf)
	if err != nil {
		return err
	}

	if root == nil {
		logf("stage=extract status=empty job=%s", cfg.Job)
		return nil
	}

	if r.DryRun {
		r.report(root, st, logf)
		return nil
	}

	writeStart := time.Now()
	if err := r.write(ctx, cfg, root, &st); err != nil {
		return err
	}
	logf("stage=write ok duration=%s", durMS(writeStart))

	st.LastRun = runStart.UTC().Format(time.RFC3339)
	if store != nil {
		if err := store.Save(st); err != nil {
			return err
		}
	}
	logf("stage=run ok job=%s duration=%s", cfg.Job, durMS(runStart))
	return nil
}

func (r *Runner) clock() func() time.Time {
	if r.now != nil {
		return r.now
	}
	return time.Now
}

func (r *Runner) loadState(cfg config.Pipeline) (state.State, state.Store, error) {
	store := r.Store
	if store == nil && cfg.State.Path != "" {
		store = state.NewFileStore(cfg.State.Path)
	}
	if store == nil {
		return state.State{Columns: map[string][]string{}}, nil, nil
	}
	st, err := store.Load()
	if err != nil {
		return state.State{}, nil, err
	}
	return st, store, nil
}

// extract pulls pages from the source and merges them into one table tree.
// Returns nil when the source yielded no rows at all.
func (r *Runner) extract(ctx context.Context, cfg config.Pipeline, st state.State, logf func(format string, v ...any)) (*normalize.Table, error) {
	newSource := r.NewSource
	if newSource == nil {
		newSource = source.New
	}

	src, err := newSource(cfg.Source.Kind, source.Params{
		Options:  cfg.Source.Options,
		PageSize: cfg.Runtime.PageSize,
		Since:    st.LastRun,
	})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var root *normalize.Table
	page := 0
	for {
		if cfg.Runtime.MaxPages > 0 && page >= cfg.Runtime.MaxPages {
			logf("stage=fetch status=page_cap pages=%d", page)
			break
		}

		pageStart := time.Now()
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.IncCounter("tabular_pages_total", 1, metrics.Labels{"status": "error"})
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		page++
		metrics.IncCounter("tabular_pages_total", 1, metrics.Labels{"status": "ok"})
		metrics.ObserveHistogram("tabular_page_duration_seconds", time.Since(pageStart).Seconds(), metrics.Labels{"status": "ok"})

		if cfg.Runtime.DebugTimings {
			logf("stage=fetch_page page=%d rows=%d duration=%s", page, len(batch), durMS(pageStart))
		}
		if len(batch) == 0 {
			logf("stage=fetch status=empty_page page=%d", page)
			continue
		}

		normStart := time.Now()
		frag, err := normalize.FromRecords(cfg.Table.Name, batch, cfg.Table.IDColumns, cfg.Table.RequireIDs)
		if err != nil {
			metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "normalize", "status": "error"})
			return nil, fmt.Errorf("normalize page %d: %w", page, err)
		}
		metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "normalize", "status": "ok"})
		metrics.ObserveHistogram("tabular_step_duration_seconds", time.Since(normStart).Seconds(), metrics.Labels{"step": "normalize", "status": "ok"})
		metrics.IncCounter("tabular_records_total", float64(len(batch)), metrics.Labels{"kind": "fetched"})
		metrics.IncCounter("tabular_batches_total", 1, metrics.Labels{})

		if root == nil {
			root = frag
			continue
		}
		mergeStart := time.Now()
		if root, err = normalize.Merge(root, frag); err != nil {
			metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "merge", "status": "error"})
			return nil, fmt.Errorf("merge page %d: %w", page, err)
		}
		metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "merge", "status": "ok"})
		metrics.ObserveHistogram("tabular_step_duration_seconds", time.Since(mergeStart).Seconds(), metrics.Labels{"step": "merge", "status": "ok"})
	}
	logf("stage=fetch ok pages=%d", page)
	return root, nil
}

// write walks the table tree depth-first, writes every table with its final
// column order, and records that order in st for the next run.
func (r *Runner) write(ctx context.Context, cfg config.Pipeline, root *normalize.Table, st *state.State) error {
	newWriter := r.NewWriter
	if newWriter == nil {
		newWriter = writer.New
	}

	w, err := newWriter(ctx, writer.Config{
		Kind:    cfg.Writer.Kind,
		DSN:     cfg.Writer.DSN,
		OutDir:  cfg.Writer.OutDir,
		Options: cfg.Writer.Options,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	return r.writeTree(ctx, w, root, st)
}

func (r *Runner) writeTree(ctx context.Context, w writer.Writer, t *normalize.Table, st *state.State) error {
	logf := r.logger()

	columns := finalColumns(st.Columns[t.Name], t.Columns)
	tableStart := time.Now()
	if err := w.WriteTable(ctx, t, columns); err != nil {
		metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "write", "status": "error"})
		return fmt.Errorf("write table %s: %w", t.Name, err)
	}
	metrics.IncCounter("tabular_step_total", 1, metrics.Labels{"step": "write", "status": "ok"})
	metrics.ObserveHistogram("tabular_step_duration_seconds", time.Since(tableStart).Seconds(), metrics.Labels{"step": "write", "status": "ok"})
	metrics.IncCounter("tabular_records_total", float64(len(t.Rows)), metrics.Labels{"kind": "written"})
	logf("stage=write_table table=%s rows=%d columns=%d duration=%s", t.Name, len(t.Rows), len(columns), durMS(tableStart))

	st.Columns[t.Name] = columns

	for _, name := range t.ChildNames() {
		if err := r.writeTree(ctx, w, t.Children[name], st); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) report(t *normalize.Table, st state.State, logf func(format string, v ...any)) {
	columns := finalColumns(st.Columns[t.Name], t.Columns)
	deletes := 0
	if t.DeleteWhere != nil {
		deletes = len(t.DeleteWhere.Values)
	}
	logf("stage=dry_run table=%s rows=%d columns=%d delete_keys=%d", t.Name, len(t.Rows), len(columns), deletes)
	for _, name := range t.ChildNames() {
		r.report(t.Children[name], st, logf)
	}
}

// finalColumns keeps the persisted column order and appends columns the table
// grew this run in first-seen order. Persisted columns absent from this run
// stay, so output schemas never shrink.
func finalColumns(persisted, current []string) []string {
	out := make([]string, 0, len(persisted)+len(current))
	seen := make(map[string]struct{}, len(persisted)+len(current))
	for _, c := range persisted {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range current {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
