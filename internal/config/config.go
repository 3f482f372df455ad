// Package config defines the pipeline configuration parsed from the
// user-provided JSON file and shared option plumbing.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the top-level run configuration.
type Pipeline struct {
	Job     string        `json:"job"`
	Source  Source        `json:"source"`
	Table   Table         `json:"table"`
	Writer  Writer        `json:"writer"`
	State   State         `json:"state"`
	Metrics Metrics       `json:"metrics"`
	Runtime RuntimeConfig `json:"runtime"`
}

// Source selects and configures the upstream record source.
type Source struct {
	// Kind: "http" | "file" | "mongo" | "htmltable"
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Table names the root output table and its identifier columns.
type Table struct {
	Name string `json:"name"`

	// IDColumns are the natural key columns read from each record. Empty
	// means every row gets a computed surrogate id.
	IDColumns []string `json:"id_columns"`

	// RequireIDs makes a missing natural id a record-fatal error instead of
	// falling back to the surrogate digest.
	RequireIDs bool `json:"require_ids"`
}

// Writer selects and configures the output backend.
type Writer struct {
	// Kind: "csv" | "postgres" | "mssql" | "sqlite" | "mysql"
	Kind string `json:"kind"`

	// DSN for database backends. Environment variables are expanded.
	DSN string `json:"dsn"`

	// OutDir for the csv backend.
	OutDir string `json:"out_dir"`

	Options Options `json:"options"`
}

// State locates the run-to-run state file (column order, last-run marker).
type State struct {
	Path string `json:"path"`
}

// Metrics configures the optional metrics backend.
type Metrics struct {
	// Kind: "" (disabled) | "datadog"
	Kind string `json:"kind"`

	// TagsCSV are extra backend tags, e.g. "env:prod,service:tabular".
	TagsCSV string `json:"tags"`

	// FlushEverySeconds overrides the backend flush interval.
	FlushEverySeconds int `json:"flush_every_seconds"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	// PageSize is the batch size requested from the source.
	PageSize int `json:"page_size"`

	// MaxPages caps the number of batches pulled (0 = unbounded).
	MaxPages int `json:"max_pages"`

	// DebugTimings enables per-batch timing logs in addition to stage logs.
	DebugTimings bool `json:"debug_timings"`
}

// Load reads and parses a pipeline config file.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Pipeline
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Pipeline{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Writer.DSN = os.ExpandEnv(cfg.Writer.DSN)
	return cfg, nil
}

// Validate checks the structural requirements shared by all runs.
func (p Pipeline) Validate() error {
	if p.Source.Kind == "" {
		return fmt.Errorf("source.kind must be set")
	}
	if p.Table.Name == "" {
		return fmt.Errorf("table.name must be set")
	}
	if p.Writer.Kind == "" {
		return fmt.Errorf("writer.kind must be set")
	}
	if p.Writer.Kind == "csv" && p.Writer.OutDir == "" {
		return fmt.Errorf("writer.out_dir is required for the csv writer")
	}
	if p.Runtime.PageSize < 0 || p.Runtime.MaxPages < 0 {
		return fmt.Errorf("runtime.page_size and runtime.max_pages must be >= 0")
	}
	return nil
}
