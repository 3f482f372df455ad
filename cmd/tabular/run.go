package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tabular/internal/metrics"
	"tabular/internal/metrics/datadog"
	"tabular/internal/run"
)

var (
	statePath string
	dryRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the configured pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.New(os.Stderr, "tabular ", log.LstdFlags)

		if statePath != "" {
			cfg.State.Path = statePath
		}

		setupMetrics(logger)

		r := &run.Runner{
			Logger: logger,
			DryRun: dryRun,
		}
		return r.Run(ctx, cfg)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the pipeline config and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		log.Printf("configuration is valid: %s", cfgPath)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&statePath, "state", "", "state file path (overrides config)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report tables and columns without writing")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// setupMetrics installs the configured metrics backend. The Datadog backend
// buffers metrics and submits periodically, with one final flush at shutdown.
func setupMetrics(logger *log.Logger) {
	switch cfg.Metrics.Kind {
	case "datadog":
		jobName := cfg.Job
		if jobName == "" {
			jobName = "tabular_job"
		}

		tags := datadog.ParseTagsCSV(cfg.Metrics.TagsCSV)
		if env := os.Getenv("METRICS_TAGS"); env != "" {
			tags = append(tags, datadog.ParseTagsCSV(env)...)
		}

		flushEvery := 60 * time.Second
		if cfg.Metrics.FlushEverySeconds > 0 {
			flushEvery = time.Duration(cfg.Metrics.FlushEverySeconds) * time.Second
		}

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: flushEvery,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		logger.Printf("metrics: backend=datadog job_name=%v tags=%v", jobName, tags)
		metrics.SetBackend(b)
		cobra.OnFinalize(func() {
			if err := b.Close(); err != nil {
				logger.Printf("metrics: datadog close/flush error: %v", err)
			}
		})

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", cfg.Metrics.Kind)
	}
}
