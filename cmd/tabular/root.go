package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tabular/internal/config"
)

var (
	cfgPath string
	cfg     config.Pipeline
)

var rootCmd = &cobra.Command{
	Use:   "tabular",
	Short: "Normalize nested heterogeneous records into relational tables",
	Long: `tabular fetches paginated batches of nested records from a configured
source, flattens them into relational tables (spinning child tables off
arrays of objects), merges the per-batch fragments, and loads the result
into CSV files or a database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			return fmt.Errorf("--config is required")
		}
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to pipeline config JSON (required)")
}
