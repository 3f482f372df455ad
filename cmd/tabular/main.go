package main

import (
	"os"

	// register all source and writer backends with their factories.
	// config specifies which to use but we build in support for all of them.
	_ "tabular/internal/source"
	_ "tabular/internal/writer/csvout"
	_ "tabular/internal/writer/mssql"
	_ "tabular/internal/writer/mysql"
	_ "tabular/internal/writer/postgres"
	_ "tabular/internal/writer/sqlite"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
