package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/config"
	"github.com/ShayCichocki/nova/internal/state"
)

var seedCmd = &cobra.Command{
	Use:   "seed <graph.yaml>",
	Short: "Import a task graph into the SQLite tracker",
	Long: `Load a YAML task graph into the local SQLite tracker.

Seeding is idempotent: re-importing a file updates titles, dependencies and
layout but keeps the status, retry count and attempts of existing tasks.

Example file:

  root:
    id: compiler
    title: Build a compiler
  tasks:
    - id: lexer
      title: Write the lexer
      group: parsing
      priority: 1
      timeout: 20m
    - id: parser
      title: Write the parser
      depends_on: [lexer]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Tracker.Backend != config.BackendSQLite {
			printWarning(fmt.Sprintf("tracker.backend is %q; seeding %s anyway", cfg.Tracker.Backend, cfg.Tracker.DBPath))
		}

		graph, err := state.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		db, err := state.Open(cfg.Tracker.DBPath)
		if err != nil {
			return fmt.Errorf("open tracker database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate tracker database: %w", err)
		}

		if err := db.Seed(cmd.Context(), graph); err != nil {
			return err
		}
		printSuccess(fmt.Sprintf("Seeded %d tasks under %s into %s", len(graph.Tasks), graph.Root.ID, db.Path()))
		return nil
	},
}
