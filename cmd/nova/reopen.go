package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reopenCmd = &cobra.Command{
	Use:   "reopen <task-id>...",
	Short: "Return failed tasks to pending",
	Long: `Reopen failed tasks so the next run dispatches them again.

Only failed tasks can be reopened. Each reopen increments the task's retry
count; earlier attempt records are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, closeTracker, err := openAdapter(cfg)
		if err != nil {
			return err
		}
		defer closeTracker()

		var failed int
		for _, id := range args {
			if err := adapter.Reopen(cmd.Context(), id); err != nil {
				printFailure(err.Error())
				failed++
				continue
			}
			printSuccess(fmt.Sprintf("Reopened %s", id))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tasks could not be reopened", failed, len(args))
		}
		return nil
	},
}
