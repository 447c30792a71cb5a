package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/tui"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <root-id>",
	Short: "Live view of the graph under a root",
	Long: `Poll the status projection of <root-id> and redraw it in place.

Press r to refresh immediately and q to quit. Watching never writes to the
tracker, so it is safe alongside a running 'nova run'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, closeTracker, err := openAdapter(cfg)
		if err != nil {
			return err
		}
		defer closeTracker()

		svc, err := newProjectionService(cfg, adapter, true)
		if err != nil {
			return err
		}
		defer svc.Close()

		program, _ := tui.NewWatchProgram(svc, args[0], watchInterval)
		_, err = program.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")
}
