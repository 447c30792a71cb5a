package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/tui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <root-id>",
	Short: "Show progress of the graph under a root",
	Long: `Display the status projection of <root-id>: the rolled-up status,
token usage and cost of the project, each branch and each group, and the
state of every task.

With --json the projection is printed exactly as the HTTP API serves it.`,
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

		if statusJSON {
			data, err := svc.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				return fmt.Errorf("format projection: %w", err)
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(os.Stdout)
			return err
		}

		st, err := svc.View(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Print(tui.NewStatusView(terminalWidth()).Render(st))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the projection as JSON")
}
