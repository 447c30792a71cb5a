package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/projection"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status projection over HTTP",
	Long: `Serve the read-only status projection without dispatching work.

Routes:
  GET /healthz
  GET /api/status/{rootID}
  GET /api/status/{rootID}/tasks/{taskID}
  GET /api/tasks/{taskID}/logs?lines=N`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		adapter, closeTracker, err := openAdapter(cfg)
		if err != nil {
			return err
		}
		defer closeTracker()

		svc, err := newProjectionService(cfg, adapter, false)
		if err != nil {
			return err
		}
		defer svc.Close()

		printInfo("Serving status on http://" + cfg.Server.Addr)
		return projection.NewServer(cfg.Server.Addr, svc, logger.With("component", "http")).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config)")
}
