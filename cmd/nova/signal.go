package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/orchestrator"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running orchestrator to finish its workers and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := orchestrator.SendStop(cfg.Control.SignalsDir); err != nil {
			return err
		}
		printSuccess("Stop requested; running workers will finish first")
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Hold dispatch of new tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := orchestrator.SendPause(cfg.Control.SignalsDir); err != nil {
			return err
		}
		printSuccess("Dispatch paused; running workers continue")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume dispatch after a pause",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := orchestrator.SendResume(cfg.Control.SignalsDir); err != nil {
			return err
		}
		printSuccess("Dispatch resumed")
		return nil
	},
}
