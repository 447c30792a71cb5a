package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// Printing the version needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nova version %s\n", version.String())
	},
}
