package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nova/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, the user config, the project
.nova.yaml and NOVA_* environment variables are merged.

With one argument (key), displays the value for that key.

User configuration is read from ~/.config/nova/config.yaml
Project-specific overrides can be placed in .nova.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := configValues(cfg)
		if len(args) == 1 {
			v, ok := values[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}
			fmt.Println(v)
			return nil
		}

		fmt.Printf("# user config:    %s\n", config.UserConfigPath())
		if p := config.ProjectConfigPath(); p != "" {
			fmt.Printf("# project config: %s\n", p)
		}
		if configPath != "" {
			fmt.Printf("# config file:    %s\n", configPath)
		}
		displayAllConfig(values)
		return nil
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stdout, "%s: %s\n", k, values[k])
	}
}

// configValues flattens c into dot-notation keys.
func configValues(c *config.Config) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	orUnset := func(s string) string {
		if s == "" {
			return "(not set)"
		}
		return s
	}
	return map[string]string{
		"tracker.backend":                    c.Tracker.Backend,
		"tracker.beads_bin":                  c.Tracker.BeadsBin,
		"tracker.work_dir":                   orUnset(c.Tracker.WorkDir),
		"tracker.db_path":                    c.Tracker.DBPath,
		"tracker.load_concurrency":           strconv.Itoa(c.Tracker.LoadConcurrency),
		"scheduler.tick_interval":            c.Scheduler.TickInterval.String(),
		"scheduler.max_workers":              strconv.Itoa(c.Scheduler.MaxWorkers),
		"scheduler.exit_when_idle":           strconv.FormatBool(c.Scheduler.ExitWhenIdle),
		"worker.command":                     c.Worker.Command,
		"worker.args":                        "[" + strings.Join(c.Worker.Args, " ") + "]",
		"worker.work_dir":                    orUnset(c.Worker.WorkDir),
		"worker.timeout":                     c.Worker.Timeout.String(),
		"worker.kill_grace":                  c.Worker.KillGrace.String(),
		"worker.log_dir":                     orUnset(c.Worker.LogDir),
		"pricing.input_per_million":          f(c.Pricing.InputPerMillion),
		"pricing.output_per_million":         f(c.Pricing.OutputPerMillion),
		"pricing.cache_read_per_million":     f(c.Pricing.CacheReadPerMillion),
		"pricing.cache_creation_per_million": f(c.Pricing.CacheCreationPerMillion),
		"server.addr":                        c.Server.Addr,
		"server.cache_ttl":                   c.Server.CacheTTL.String(),
		"milestones.path":                    orUnset(c.Milestones.Path),
		"logging.level":                      c.Logging.Level,
		"logging.format":                     c.Logging.Format,
		"logging.file":                       orUnset(c.Logging.File),
		"control.signals_dir":                c.Control.SignalsDir,
	}
}

// terminalWidth reads $COLUMNS, falling back to 100.
func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 100
}
