package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/nova/internal/orchestrator"
	"github.com/ShayCichocki/nova/internal/projection"
)

var (
	runMaxWorkers int
	runTick       time.Duration
	runServe      bool
	runAddr       string
	runKeepAlive  bool
)

var runCmd = &cobra.Command{
	Use:   "run <root-id>",
	Short: "Dispatch the task graph under a root",
	Long: `Run the orchestrator against the graph under <root-id>.

Every tick the graph is reloaded from the tracker, and each pending task
whose dependencies are all completed is marked in_progress and handed to a
worker, up to --max-workers at a time. The run exits once nothing is
running and nothing can be dispatched, unless --keep-alive is set.

Control a running orchestrator with 'nova stop', 'nova pause' and
'nova resume'. Ctrl+C interrupts running workers; 'nova stop' lets them
finish.

With --serve the status projection is served over HTTP for the duration
of the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoot,
}

func init() {
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "maximum concurrent workers (default from config)")
	runCmd.Flags().DurationVar(&runTick, "tick", 0, "tick interval (default from config)")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "also serve the status projection over HTTP")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address for --serve (default from config)")
	runCmd.Flags().BoolVar(&runKeepAlive, "keep-alive", false, "keep polling after the graph goes idle")
}

func runRoot(cmd *cobra.Command, args []string) error {
	rootID := args[0]
	if cmd.Flags().Changed("max-workers") {
		cfg.Scheduler.MaxWorkers = runMaxWorkers
	}
	if cmd.Flags().Changed("tick") {
		cfg.Scheduler.TickInterval = runTick
	}
	if runKeepAlive {
		cfg.Scheduler.ExitWhenIdle = false
	}
	if runAddr != "" {
		cfg.Server.Addr = runAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
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

	// A stop left over from an earlier run would end this one immediately.
	if err := orchestrator.ClearSignals(cfg.Control.SignalsDir); err != nil {
		return err
	}
	signals, err := orchestrator.NewSignals(cfg.Control.SignalsDir, logger.With("component", "signals"))
	if err != nil {
		return err
	}
	defer signals.Close()

	events := orchestrator.NewEventEmitter(256, logger)
	orch := orchestrator.New(
		orchestrator.RequiredConfig{Store: adapter, Runner: newSupervisor(cfg, adapter)},
		orchestrator.WithMaxWorkers(cfg.Scheduler.MaxWorkers),
		orchestrator.WithTickInterval(cfg.Scheduler.TickInterval),
		orchestrator.WithExitWhenIdle(cfg.Scheduler.ExitWhenIdle),
		orchestrator.WithSignals(signals),
		orchestrator.WithInvalidator(svc),
		orchestrator.WithEvents(events),
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
	)

	printInfo(fmt.Sprintf("Running %s with up to %d workers", rootID, cfg.Scheduler.MaxWorkers))

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	var summary orchestrator.Summary
	g.Go(func() error {
		defer events.Close()
		defer stopServe()
		var err error
		summary, err = orch.Run(gctx, rootID)
		return err
	})
	g.Go(func() error {
		printEvents(os.Stdout, events.Events())
		return nil
	})
	if runServe {
		g.Go(func() error {
			printInfo("Serving status on http://" + cfg.Server.Addr + "/api/status/" + rootID)
			return projection.NewServer(cfg.Server.Addr, svc, logger.With("component", "http")).Run(serveCtx)
		})
	}

	err = g.Wait()
	printSummary(summary, events.DroppedCount())
	if errors.Is(err, context.Canceled) {
		printWarning("Interrupted; running workers were stopped and recorded as failed")
		return nil
	}
	return err
}

// printEvents writes one line per orchestrator event until events closes.
func printEvents(w io.Writer, events <-chan orchestrator.Event) {
	for e := range events {
		if line := formatEvent(e); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func formatEvent(e orchestrator.Event) string {
	ts := e.Timestamp.Format("15:04:05")
	switch e.Type {
	case orchestrator.EventTaskDispatched:
		return fmt.Sprintf("%s %s %s %s", ts, color.CyanString("→"), e.TaskID, e.TaskTitle)
	case orchestrator.EventTaskCompleted:
		return fmt.Sprintf("%s %s %s (%s, %d tokens, $%.4f)", ts, color.GreenString("✓"), e.TaskID,
			e.Duration.Round(time.Second), e.Tokens, e.Cost)
	case orchestrator.EventTaskFailed:
		reason := e.Message
		if e.Error != nil {
			reason = e.Error.Error()
		}
		line := fmt.Sprintf("%s %s %s: %s", ts, color.RedString("✗"), e.TaskID, reason)
		if e.LogFile != "" {
			line += color.HiBlackString(" (log: %s)", e.LogFile)
		}
		return line
	case orchestrator.EventTickFailed:
		return fmt.Sprintf("%s %s tick failed: %v", ts, color.YellowString("⚠"), e.Error)
	case orchestrator.EventPaused:
		return fmt.Sprintf("%s %s paused", ts, color.YellowString("‖"))
	case orchestrator.EventResumed:
		return fmt.Sprintf("%s %s resumed", ts, color.CyanString("▶"))
	case orchestrator.EventStopping:
		return fmt.Sprintf("%s %s stopping: %s", ts, color.YellowString("■"), e.Message)
	default:
		return ""
	}
}

// printSummary reports the run totals. dropped counts events the
// printer fell too far behind to show.
func printSummary(s orchestrator.Summary, dropped uint64) {
	fmt.Printf("\n%d dispatched, %s, %s over %d ticks\n",
		s.Dispatched,
		color.GreenString("%d completed", s.Completed),
		color.RedString("%d failed", s.Failed),
		s.Ticks)
	if s.TickErrors > 0 {
		printWarning(fmt.Sprintf("%d ticks failed and were retried", s.TickErrors))
	}
	if s.PersistErrors > 0 {
		printWarning(fmt.Sprintf("%d results could not be written to the tracker; those tasks remain in_progress", s.PersistErrors))
	}
	if dropped > 0 {
		printWarning(fmt.Sprintf("%d events were dropped from the live output", dropped))
	}
	if s.Stopped {
		printInfo("Stopped by request")
	}
}

func printInfo(msg string) {
	fmt.Printf("%s %s\n", color.CyanString("•"), msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), msg)
}

func printWarning(msg string) {
	fmt.Printf("%s %s\n", color.YellowString("⚠"), msg)
}

func printFailure(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), msg)
}
