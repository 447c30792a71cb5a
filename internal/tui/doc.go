// Package tui renders the status projection in the terminal.
//
// StatusView draws a one-shot report for `nova status`. WatchApp is the
// bubbletea model behind `nova watch`: it polls a Fetcher on an interval
// and redraws the report under a progress bar.
//
// Usage:
//
//	program, _ := tui.NewWatchProgram(svc, "proj", 2*time.Second)
//	if _, err := program.Run(); err != nil {
//	    return err
//	}
package tui
