package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/nova/internal/config"
	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/internal/orchestrator"
	"github.com/ShayCichocki/nova/internal/state"
	"github.com/ShayCichocki/nova/pkg/models"
)

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 11, 12, 0, time.UTC)
	tests := []struct {
		name  string
		event orchestrator.Event
		want  []string
	}{
		{
			name:  "dispatched",
			event: orchestrator.Event{Type: orchestrator.EventTaskDispatched, TaskID: "t1", TaskTitle: "Write lexer", Timestamp: ts},
			want:  []string{"10:11:12", "t1", "Write lexer"},
		},
		{
			name:  "completed",
			event: orchestrator.Event{Type: orchestrator.EventTaskCompleted, TaskID: "t1", Tokens: 1200, Cost: 0.0123, Duration: 61 * time.Second, Timestamp: ts},
			want:  []string{"t1", "1m1s", "1200 tokens", "$0.0123"},
		},
		{
			name:  "failed",
			event: orchestrator.Event{Type: orchestrator.EventTaskFailed, TaskID: "t2", Error: errors.New("exit status 3"), LogFile: "/tmp/t2.log", Timestamp: ts},
			want:  []string{"t2", "exit status 3", "/tmp/t2.log"},
		},
		{
			name:  "tick failed",
			event: orchestrator.Event{Type: orchestrator.EventTickFailed, Error: errors.New("tracker unavailable"), Timestamp: ts},
			want:  []string{"tick failed", "tracker unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEvent(tt.event)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatEvent() = %q, missing %q", got, w)
				}
			}
		})
	}

	if got := formatEvent(orchestrator.Event{Type: orchestrator.EventRunDone}); got != "" {
		t.Errorf("run_done should not print, got %q", got)
	}
}

func TestPrintEvents(t *testing.T) {
	ch := make(chan orchestrator.Event, 3)
	ch <- orchestrator.Event{Type: orchestrator.EventTaskDispatched, TaskID: "a"}
	ch <- orchestrator.Event{Type: orchestrator.EventRunDone}
	ch <- orchestrator.Event{Type: orchestrator.EventPaused}
	close(ch)

	var buf bytes.Buffer
	printEvents(&buf, ch)
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("printed %d lines, want 2: %q", lines, buf.String())
	}
}

func TestConfigValues_CoversEveryKey(t *testing.T) {
	values := configValues(config.Default())
	for _, key := range []string{
		"tracker.backend", "scheduler.max_workers", "worker.timeout",
		"pricing.cache_creation_per_million", "server.cache_ttl", "control.signals_dir",
	} {
		if _, ok := values[key]; !ok {
			t.Errorf("configValues() missing %q", key)
		}
	}
	if values["pricing.output_per_million"] != "15" {
		t.Errorf("output price = %q", values["pricing.output_per_million"])
	}
}

func TestOpenAdapter_SQLite(t *testing.T) {
	logger = logging.Discard()
	c := config.Default()
	c.Tracker.Backend = config.BackendSQLite
	c.Tracker.DBPath = filepath.Join(t.TempDir(), "tracker.db")

	db, err := state.Open(c.Tracker.DBPath)
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	seed := &state.SeedGraph{
		Root:  state.SeedRoot{ID: "proj", Title: "Project"},
		Tasks: []state.SeedTask{{ID: "a", Title: "A"}, {ID: "b", Title: "B", DependsOn: []string{"a"}}},
	}
	if err := db.Seed(context.Background(), seed); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	db.Close()

	adapter, closeFn, err := openAdapter(c)
	if err != nil {
		t.Fatalf("openAdapter() error = %v", err)
	}
	defer closeFn()

	snap, err := adapter.Load(context.Background(), "proj")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", snap.Len())
	}
	if got := snap.DisplayStatus(snap.Task("b")); got != models.TaskStatusBlocked {
		t.Errorf("b display status = %s, want blocked", got)
	}
}

func TestOpenSource_BeadsMissingBinary(t *testing.T) {
	logger = logging.Discard()
	c := config.Default()
	c.Tracker.BeadsBin = filepath.Join(t.TempDir(), "no-such-bd")

	if _, _, err := openSource(c); err == nil {
		t.Fatal("openSource() error = nil, want missing binary")
	}
}

func TestTerminalWidth(t *testing.T) {
	t.Setenv("COLUMNS", "132")
	if got := terminalWidth(); got != 132 {
		t.Errorf("terminalWidth() = %d, want 132", got)
	}
	os.Unsetenv("COLUMNS")
	if got := terminalWidth(); got != 100 {
		t.Errorf("terminalWidth() = %d, want 100", got)
	}
}
