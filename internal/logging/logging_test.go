package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/nova/internal/config"
)

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "task", "t1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["task"] != "t1" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_AlsoWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nova.log")
	var buf bytes.Buffer
	logger, closer, err := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	logger.Debug("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") || !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("file %q, stderr %q", data, buf.String())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []config.LoggingConfig{
		{Level: "loud"},
		{Format: "xml"},
	}
	for _, cfg := range tests {
		if _, _, err := NewWithWriter(&bytes.Buffer{}, cfg); err == nil {
			t.Errorf("NewWithWriter(%+v) error = nil", cfg)
		}
	}
}
