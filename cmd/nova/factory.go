package main

import (
	"fmt"

	"github.com/ShayCichocki/nova/internal/agent"
	"github.com/ShayCichocki/nova/internal/config"
	"github.com/ShayCichocki/nova/internal/exec"
	"github.com/ShayCichocki/nova/internal/milestones"
	"github.com/ShayCichocki/nova/internal/projection"
	"github.com/ShayCichocki/nova/internal/state"
	"github.com/ShayCichocki/nova/internal/tracker"
)

// openSource opens the configured tracker backend. The returned close
// function is never nil.
func openSource(c *config.Config) (tracker.Source, func() error, error) {
	switch c.Tracker.Backend {
	case config.BackendSQLite:
		db, err := state.Open(c.Tracker.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open tracker database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate tracker database: %w", err)
		}
		return db, db.Close, nil

	case config.BackendBeads:
		src := tracker.NewBeadsSource(exec.NewRunner(), tracker.BeadsConfig{
			Bin:         c.Tracker.BeadsBin,
			WorkDir:     c.Tracker.WorkDir,
			Concurrency: c.Tracker.LoadConcurrency,
		}, logger.With("component", "beads"))
		if err := src.Available(); err != nil {
			return nil, nil, err
		}
		return src, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown tracker backend %q", c.Tracker.Backend)
	}
}

// openAdapter opens the tracker and wraps it in an Adapter.
func openAdapter(c *config.Config) (*tracker.Adapter, func() error, error) {
	src, closeFn, err := openSource(c)
	if err != nil {
		return nil, nil, err
	}
	return tracker.NewAdapter(src, logger.With("component", "tracker")), closeFn, nil
}

func newSupervisor(c *config.Config, adapter *tracker.Adapter) *agent.Supervisor {
	return &agent.Supervisor{
		Command:        c.Worker.Command,
		Args:           c.Worker.Args,
		WorkDir:        c.Worker.WorkDir,
		LogDir:         c.Worker.LogDir,
		DefaultTimeout: c.Worker.Timeout,
		KillGrace:      c.Worker.KillGrace,
		Pricing:        c.Pricing,
		Adapter:        adapter,
		Logger:         logger.With("component", "supervisor"),
	}
}

// newProjectionService builds the read side. noCache disables the
// read-through cache for one-shot reads.
func newProjectionService(c *config.Config, adapter *tracker.Adapter, noCache bool) (*projection.Service, error) {
	set, err := milestones.Load(c.Milestones.Path)
	if err != nil {
		return nil, err
	}
	ttl := c.Server.CacheTTL
	if noCache {
		ttl = 0
	}
	return projection.NewService(adapter, projection.ServiceConfig{
		Options: projection.Options{
			Pricing:    c.Pricing,
			Milestones: set,
			LogDir:     c.Worker.LogDir,
		},
		CacheTTL: ttl,
		Logger:   logger.With("component", "projection"),
	})
}
