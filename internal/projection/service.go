package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/internal/tracker"
)

// Loader loads the current snapshot of a root.
type Loader interface {
	Load(ctx context.Context, rootID string) (*tracker.Snapshot, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Options
	// CacheTTL bounds how long an encoded projection is served without
	// reloading. Zero disables caching.
	CacheTTL time.Duration
	// CacheMaxBytes caps the total size of cached projections.
	CacheMaxBytes int64
	Logger        *slog.Logger
}

// Service serves encoded projections through a read-through cache keyed
// by root ID. The orchestrator calls Invalidate whenever tracker state may
// have changed.
type Service struct {
	loader Loader
	opts   Options
	ttl    time.Duration
	cache  *ristretto.Cache[string, []byte]
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(loader Loader, cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		loader: loader,
		opts:   cfg.Options,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}
	if cfg.CacheTTL <= 0 {
		return s, nil
	}

	maxCost := cfg.CacheMaxBytes
	if maxCost <= 0 {
		maxCost = 32 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 100 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create projection cache: %w", err)
	}
	s.cache = c
	return s, nil
}

// Status returns the JSON-encoded projection of rootID. Repeated calls with
// no intervening tracker change return identical bytes.
func (s *Service) Status(ctx context.Context, rootID string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(rootID); ok {
			return data, nil
		}
	}

	st, err := s.build(ctx, rootID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}

	if s.cache != nil {
		s.cache.SetWithTTL(rootID, data, int64(len(data)), s.ttl)
		s.cache.Wait()
	}
	return data, nil
}

// View returns the decoded projection of rootID.
func (s *Service) View(ctx context.Context, rootID string) (*Status, error) {
	data, err := s.Status(ctx, rootID)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	return &st, nil
}

// Task returns the view of one task under rootID, or tracker.ErrNotFound.
func (s *Service) Task(ctx context.Context, rootID, taskID string) (*TaskView, error) {
	st, err := s.View(ctx, rootID)
	if err != nil {
		return nil, err
	}
	view, ok := st.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s under %s: %w", taskID, rootID, tracker.ErrNotFound)
	}
	return &view, nil
}

// LogDir returns the directory worker logs are read from.
func (s *Service) LogDir() string {
	return s.opts.LogDir
}

// Invalidate drops every cached projection.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Close releases the cache.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *Service) build(ctx context.Context, rootID string) (*Status, error) {
	start := time.Now()
	snap, err := s.loader.Load(ctx, rootID)
	if err != nil {
		return nil, err
	}
	st := Build(snap, s.opts)
	s.logger.Debug("built projection", "root", rootID, "tasks", len(st.Tasks), "duration_ms", time.Since(start).Milliseconds())
	return st, nil
}
