// Package sweeper periodically removes detection faces left in collections by runs whose
// cleanup never completed, and refreshes the in-memory collection index so faces written
// by other processes become searchable.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/database"
)

// StaleDeleter removes detection faces created before a cutoff.
type StaleDeleter interface {
	DeleteStaleDetections(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper deletes detection faces older than MaxAge every Interval.
type Sweeper struct {
	store     StaleDeleter
	rebuilder database.HNSWRebuilder
	interval  time.Duration
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
}

// New creates a sweeper. It does nothing until Start or SweepOnce is called.
func New(store StaleDeleter, cfg config.SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		now:      time.Now,
		logger:   logger,
	}
}

// SetIndexRebuilder makes every scheduled run also rebuild the in-memory HNSW index.
// Faces enrolled by another process only reach the index through a rebuild.
func (s *Sweeper) SetIndexRebuilder(rebuilder database.HNSWRebuilder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilder = rebuilder
}

// RebuildIndex reloads the HNSW index from the collection store.
// It is a no-op when no rebuilder is set or the index is disabled.
func (s *Sweeper) RebuildIndex(ctx context.Context) error {
	s.mu.Lock()
	rebuilder := s.rebuilder
	s.mu.Unlock()

	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return nil
	}
	if err := rebuilder.RebuildHNSW(ctx); err != nil {
		return fmt.Errorf("rebuild HNSW index: %w", err)
	}
	s.logger.Debug("rebuilt HNSW index", "faces", rebuilder.HNSWCount())
	return nil
}

// SweepOnce deletes detection faces created more than MaxAge ago and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.DeleteStaleDetections(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale faces: %w", err)
	}
	if n > 0 {
		s.logger.Warn("removed stale detection faces", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	} else {
		s.logger.Debug("no stale detection faces", "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start runs SweepOnce and RebuildIndex immediately and then every interval until Stop is called
// or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return fmt.Errorf("sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(s.interval).Do(func() {
		if _, err := s.SweepOnce(runCtx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
		if err := s.RebuildIndex(runCtx); err != nil {
			s.logger.Error("index rebuild failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	scheduler.StartAsync()
	s.scheduler = scheduler
	s.cancel = cancel
	s.logger.Info("sweeper started", "interval", s.interval.String(), "max_age", s.maxAge.String())
	return nil
}

// Stop halts the schedule. Calling Stop on a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	s.scheduler = nil
	s.cancel = nil
	s.logger.Info("sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler != nil
}
