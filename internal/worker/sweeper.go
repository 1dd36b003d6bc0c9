package worker

import (
	"context"
	"log/slog"
	"time"
)

// Purger drops expired entries and reports how many were removed
type Purger interface {
	Purge() int
}

// Sweeper periodically purges expired entries from in-process stores,
// such as the memory revocation list used when Redis is not configured.
type Sweeper struct {
	name     string
	target   Purger
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper creates a sweeper for target
func NewSweeper(name string, target Purger, logger *slog.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		name:     name,
		target:   target,
		logger:   logger.With(slog.String("worker", name)),
		interval: interval,
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one purge pass
func (s *Sweeper) Sweep() int {
	removed := s.target.Purge()
	if removed > 0 {
		s.logger.Debug("expired entries purged", slog.Int("removed", removed))
	}
	return removed
}
