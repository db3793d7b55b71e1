package sync

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs SyncAll on a fixed interval until its context is
// cancelled. Manual syncs triggered over the API share the Service's
// singleflight group, so a scheduled run and a manual run of the same
// agent never overlap.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. Intervals below one minute are raised
// to one minute to keep a misconfigured deployment from hammering Bolna.
func NewScheduler(service *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Start blocks, running a full sync every interval until ctx is cancelled.
// The first run happens after one full interval, not immediately; startup
// sync is the caller's decision.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("sync scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			start := time.Now()
			n, err := s.service.SyncAll(ctx)
			if err != nil {
				s.logger.Error("scheduled sync failed", "error", err)
				continue
			}
			s.logger.Info("scheduled sync complete",
				"synced", n, "elapsed", time.Since(start).String())
		}
	}
}
