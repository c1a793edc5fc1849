package app

import (
	"context"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
)

// scheduler keeps the cache warm without waiting for a reader to notice staleness.
type scheduler struct {
	snapshots          []interfaces.Refresher
	historical         interfaces.Refresher
	interval           time.Duration
	historicalInterval time.Duration
	isOpen             func(time.Time) bool // market hours check
	now                func() time.Time
	logger             *common.Logger
}

// run ticks until ctx is cancelled. Snapshot pages only move while the
// exchange is trading, so those ticks are skipped outside market hours.
func (s *scheduler) run(ctx context.Context) {
	snapshots := time.NewTicker(s.interval)
	defer snapshots.Stop()
	history := time.NewTicker(s.historicalInterval)
	defer history.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Refresh scheduler: stopped")
			return
		case <-snapshots.C:
			if !s.isOpen(s.now()) {
				continue
			}
			refreshViews(ctx, s.snapshots, s.logger)
		case <-history.C:
			if s.historical != nil {
				refreshViews(ctx, []interfaces.Refresher{s.historical}, s.logger)
			}
		}
	}
}

func refreshViews(ctx context.Context, views []interfaces.Refresher, logger *common.Logger) {
	start := time.Now()
	failed := 0
	for _, v := range views {
		if err := v.Refresh(ctx); err != nil {
			failed++
			logger.Warn().Err(err).Str("view", string(v.View())).Msg("Scheduled refresh failed")
		}
	}

	logger.Debug().
		Int("views", len(views)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled refresh: complete")
}
