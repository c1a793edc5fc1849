package app

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
)

// warmCache loads every view on startup so the first reader is not a cold start.
func warmCache(ctx context.Context, views []interfaces.Refresher, logger *common.Logger) {
	if os.Getenv("DSEFEED_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via DSEFEED_WARM_CACHE=off")
		return
	}

	start := time.Now()
	logger.Info().Int("views", len(views)).Msg("Warm cache: starting")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, v := range views {
		wg.Add(1)
		go func(v interfaces.Refresher) {
			defer wg.Done()
			if err := v.Refresh(ctx); err != nil {
				mu.Lock()
				failed = append(failed, string(v.View()))
				mu.Unlock()
				logger.Warn().Err(err).Str("view", string(v.View())).Msg("Warm cache: view failed")
			}
		}(v)
	}
	wg.Wait()

	logger.Info().
		Int("views", len(views)).
		Strs("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
