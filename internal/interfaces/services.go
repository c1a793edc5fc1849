package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/dsefeed/internal/models"
)

// MarketService is the read surface over the cached exchange data.
type MarketService interface {
	// Latest returns the full current price snapshot
	Latest(ctx context.Context) ([]models.StockRecord, error)

	// Dsex returns DSEX records, optionally narrowed to one symbol (case-insensitive)
	Dsex(ctx context.Context, symbol string) ([]models.DsexRecord, error)

	// Top30 returns at most 30 entries in rank order
	Top30(ctx context.Context) ([]models.Top30Entry, error)

	// Historical returns day-end records within [start, end], ordered by date then code
	Historical(ctx context.Context, start, end time.Time, code string) ([]models.HistoricalRecord, error)

	// Status reports the cache state of every view
	Status(ctx context.Context) []models.ViewStatus
}

// Refresher forces a coalesced refresh of one view.
type Refresher interface {
	View() models.View
	Refresh(ctx context.Context) error
}
