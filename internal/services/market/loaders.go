package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
	"github.com/bobmcallan/dsefeed/internal/models"
	"github.com/bobmcallan/dsefeed/internal/parser"
)

const (
	// DefaultHistoryDays is the length of the cached historical window.
	DefaultHistoryDays = 400

	// DefaultArchiveChunkDays is the widest range asked of the archive page in
	// one request. A year of every instrument overflows the page body limit.
	DefaultArchiveChunkDays = 31
)

// Loaders binds the page fetcher to the parser, one fetch+parse cycle per view.
type Loaders struct {
	fetcher     interfaces.PageFetcher
	historyDays int
	chunkDays   int
	logger      *common.Logger
	now         func() time.Time
}

// NewLoaders creates the per-view loaders. historyDays <= 0 uses the default.
func NewLoaders(fetcher interfaces.PageFetcher, historyDays int, logger *common.Logger) *Loaders {
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}
	return &Loaders{
		fetcher:     fetcher,
		historyDays: historyDays,
		chunkDays:   DefaultArchiveChunkDays,
		logger:      logger,
		now:         time.Now,
	}
}

// SetChunkDays sets how many days one archive request covers.
func (l *Loaders) SetChunkDays(days int) {
	if days > 0 {
		l.chunkDays = days
	}
}

// HistoryWindow is the date range the historical view caches at now: the
// last historyDays days up to and including today on the exchange calendar.
func HistoryWindow(now time.Time, historyDays int) models.DateRange {
	today := common.ExchangeDate(now)
	return models.DateRange{Start: today.AddDate(0, 0, -historyDays), End: today}
}

// Window returns the currently cached historical window.
func (l *Loaders) Window() models.DateRange {
	return HistoryWindow(l.now(), l.historyDays)
}

// Latest fetches and parses the latest share price page.
func (l *Loaders) Latest(ctx context.Context) ([]models.StockRecord, error) {
	payload, err := l.fetcher.Fetch(ctx, models.PageRequest{View: models.ViewLatest})
	if err != nil {
		return nil, err
	}
	return parser.ParseAs[models.StockRecord](models.ViewLatest, payload)
}

// Dsex fetches and parses the DSEX page, stamping records with the fetch time.
func (l *Loaders) Dsex(ctx context.Context) ([]models.DsexRecord, error) {
	payload, err := l.fetcher.Fetch(ctx, models.PageRequest{View: models.ViewDsex})
	if err != nil {
		return nil, err
	}
	return parser.ParseDsex(payload, l.now().UTC())
}

// Top30 fetches and parses the DS30 page.
func (l *Loaders) Top30(ctx context.Context) ([]models.Top30Entry, error) {
	payload, err := l.fetcher.Fetch(ctx, models.PageRequest{View: models.ViewTop30})
	if err != nil {
		return nil, err
	}
	return parser.ParseAs[models.Top30Entry](models.ViewTop30, payload)
}

// History fetches the whole cached window for every instrument.
func (l *Loaders) History(ctx context.Context) ([]models.HistoricalRecord, error) {
	window := l.Window()
	l.logger.Debug().
		Str("start", window.Start.Format(models.DateLayout)).
		Str("end", window.End.Format(models.DateLayout)).
		Msg("Loading historical window")
	return l.Archive(ctx, window, models.AllInstruments)
}

// Archive fetches an arbitrary range for one code, or all of them. The range
// is requested in consecutive chunks of chunkDays; a chunk whose table is
// empty (a holiday stretch) contributes nothing, any other failure fails the load.
func (l *Loaders) Archive(ctx context.Context, r models.DateRange, code string) ([]models.HistoricalRecord, error) {
	chunks := splitRange(r, l.chunkDays)

	seen := make(map[string]bool)
	var records []models.HistoricalRecord
	for i, chunk := range chunks {
		payload, err := l.fetcher.Fetch(ctx, models.PageRequest{View: models.ViewHistorical, Range: chunk, Code: code})
		if err != nil {
			return nil, err
		}
		part, err := parser.ParseAs[models.HistoricalRecord](models.ViewHistorical, payload)
		if err != nil {
			var pe *common.ParseError
			if errors.As(err, &pe) && pe.EmptyTable() {
				continue
			}
			return nil, fmt.Errorf("archive chunk %d/%d %s..%s: %w", i+1, len(chunks),
				chunk.Start.Format(models.DateLayout), chunk.End.Format(models.DateLayout), err)
		}
		for _, rec := range part {
			key := rec.Date.Format(models.DateLayout) + "|" + rec.Code
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, rec)
		}
	}

	if len(chunks) > 1 {
		l.logger.Debug().Int("chunks", len(chunks)).Int("records", len(records)).Str("code", code).Msg("Archive range loaded")
	}

	if records == nil {
		// every chunk was empty; report it the way a single empty page would
		return nil, &common.ParseError{Kind: common.NoRecognizableData, View: string(models.ViewHistorical), TableFound: true}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Code < records[j].Code
	})
	return records, nil
}

// splitRange cuts r into consecutive inclusive ranges of at most days days.
func splitRange(r models.DateRange, days int) []models.DateRange {
	if days <= 0 || !r.Valid() {
		return []models.DateRange{r}
	}
	var out []models.DateRange
	for start := r.Start; !start.After(r.End); start = start.AddDate(0, 0, days) {
		end := start.AddDate(0, 0, days-1)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, models.DateRange{Start: start, End: end})
	}
	return out
}
