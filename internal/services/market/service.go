// Package market provides the read surface over the cached exchange data
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/bobmcallan/dsefeed/internal/cache"
	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
	"github.com/bobmcallan/dsefeed/internal/models"
	"github.com/bobmcallan/dsefeed/internal/services/refresh"
)

// ArchiveLoader fetches a historical range that lies outside the cached window.
type ArchiveLoader func(ctx context.Context, r models.DateRange, code string) ([]models.HistoricalRecord, error)

// Coordinators groups the per-view refresh coordinators the service reads through.
type Coordinators struct {
	Latest     *refresh.Coordinator[models.StockRecord]
	Dsex       *refresh.Coordinator[models.DsexRecord]
	Top30      *refresh.Coordinator[models.Top30Entry]
	Historical *refresh.Coordinator[models.HistoricalRecord]
}

// Refreshers lists the coordinators in models.Views order.
func (c Coordinators) Refreshers() []interfaces.Refresher {
	return []interfaces.Refresher{c.Latest, c.Dsex, c.Top30, c.Historical}
}

// Service implements MarketService
type Service struct {
	views          Coordinators
	archive        ArchiveLoader
	archiveGroup   singleflight.Group
	historyDays    int
	requestTimeout time.Duration
	archiveTimeout time.Duration
	logger         *common.Logger
	now            func() time.Time // injectable clock for testing
}

// NewService creates a new market service. archive may be nil, in which
// case ranges older than the cached window return whatever the cache holds.
func NewService(views Coordinators, archive ArchiveLoader, historyDays int, logger *common.Logger) *Service {
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}
	return &Service{
		views:          views,
		archive:        archive,
		historyDays:    historyDays,
		requestTimeout: refresh.DefaultRequestTimeout,
		archiveTimeout: refresh.DefaultRefreshTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// SetRequestTimeout bounds how long an archive query waits for the upstream.
func (s *Service) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// SetArchiveTimeout bounds one archive fetch, which runs detached from the
// caller so that coalesced waiters are not cut short by the first one leaving.
func (s *Service) SetArchiveTimeout(d time.Duration) {
	if d > 0 {
		s.archiveTimeout = d
	}
}

// Latest returns the full current snapshot.
func (s *Service) Latest(ctx context.Context) ([]models.StockRecord, error) {
	e, err := s.views.Latest.Get(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(e.Records), nil
}

// Dsex returns the DSEX records, narrowed to one symbol when symbol is not
// empty. No match is an empty result, not an error.
func (s *Service) Dsex(ctx context.Context, symbol string) ([]models.DsexRecord, error) {
	e, err := s.views.Dsex.Get(ctx)
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		return nonNil(e.Records), nil
	}

	want := foldCode(symbol)
	out := make([]models.DsexRecord, 0, 1)
	for _, r := range e.Records {
		if foldCode(r.Symbol) == want {
			out = append(out, r)
		}
	}
	return out, nil
}

// Top30 returns at most 30 entries in rank order.
func (s *Service) Top30(ctx context.Context) ([]models.Top30Entry, error) {
	e, err := s.views.Top30.Get(ctx)
	if err != nil {
		return nil, err
	}
	entries := e.Records
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	if len(entries) > models.MaxTop30 {
		entries = entries[:models.MaxTop30]
	}
	return nonNil(entries), nil
}

// Historical returns the records dated within [start, end], inclusive, for
// code or for every instrument when code is empty or models.AllInstruments.
// Results are ordered by date, then code.
func (s *Service) Historical(ctx context.Context, start, end time.Time, code string) ([]models.HistoricalRecord, error) {
	r := models.DateRange{Start: models.TruncateDate(start), End: models.TruncateDate(end)}
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %s > %s", common.ErrInvalidRange,
			r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout))
	}

	var (
		records []models.HistoricalRecord
		err     error
	)
	window := HistoryWindow(s.now(), s.historyDays)
	if s.archive != nil && r.Start.Before(window.Start) {
		records, err = s.archiveQuery(ctx, r, code)
	} else {
		var e cache.Entry[models.HistoricalRecord]
		e, err = s.views.Historical.Get(ctx)
		records = e.Records
	}
	if err != nil {
		return nil, err
	}

	return filterHistorical(records, r, code), nil
}

// archiveQuery fetches a range older than the cached window directly.
// Identical concurrent queries share one upstream request; results are not cached.
func (s *Service) archiveQuery(ctx context.Context, r models.DateRange, code string) ([]models.HistoricalRecord, error) {
	inst := canonicalCode(code)
	key := fmt.Sprintf("%s|%s|%s", r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout), inst)

	s.logger.Debug().Str("key", key).Msg("Historical range outside cached window, querying archive")

	detached := context.WithoutCancel(ctx)
	ch := s.archiveGroup.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(detached, s.archiveTimeout)
		defer cancel()
		return s.archive(fetchCtx, r, inst)
	})

	waitCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.Err == nil {
			records, _ := res.Val.([]models.HistoricalRecord)
			// the slice is shared between callers of the same key
			return append([]models.HistoricalRecord(nil), records...), nil
		}
		var pe *common.ParseError
		if errors.As(res.Err, &pe) && pe.EmptyTable() {
			return nil, nil
		}
		s.logger.Warn().Err(res.Err).Str("key", key).Msg("Archive query failed")
		return nil, &common.DataUnavailableError{Reason: common.ColdStart, View: string(models.ViewHistorical), Err: res.Err}
	case <-waitCtx.Done():
		return nil, &common.DataUnavailableError{Reason: common.Timeout, View: string(models.ViewHistorical), Err: waitCtx.Err()}
	}
}

// filterHistorical keeps the records inside r matching code, ordered by date then code.
func filterHistorical(records []models.HistoricalRecord, r models.DateRange, code string) []models.HistoricalRecord {
	all := isAllInstruments(code)
	want := foldCode(code)

	out := make([]models.HistoricalRecord, 0, len(records))
	for _, rec := range records {
		if !r.Contains(rec.Date) {
			continue
		}
		if !all && foldCode(rec.Code) != want {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Status reports the cache state of every view.
func (s *Service) Status(ctx context.Context) []models.ViewStatus {
	now := s.now()
	return []models.ViewStatus{
		s.views.Latest.Status(now),
		s.views.Dsex.Status(now),
		s.views.Top30.Status(now),
		s.views.Historical.Status(now),
	}
}

// foldCode case-folds a symbol or instrument code for comparison.
// A Caser is not safe for concurrent use, so one is made per call.
func foldCode(s string) string {
	return cases.Fold().String(s)
}

// canonicalCode is the form an instrument code is sent upstream in. The
// archive page matches codes exactly, and the coalescing key must agree with
// what is fetched.
func canonicalCode(code string) string {
	if isAllInstruments(code) {
		return models.AllInstruments
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

func isAllInstruments(code string) bool {
	return code == "" || foldCode(code) == foldCode(models.AllInstruments)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Ensure Service implements MarketService
var _ interfaces.MarketService = (*Service)(nil)
