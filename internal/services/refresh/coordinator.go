// Package refresh decides when a view is fetched and coalesces concurrent
// fetches of the same view into one upstream request.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/dsefeed/internal/cache"
	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultRefreshTimeout = 60 * time.Second
)

// Loader runs one Fetcher+Parser cycle for a view.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Coordinator owns the refresh policy of a single view.
//
// A fresh entry is served as-is. A stale entry is served immediately while a
// background refresh runs. An empty slot makes the caller wait for the first
// fetch, bounded by the request timeout. At most one refresh per view is in
// flight at any time; later callers attach to it.
type Coordinator[T any] struct {
	slot           *cache.Slot[T]
	load           Loader[T]
	group          singleflight.Group
	logger         *common.Logger
	requestTimeout time.Duration
	refreshTimeout time.Duration
	now            func() time.Time // injectable clock for testing
	refreshing     atomic.Bool
	lastErr        atomic.Pointer[error]
}

// Option configures a Coordinator
type Option func(*options)

type options struct {
	logger         *common.Logger
	requestTimeout time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRequestTimeout bounds how long a caller waits on a cold start
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithRefreshTimeout bounds a single refresh, independent of any caller
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewCoordinator creates a coordinator that fills slot from load.
func NewCoordinator[T any](slot *cache.Slot[T], load Loader[T], opts ...Option) *Coordinator[T] {
	o := options{
		logger:         common.NewSilentLogger(),
		requestTimeout: DefaultRequestTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Coordinator[T]{
		slot:           slot,
		load:           load,
		logger:         o.logger.WithView(string(slot.View())),
		requestTimeout: o.requestTimeout,
		refreshTimeout: o.refreshTimeout,
		now:            o.now,
	}
}

// View returns the view this coordinator refreshes.
func (c *Coordinator[T]) View() models.View { return c.slot.View() }

// Get returns the cached entry, fetching it first when the slot is empty.
func (c *Coordinator[T]) Get(ctx context.Context) (cache.Entry[T], error) {
	if e, ok := c.slot.Get(); ok {
		if !e.IsFresh(c.now()) {
			c.logger.Debug().Dur("age", e.Age(c.now())).Msg("Serving stale entry, refreshing in background")
			c.start(ctx, e.FetchedAt)
		}
		return e, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	select {
	case res := <-c.start(ctx, time.Time{}):
		if res.Err != nil {
			return cache.Entry[T]{}, &common.DataUnavailableError{
				Reason: common.ColdStart,
				View:   string(c.View()),
				Err:    res.Err,
			}
		}
		e, ok := c.slot.Get()
		if !ok {
			return cache.Entry[T]{}, &common.DataUnavailableError{Reason: common.ColdStart, View: string(c.View())}
		}
		return e, nil
	case <-waitCtx.Done():
		c.logger.Warn().Dur("timeout", c.requestTimeout).Msg("Caller gave up waiting for first fetch")
		return cache.Entry[T]{}, &common.DataUnavailableError{
			Reason: common.Timeout,
			View:   string(c.View()),
			Err:    waitCtx.Err(),
		}
	}
}

// Refresh forces a refresh, joining one that is in flight, and returns its
// error. Cancelling ctx only stops the wait.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	select {
	case res := <-c.start(ctx, c.slot.FetchedAt()):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start joins or launches the view's refresh. observed is the entry timestamp
// the caller based its decision on, zero when the slot was empty. The returned
// channel is buffered, so callers that do not wait leak nothing.
func (c *Coordinator[T]) start(ctx context.Context, observed time.Time) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(string(c.View()), func() (any, error) {
		return nil, c.refresh(detached, observed)
	})
}

// refresh runs one load cycle. observed is the entry timestamp the
// triggering caller saw; if the slot has moved past it, another refresh
// already did the work.
func (c *Coordinator[T]) refresh(ctx context.Context, observed time.Time) (err error) {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh %s panicked: %v", c.View(), r)
			c.logger.Error().Interface("panic", r).Msg("Refresh panicked")
		}
	}()

	if c.slot.FetchedAt().After(observed) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	trigger := common.ResolveCorrelationID(ctx)
	started := time.Now()
	records, err := c.load(ctx)
	elapsed := time.Since(started)
	if err != nil {
		failed := err
		c.lastErr.Store(&failed)
		event := c.logger.Warn().Err(err).Str("trigger", trigger).Dur("elapsed", elapsed)
		if prev := c.slot.FetchedAt(); !prev.IsZero() {
			event = event.Time("serving_from", prev)
		}
		event.Msg("Refresh failed")
		return err
	}

	c.slot.Put(records, c.now())
	c.lastErr.Store(nil)
	c.logger.Info().Int("records", len(records)).Str("trigger", trigger).Dur("elapsed", elapsed).Msg("Refresh complete")
	return nil
}

// State reports where the view is in its refresh lifecycle.
func (c *Coordinator[T]) State() models.RefreshState {
	populated := !c.slot.FetchedAt().IsZero()
	switch {
	case c.refreshing.Load() && populated:
		return models.StateRefreshingStale
	case c.refreshing.Load():
		return models.StateFetching
	case populated:
		return models.StateReady
	default:
		return models.StateEmpty
	}
}

// LastError returns the error of the most recent refresh, or nil if it succeeded.
func (c *Coordinator[T]) LastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Status summarises the view at now, including the refresh state.
func (c *Coordinator[T]) Status(now time.Time) models.ViewStatus {
	st := c.slot.Status(now)
	st.State = c.State()
	if err := c.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
