package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/dsefeed/internal/cache"
	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

// fakeClock is a settable clock shared between the test and the coordinator.
type fakeClock struct {
	now atomic.Pointer[time.Time]
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.Set(t)
	return c
}

func (c *fakeClock) Now() time.Time { return *c.now.Load() }

func (c *fakeClock) Set(t time.Time) { c.now.Store(&t) }

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

var t0 = time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)

func TestGet_FreshEntryDoesNotLoad(t *testing.T) {
	clock := newFakeClock(t0)
	slot := cache.NewSlot[string](models.ViewLatest, time.Minute)
	slot.Put([]string{"ACI"}, t0)

	var loads atomic.Int32
	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		loads.Add(1)
		return []string{"GP"}, nil
	}, WithClock(clock.Now))

	clock.Advance(30 * time.Second)
	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ACI"}, e.Records)
	assert.Equal(t, int32(0), loads.Load())
	assert.Equal(t, models.StateReady, c.State())
}

func TestGet_ColdStartLoads(t *testing.T) {
	slot := cache.NewSlot[string](models.ViewTop30, time.Minute)
	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		return []string{"BEXIMCO", "BRACBANK"}, nil
	})

	assert.Equal(t, models.StateEmpty, c.State())

	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BEXIMCO", "BRACBANK"}, e.Records)
	assert.False(t, e.FetchedAt.IsZero())
	assert.Equal(t, models.StateReady, c.State())
}

func TestGet_ColdStartFailureIsDataUnavailable(t *testing.T) {
	cause := &common.FetchError{Kind: common.FetchUnreachable, View: "latest", Attempts: 1}
	slot := cache.NewSlot[string](models.ViewLatest, time.Minute)
	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		return nil, cause
	})

	_, err := c.Get(context.Background())
	require.Error(t, err)

	var du *common.DataUnavailableError
	require.True(t, errors.As(err, &du))
	assert.Equal(t, common.ColdStart, du.Reason)
	assert.Equal(t, "latest", du.View)

	var fe *common.FetchError
	assert.True(t, errors.As(err, &fe), "cause must stay reachable")
	assert.Equal(t, models.StateEmpty, c.State())
	assert.Equal(t, cause, c.LastError())
}

func TestGet_StaleServesAndRefreshesInBackground(t *testing.T) {
	clock := newFakeClock(t0)
	slot := cache.NewSlot[string](models.ViewDsex, time.Minute)
	slot.Put([]string{"old"}, t0)

	done := make(chan struct{})
	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		defer close(done)
		return []string{"new"}, nil
	}, WithClock(clock.Now))

	clock.Advance(2 * time.Minute)
	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, e.Records, "stale data is served immediately")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never ran")
	}
	require.Eventually(t, func() bool {
		got, _ := slot.Get()
		return len(got.Records) == 1 && got.Records[0] == "new"
	}, time.Second, 5*time.Millisecond)
	assert.True(t, slot.FetchedAt().Equal(clock.Now()))
}

func TestGet_StaleServeOnFailure(t *testing.T) {
	clock := newFakeClock(t0)
	slot := cache.NewSlot[string](models.ViewLatest, time.Minute)
	slot.Put([]string{"prior"}, t0)

	var loads atomic.Int32
	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		loads.Add(1)
		return nil, errors.New("upstream down")
	}, WithClock(clock.Now))

	clock.Advance(5 * time.Minute)

	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"prior"}, e.Records)

	require.Eventually(t, func() bool {
		return loads.Load() == 1 && c.State() == models.StateReady
	}, time.Second, 5*time.Millisecond)

	// prior data unchanged and still stale
	assert.True(t, slot.FetchedAt().Equal(t0))
	assert.False(t, slot.IsFresh(clock.Now()))
	assert.EqualError(t, c.LastError(), "upstream down")

	// a later request retries
	require.Eventually(t, func() bool {
		e, err := c.Get(context.Background())
		return err == nil && e.Records[0] == "prior" && loads.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestGet_CallerTimeoutDoesNotCancelFetch(t *testing.T) {
	slot := cache.NewSlot[string](models.ViewHistorical, time.Hour)
	release := make(chan struct{})
	var loadCtxErr atomic.Value

	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		<-release
		if ctx.Err() != nil {
			loadCtxErr.Store(ctx.Err())
		}
		return []string{"late"}, nil
	}, WithRequestTimeout(20*time.Millisecond))

	_, err := c.Get(context.Background())
	var du *common.DataUnavailableError
	require.True(t, errors.As(err, &du))
	assert.Equal(t, common.Timeout, du.Reason)
	assert.Equal(t, models.StateFetching, c.State())

	close(release)
	require.Eventually(t, func() bool { return slot.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, loadCtxErr.Load(), "the shared fetch must not see the caller's deadline")

	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, e.Records)
}

func TestGet_CancelledCallerDoesNotCancelFetch(t *testing.T) {
	slot := cache.NewSlot[string](models.ViewLatest, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})

	c := NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		return []string{"ok"}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		errCh <- err
	}()

	<-started
	cancel()
	err := <-errCh
	var du *common.DataUnavailableError
	require.True(t, errors.As(err, &du))
	assert.Equal(t, common.Timeout, du.Reason)

	close(release)
	require.Eventually(t, func() bool { return slot.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestGet_StaleReaderSkipsRefreshThatAlreadyHappened(t *testing.T) {
	// The reader decides the entry is stale; before it triggers a refresh,
	// another one completes. The reader must not fetch again.
	slot := cache.NewSlot[string](models.ViewLatest, time.Minute)
	slot.Put([]string{"old"}, t0)

	var loads atomic.Int32
	var c *Coordinator[string]
	var raced atomic.Bool
	clock := func() time.Time {
		if raced.CompareAndSwap(false, true) {
			require.NoError(t, c.Refresh(context.Background()))
		}
		return t0.Add(2 * time.Minute)
	}
	c = NewCoordinator(slot, func(ctx context.Context) ([]string, error) {
		loads.Add(1)
		return []string{"new"}, nil
	}, WithClock(clock))

	e, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, e.Records)

	assert.Never(t, func() bool { return loads.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())

	latest, _ := slot.Get()
	assert.Equal(t, []string{"new"}, latest.Records)
}

func TestRefresh_ForcesLoadOnFreshEntry(t *testing.T) {
	clock := newFakeClock(t0)
	slot := cache.NewSlot[int](models.ViewTop30, time.Minute)
	slot.Put([]int{1}, t0)

	var loads atomic.Int32
	c := NewCoordinator(slot, func(ctx context.Context) ([]int, error) {
		return []int{int(loads.Add(1)) + 1}, nil
	}, WithClock(clock.Now))

	clock.Advance(10 * time.Second)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int32(1), loads.Load())

	e, _ := slot.Get()
	assert.Equal(t, []int{2}, e.Records)
}

func TestRefresh_ReturnsLoadError(t *testing.T) {
	slot := cache.NewSlot[int](models.ViewTop30, time.Minute)
	c := NewCoordinator(slot, func(ctx context.Context) ([]int, error) {
		return nil, &common.ParseError{Kind: common.NoRecognizableData, View: "top30"}
	})

	err := c.Refresh(context.Background())
	var pe *common.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestRefresh_RecoversFromPanickingLoader(t *testing.T) {
	slot := cache.NewSlot[int](models.ViewDsex, time.Minute)
	c := NewCoordinator(slot, func(ctx context.Context) ([]int, error) {
		panic("boom")
	})

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, models.StateEmpty, c.State())
}

func TestStatus_IncludesState(t *testing.T) {
	clock := newFakeClock(t0)
	slot := cache.NewSlot[int](models.ViewLatest, time.Minute)
	c := NewCoordinator(slot, func(ctx context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	}, WithClock(clock.Now))

	st := c.Status(clock.Now())
	assert.Equal(t, models.StateEmpty, st.State)
	assert.Equal(t, 0, st.Records)

	require.NoError(t, c.Refresh(context.Background()))

	st = c.Status(clock.Now())
	assert.Equal(t, models.StateReady, st.State)
	assert.True(t, st.Fresh)
	assert.Equal(t, 3, st.Records)
	require.NotNil(t, st.FetchedAt)
	assert.True(t, st.FetchedAt.Equal(t0))
	assert.Empty(t, st.LastError)
}
