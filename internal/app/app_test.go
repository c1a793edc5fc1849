package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

// fixtureFetcher serves the parser fixtures and counts fetches per view.
type fixtureFetcher struct {
	mu    sync.Mutex
	pages map[models.View][]byte
	calls map[models.View]int
}

func newFixtureFetcher(t *testing.T) *fixtureFetcher {
	t.Helper()
	read := func(name string) []byte {
		b, err := os.ReadFile(filepath.Join("..", "parser", "testdata", name))
		require.NoError(t, err)
		return b
	}
	return &fixtureFetcher{
		pages: map[models.View][]byte{
			models.ViewLatest:     read("latest.html"),
			models.ViewDsex:       read("latest.html"),
			models.ViewTop30:      read("top30.html"),
			models.ViewHistorical: read("historical.html"),
		},
		calls: map[models.View]int{},
	}
}

func (f *fixtureFetcher) Fetch(ctx context.Context, req models.PageRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.View]++
	return f.pages[req.View], nil
}

func (f *fixtureFetcher) count(v models.View) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[v]
}

func TestNewApp_WiresViewsThroughCache(t *testing.T) {
	fetcher := newFixtureFetcher(t)
	a := newApp(common.NewDefaultConfig(), common.NewSilentLogger(), fetcher)
	defer a.Close()
	ctx := context.Background()

	first, err := a.MarketService.Latest(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := a.MarketService.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.count(models.ViewLatest), "fresh entry must be served from cache")

	top, err := a.MarketService.Top30(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, top[0].Rank)

	statuses := a.MarketService.Status(ctx)
	require.Len(t, statuses, len(models.Views))
	assert.Equal(t, models.StateReady, statuses[0].State)
	assert.Equal(t, models.StateEmpty, statuses[1].State)
}

func TestNewApp_AppliesConfiguredTTLs(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Cache.TTLLatest = "5m"
	config.Cache.TTLHistorical = "not-a-duration"

	a := newApp(config, common.NewSilentLogger(), newFixtureFetcher(t))

	assert.Equal(t, 5*time.Minute, a.Store.Latest.TTL())
	assert.Equal(t, common.FreshnessHistorical, a.Store.Historical.TTL())
}

func TestNewApp_WarmCacheLoadsEveryView(t *testing.T) {
	fetcher := newFixtureFetcher(t)
	config := common.NewDefaultConfig()
	config.Cache.HistoryDays = 30 // one archive chunk
	a := newApp(config, common.NewSilentLogger(), fetcher)

	warmCache(context.Background(), a.Views.Refreshers(), a.Logger)

	for _, v := range models.Views {
		assert.Equal(t, 1, fetcher.count(v), "view %s", v)
	}
	for _, st := range a.MarketService.Status(context.Background()) {
		assert.Equal(t, models.StateReady, st.State, "view %s", st.View)
	}
}

func TestNewApp_HistoricalWindowLoadsInChunks(t *testing.T) {
	fetcher := newFixtureFetcher(t)
	config := common.NewDefaultConfig()
	config.Cache.HistoryDays = 400
	config.Upstream.ChunkDays = 31
	a := newApp(config, common.NewSilentLogger(), fetcher)

	require.NoError(t, a.Views.Historical.Refresh(context.Background()))

	// 401 inclusive days in ranges of 31
	assert.Equal(t, 13, fetcher.count(models.ViewHistorical))
	assert.Equal(t, 4, a.Store.Historical.Len(), "overlapping chunks collapse to distinct records")
}

func TestNewApp_LoadsConfigFile(t *testing.T) {
	for _, name := range []string{"PORT", "DSEFEED_PORT", "NODE_ENV", "DSEFEED_ENV", "DSEFEED_HISTORY_DAYS"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "dsefeed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "test"

[server]
port = 4100

[cache]
history_days = 30
`), 0o644))

	a, err := NewApp(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "test", a.Config.Environment)
	assert.Equal(t, 4100, a.Config.Server.Port)
	assert.Equal(t, 30, a.Config.Cache.HistoryDays)
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", resolveConfigPath("explicit.toml"))

	t.Setenv("DSEFEED_CONFIG", "/etc/dsefeed/dsefeed.toml")
	assert.Equal(t, "/etc/dsefeed/dsefeed.toml", resolveConfigPath(""))
}

func TestApp_CloseStopsBackgroundWork(t *testing.T) {
	t.Setenv("DSEFEED_WARM_CACHE", "off")
	a := newApp(common.NewDefaultConfig(), common.NewSilentLogger(), newFixtureFetcher(t))

	a.StartWarmCache()
	a.StartScheduler()
	a.Close()

	assert.Nil(t, a.schedulerCancel)
	assert.Nil(t, a.warmCacheCancel)
	a.Close()
}
