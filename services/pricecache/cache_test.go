package pricecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mse_backend/services/marketdata"
)

func testSeries(symbol string) *marketdata.Series {
	return &marketdata.Series{
		Symbol:      symbol,
		TimeRange:   marketdata.Range1Month,
		RetrievedAt: time.Now(),
		Source:      marketdata.SourceLive,
	}
}

func TestCacheSetGet(t *testing.T) {
	c := New()
	defer c.Stop()

	key := HistoricalKey("airtel", marketdata.Range1Month, time.Now())
	c.Set(key, testSeries("AIRTEL"), time.Minute)

	got := c.Get(key)
	require.NotNil(t, got)
	assert.Equal(t, "AIRTEL", got.Symbol)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCacheExpiry(t *testing.T) {
	c := New()
	defer c.Stop()

	key := IntradayKey("TNM")
	c.Set(key, testSeries("TNM"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	assert.Nil(t, c.Get(key))
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCacheExtendTTL(t *testing.T) {
	c := New()
	defer c.Stop()

	key := IntradayKey("NBM")
	c.Set(key, testSeries("NBM"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	// Expired but not evicted: extension revives the entry.
	require.True(t, c.ExtendTTL(key, time.Minute))
	require.NotNil(t, c.Get(key))

	assert.False(t, c.ExtendTTL("intraday:MISSING", time.Minute))
}

func TestCacheClearAll(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Set(IntradayKey("NICO"), testSeries("NICO"), time.Minute)
	c.Set(IntradayKey("FDHB"), testSeries("FDHB"), time.Minute)

	assert.Equal(t, 2, c.ClearAll())
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Nil(t, c.Get(IntradayKey("NICO")))
}

func TestHistoricalKeyCarriesDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	key := HistoricalKey("AIRTEL", marketdata.Range1Year, day)
	assert.Equal(t, "hist:AIRTEL:1year:2026-03-02", key)
}
