package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mse_backend/config"
	"mse_backend/models"
	"mse_backend/services/collector"
	"mse_backend/services/historical"
	"mse_backend/services/marketdata"
	"mse_backend/services/pricecache"
)

type stubFetcher struct{}

func (stubFetcher) FetchHistorical(ctx context.Context, symbol string, rng marketdata.Range) (*marketdata.Series, error) {
	price := decimal.NewFromInt(100)
	return &marketdata.Series{
		Symbol:    symbol,
		TimeRange: rng,
		Points: []marketdata.PricePoint{{
			Date: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
			Open: price, High: price, Low: price, Close: price,
		}},
		RetrievedAt: time.Now(),
		Source:      marketdata.SourceLive,
	}, nil
}

func (stubFetcher) FetchIntraday(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	return &marketdata.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromInt(100),
		Timestamp: time.Now(),
	}, nil
}

var schedDBSeq int

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	config.AppConfig = &config.Config{
		AllSymbols:        []string{"AIRTEL", "TNM", "NBM"},
		PrioritySymbols:   []string{"AIRTEL"},
		FetchWorkers:      2,
		DispatchStagger:   time.Millisecond,
		FetchTimeout:      5 * time.Second,
		PriorityCadence:   15 * time.Minute,
		StandardCadence:   30 * time.Minute,
		OffSessionCadence: time.Hour,
		HistoricalCadence: 20 * time.Hour,
		IntradayTTL:       15 * time.Minute,
		ShortRangeTTL:     time.Hour,
		LongRangeTTL:      72 * time.Hour,
	}

	schedDBSeq++
	dsn := fmt.Sprintf("file:sched_test_%d?mode=memory&cache=shared", schedDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateStockModels(db))

	cache := pricecache.New()
	t.Cleanup(cache.Stop)

	fetcher := stubFetcher{}
	hist := historical.NewService(db, cache, fetcher)
	col := collector.New(hist, cache, fetcher, marketdata.StaticProbe(false))

	s := NewScheduler(db, col)
	t.Cleanup(s.Stop)
	return s
}

func TestJobTableCoversAllSymbols(t *testing.T) {
	s := newTestScheduler(t)

	// One intraday job plus one historical job per sweep range.
	expected := 3 * (1 + len(historicalSweepRanges))
	assert.Len(t, s.jobs, expected)

	intraday := s.jobs["intraday:AIRTEL"]
	require.NotNil(t, intraday)
	assert.True(t, intraday.Priority)

	standard := s.jobs["intraday:TNM"]
	require.NotNil(t, standard)
	assert.False(t, standard.Priority)
}

func TestCadencePolicy(t *testing.T) {
	s := newTestScheduler(t)

	priority := &RefreshJob{Kind: JobIntraday, Symbol: "AIRTEL", Priority: true}
	standard := &RefreshJob{Kind: JobIntraday, Symbol: "TNM"}
	hist := &RefreshJob{Kind: JobHistorical, Symbol: "TNM", Range: marketdata.Range1Year}

	assert.Equal(t, 15*time.Minute, s.cadenceFor(priority, PhaseOpen))
	assert.Equal(t, 30*time.Minute, s.cadenceFor(standard, PhaseOpen))
	assert.Equal(t, time.Hour, s.cadenceFor(priority, PhasePreOpen))
	assert.Equal(t, time.Duration(0), s.cadenceFor(standard, PhaseClosed))
	assert.Equal(t, 20*time.Hour, s.cadenceFor(hist, PhaseOpen))
	assert.Equal(t, 20*time.Hour, s.cadenceFor(hist, PhasePostClose))
	assert.Equal(t, time.Duration(0), s.cadenceFor(hist, PhaseClosed))
}

func TestDispatchIsQuietOnWeekends(t *testing.T) {
	s := newTestScheduler(t)

	// Saturday noon, exchange time. Every job is long overdue but none
	// may launch while the market is closed.
	saturday := time.Date(2026, 9, 5, 12, 0, 0, 0, marketLocation)
	s.dispatchDue(saturday)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, job := range s.jobs {
		assert.False(t, job.Fetching, "job %s dispatched on a weekend", key)
	}
}

func TestDispatchSkipsFetchingJobs(t *testing.T) {
	s := newTestScheduler(t)

	s.mu.Lock()
	for _, job := range s.jobs {
		job.Fetching = true
	}
	s.mu.Unlock()

	assert.Zero(t, s.TriggerSymbol("AIRTEL"))
	assert.Zero(t, s.TriggerHistoricalSweep())
}

func TestTriggerSymbolRunsAllJobsForSymbol(t *testing.T) {
	s := newTestScheduler(t)

	launched := s.TriggerSymbol("AIRTEL")
	assert.Equal(t, 1+len(historicalSweepRanges), launched)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, job := range s.jobs {
			if job.Symbol == "AIRTEL" && (job.Fetching || job.LastOutcome == "") {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, collector.OutcomeRefreshed, s.jobs["intraday:AIRTEL"].LastOutcome)
}

func TestTriggerUnknownSymbol(t *testing.T) {
	s := newTestScheduler(t)
	assert.Zero(t, s.TriggerSymbol("GHOST"))
}

func TestStatusSnapshot(t *testing.T) {
	s := newTestScheduler(t)

	status := s.Status()
	assert.Equal(t, len(s.jobs), status["job_count"])
	assert.Equal(t, 0, status["fetching"])
	assert.NotEmpty(t, status["phase"])
}

func TestCleanupOldDataPrunesTicks(t *testing.T) {
	s := newTestScheduler(t)

	old := models.StockPrice{Symbol: "AIRTEL", Price: decimal.NewFromInt(90), Date: time.Now().AddDate(0, 0, -120)}
	fresh := models.StockPrice{Symbol: "AIRTEL", Price: decimal.NewFromInt(100), Date: time.Now()}
	require.NoError(t, s.db.Create(&old).Error)
	require.NoError(t, s.db.Create(&fresh).Error)

	s.cleanupOldData()

	var count int64
	require.NoError(t, s.db.Model(&models.StockPrice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
