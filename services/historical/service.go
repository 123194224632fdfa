package historical

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mse_backend/config"
	"mse_backend/models"
	"mse_backend/services/marketdata"
	"mse_backend/services/pricecache"
)

// ErrNoData means neither the upstream source nor the durable store has
// anything for the requested symbol and range.
var ErrNoData = errors.New("no price data available")

// Service resolves historical price series through the cache tiers:
// volatile TTL cache first, then the durable store, then a live fetch.
// Concurrent requests for the same (symbol, range) are coalesced so the
// upstream sees at most one in-flight fetch per key.
type Service struct {
	db      *gorm.DB
	cache   *pricecache.Cache
	fetcher marketdata.Fetcher
	group   singleflight.Group

	// OnFetched, when set, receives every series that came back from a
	// live fetch. Used to feed the raw-series archive.
	OnFetched func(*marketdata.Series)
}

func NewService(db *gorm.DB, cache *pricecache.Cache, fetcher marketdata.Fetcher) *Service {
	return &Service{db: db, cache: cache, fetcher: fetcher}
}

// TTLFor maps a range to its volatile-cache lifetime. Short horizons move
// during the session; long horizons only change at end of day.
func TTLFor(rng marketdata.Range) time.Duration {
	switch rng {
	case marketdata.Range1Day:
		return config.AppConfig.IntradayTTL
	case marketdata.Range1Month, marketdata.Range3Months:
		return config.AppConfig.ShortRangeTTL
	default:
		return config.AppConfig.LongRangeTTL
	}
}

// Resolve returns the price series for a symbol over a range. Reads never
// block on a scrape when the durable store has a fresh copy; a live fetch
// happens only when both volatile and durable tiers miss.
func (s *Service) Resolve(ctx context.Context, symbol string, rng marketdata.Range) (*marketdata.Series, error) {
	key := pricecache.HistoricalKey(symbol, rng, time.Now())

	if cached := s.cache.Get(key); cached != nil {
		out := *cached
		out.Source = marketdata.SourceCache
		return &out, nil
	}

	// The durable tier is a terminal read path: stale rows still serve.
	// The background sweeps own freshness, not the request path. Durable
	// hits report "cache" provenance; the tier split is internal.
	rows, err := s.GetDurable(symbol, rng)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		series := seriesFromRows(symbol, rng, rows, marketdata.SourceCache)
		s.cache.Set(key, series, TTLFor(rng))
		return series, nil
	}

	series, fetchErr := s.fetchShared(ctx, symbol, rng, key)
	if fetchErr == nil {
		return series, nil
	}
	if marketdata.IsKind(fetchErr, marketdata.ErrNotFound) {
		return nil, fetchErr
	}
	return nil, fmt.Errorf("%w for %s %s: %v", ErrNoData, symbol, rng, fetchErr)
}

// ForceRefresh bypasses both cache tiers and fetches live, persisting the
// result. On upstream failure it degrades to whatever the durable store
// holds.
func (s *Service) ForceRefresh(ctx context.Context, symbol string, rng marketdata.Range) (*marketdata.Series, error) {
	key := pricecache.HistoricalKey(symbol, rng, time.Now())

	series, err := s.fetchShared(ctx, symbol, rng, key)
	if err == nil {
		return series, nil
	}

	rows, dbErr := s.GetDurable(symbol, rng)
	if dbErr == nil && len(rows) > 0 {
		log.Printf("Force refresh for %s %s fell back to durable store: %v", symbol, rng, err)
		return seriesFromRows(symbol, rng, rows, marketdata.SourceDegraded), nil
	}
	return nil, err
}

// fetchShared performs the coalesced live fetch and populates both tiers.
func (s *Service) fetchShared(ctx context.Context, symbol string, rng marketdata.Range, key string) (*marketdata.Series, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		series, err := s.fetcher.FetchHistorical(ctx, symbol, rng)
		if err != nil {
			return nil, err
		}
		if err := s.UpsertDurable(symbol, series.Points); err != nil {
			log.Printf("Failed to persist %s %s: %v", symbol, rng, err)
		}
		s.cache.Set(key, series, TTLFor(rng))
		if s.OnFetched != nil {
			s.OnFetched(series)
		}
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*marketdata.Series), nil
}

// GetDurable reads the stored daily rows for a symbol within the range
// window, oldest first.
func (s *Service) GetDurable(symbol string, rng marketdata.Range) ([]models.HistoricalPrice, error) {
	q := s.db.Where("symbol = ?", normalize(symbol))
	if start := rng.WindowStart(time.Now()); !start.IsZero() {
		q = q.Where("date >= ?", start)
	}
	var rows []models.HistoricalPrice
	if err := q.Order("date asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertDurable writes points into the durable store. Re-running the same
// day's sweep updates rows in place instead of duplicating them.
func (s *Service) UpsertDurable(symbol string, points []marketdata.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.HistoricalPrice, 0, len(points))
	for _, p := range points {
		rows = append(rows, models.HistoricalPrice{
			Symbol:      normalize(symbol),
			Date:        truncateDay(p.Date),
			Open:        p.Open,
			High:        p.High,
			Low:         p.Low,
			Close:       p.Close,
			Volume:      p.Volume,
			Turnover:    p.Turnover,
			LastUpdated: now,
		})
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "turnover", "last_updated",
		}),
	}).CreateInBatches(rows, 200).Error
}

// ClearDurable removes stored rows for one symbol, or every symbol when
// symbol is empty. Returns the number of rows deleted.
func (s *Service) ClearDurable(symbol string) (int64, error) {
	q := s.db.Model(&models.HistoricalPrice{})
	if symbol != "" {
		q = q.Where("symbol = ?", normalize(symbol))
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&models.HistoricalPrice{})
	return res.RowsAffected, res.Error
}

// RecordTick persists an intraday quote as a tick row.
func (s *Service) RecordTick(q *marketdata.Quote) error {
	tick := models.StockPrice{
		Symbol:           normalize(q.Symbol),
		Price:            q.Price,
		Change:           q.Change,
		Direction:        q.Direction,
		Date:             truncateDay(q.Timestamp),
		Time:             q.Timestamp.Format("15:04:05"),
		MarketStatus:     q.MarketStatus,
		MarketUpdateTime: q.MarketUpdateTime,
	}
	return s.db.Create(&tick).Error
}

// MarketSessions are the exchange's trading windows, echoed in intraday
// responses so consumers can bucket ticks.
var MarketSessions = []string{"09:00-11:00", "14:00-15:00"}

// IntradaySummary is one trading day reconstructed from recorded ticks.
type IntradaySummary struct {
	Symbol         string              `json:"symbol"`
	Date           string              `json:"date"`
	Open           decimal.Decimal     `json:"open"`
	High           decimal.Decimal     `json:"high"`
	Low            decimal.Decimal     `json:"low"`
	Close          decimal.Decimal     `json:"close"`
	TickCount      int                 `json:"data_points"`
	IsToday        bool                `json:"is_today"`
	MarketSessions []string            `json:"market_sessions"`
	Ticks          []models.StockPrice `json:"intraday_prices"`
}

// ResolveIntraday returns today's ticks for a symbol, reconstructing OHLC
// from the tick stream. When today has no ticks yet (pre-open, weekend),
// the most recent prior trading day is returned instead.
func (s *Service) ResolveIntraday(symbol string) (*IntradaySummary, error) {
	sym := normalize(symbol)
	today := truncateDay(time.Now())

	ticks, err := s.ticksOn(sym, today)
	if err != nil {
		return nil, err
	}
	day := today
	if len(ticks) == 0 {
		day, err = s.lastTickDay(sym, today)
		if err != nil {
			return nil, err
		}
		ticks, err = s.ticksOn(sym, day)
		if err != nil {
			return nil, err
		}
	}
	if len(ticks) == 0 {
		return nil, ErrNoData
	}

	summary := &IntradaySummary{
		Symbol:         sym,
		Date:           day.Format("2006-01-02"),
		Open:           ticks[0].Price,
		High:           ticks[0].Price,
		Low:            ticks[0].Price,
		Close:          ticks[len(ticks)-1].Price,
		TickCount:      len(ticks),
		IsToday:        day.Equal(today),
		MarketSessions: MarketSessions,
		Ticks:          ticks,
	}
	for _, t := range ticks {
		if t.Price.GreaterThan(summary.High) {
			summary.High = t.Price
		}
		if t.Price.LessThan(summary.Low) {
			summary.Low = t.Price
		}
	}
	return summary, nil
}

// LatestTick returns the most recent recorded tick for a symbol.
func (s *Service) LatestTick(symbol string) (*models.StockPrice, error) {
	var tick models.StockPrice
	err := s.db.Where("symbol = ?", normalize(symbol)).
		Order("date desc, id desc").
		First(&tick).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	return &tick, nil
}

// TickAt returns the last tick at or before the given moment.
func (s *Service) TickAt(symbol string, at time.Time) (*models.StockPrice, error) {
	day := truncateDay(at)
	var tick models.StockPrice
	err := s.db.Where("symbol = ? AND (date < ? OR (date = ? AND time <= ?))",
		normalize(symbol), day, day, at.Format("15:04:05")).
		Order("date desc, time desc, id desc").
		First(&tick).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	return &tick, nil
}

func (s *Service) ticksOn(symbol string, day time.Time) ([]models.StockPrice, error) {
	var ticks []models.StockPrice
	err := s.db.Where("symbol = ? AND date = ?", symbol, day).
		Order("time asc, id asc").
		Find(&ticks).Error
	return ticks, err
}

func (s *Service) lastTickDay(symbol string, before time.Time) (time.Time, error) {
	var tick models.StockPrice
	err := s.db.Where("symbol = ? AND date < ?", symbol, before).
		Order("date desc").
		First(&tick).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return tick.Date, nil
}

// SeriesFromDurable converts stored rows into a degraded-provenance
// series for cache warming.
func SeriesFromDurable(symbol string, rng marketdata.Range, rows []models.HistoricalPrice) *marketdata.Series {
	return seriesFromRows(symbol, rng, rows, marketdata.SourceDegraded)
}

func seriesFromRows(symbol string, rng marketdata.Range, rows []models.HistoricalPrice, source string) *marketdata.Series {
	points := make([]marketdata.PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, marketdata.PricePoint{
			Date:     r.Date,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Turnover: r.Turnover,
		})
	}
	return &marketdata.Series{
		Symbol:      normalize(symbol),
		TimeRange:   rng,
		Points:      points,
		RetrievedAt: time.Now(),
		Source:      source,
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
