package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"mse_backend/config"
	"mse_backend/services/historical"
	"mse_backend/services/marketdata"
	"mse_backend/services/pricecache"
)

// Outcome describes how a failed refresh was absorbed.
type Outcome string

const (
	// OutcomeRefreshed means the live fetch succeeded.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeWarmedFromDurable means the cache was rebuilt from the
	// durable store after a live failure.
	OutcomeWarmedFromDurable Outcome = "warmed_from_durable"
	// OutcomeExtendedTTL means the existing cache entry's life was
	// stretched because nothing better was available.
	OutcomeExtendedTTL Outcome = "extended_ttl"
	// OutcomeUnrecoverable means no tier could serve the symbol.
	OutcomeUnrecoverable Outcome = "unrecoverable"
	// OutcomeSkippedRestricted means the deployment cannot reach the
	// upstream and the live fetch was not attempted.
	OutcomeSkippedRestricted Outcome = "skipped_restricted"
)

// degradedTTLExtension is how much extra life an unrefreshable cache
// entry gets per failed cycle.
const degradedTTLExtension = 30 * time.Minute

// Collector owns the refresh-and-degrade policy for background data
// collection. The scheduler decides when to refresh; the collector
// decides what happens when a refresh cannot complete.
type Collector struct {
	historical *historical.Service
	cache      *pricecache.Cache
	fetcher    marketdata.Fetcher
	probe      marketdata.EnvironmentProbe

	// OnQuote, when set, receives every successfully fetched live quote.
	OnQuote func(*marketdata.Quote)

	mu             sync.Mutex
	failuresByKind map[marketdata.ErrorKind]int64
	consecutive    map[string]int
	refreshes      int64
	degradations   int64
	lastFailure    time.Time
	lastError      string
}

func New(hist *historical.Service, cache *pricecache.Cache, fetcher marketdata.Fetcher, probe marketdata.EnvironmentProbe) *Collector {
	return &Collector{
		historical:     hist,
		cache:          cache,
		fetcher:        fetcher,
		probe:          probe,
		failuresByKind: make(map[marketdata.ErrorKind]int64),
		consecutive:    make(map[string]int),
	}
}

// RefreshHistorical refreshes one (symbol, range) pair, degrading through
// the fallback chain on failure. The returned error is non-nil only for
// the unrecoverable outcome.
func (c *Collector) RefreshHistorical(ctx context.Context, symbol string, rng marketdata.Range) (Outcome, error) {
	if c.probe.Restricted() {
		return c.degrade(symbol, rng, nil), nil
	}

	_, err := c.historical.ForceRefresh(ctx, symbol, rng)
	if err == nil {
		c.recordSuccess(symbol)
		return OutcomeRefreshed, nil
	}
	outcome := c.HandleFailure(symbol, rng, err)
	if outcome == OutcomeUnrecoverable {
		return outcome, err
	}
	return outcome, nil
}

// RefreshIntraday fetches the live quote for a symbol, records the tick
// and notifies subscribers. Intraday has no durable fallback: a failed
// quote just extends the old cache entry.
func (c *Collector) RefreshIntraday(ctx context.Context, symbol string) (Outcome, error) {
	key := pricecache.IntradayKey(symbol)

	if c.probe.Restricted() {
		if c.cache.ExtendTTL(key, degradedTTLExtension) {
			return OutcomeExtendedTTL, nil
		}
		return OutcomeSkippedRestricted, nil
	}

	quote, err := c.fetcher.FetchIntraday(ctx, symbol)
	if err != nil {
		c.recordFailure(symbol, err)
		if c.cache.ExtendTTL(key, degradedTTLExtension) {
			log.Printf("Intraday fetch failed for %s, extended cache TTL: %v", symbol, err)
			return OutcomeExtendedTTL, nil
		}
		return OutcomeUnrecoverable, err
	}

	c.recordSuccess(symbol)
	c.cache.Set(key, quoteSeries(quote), config.AppConfig.IntradayTTL)
	if err := c.historical.RecordTick(quote); err != nil {
		log.Printf("Failed to record tick for %s: %v", symbol, err)
	}
	if c.OnQuote != nil {
		c.OnQuote(quote)
	}
	return OutcomeRefreshed, nil
}

// quoteSeries wraps a live quote as a single-point series so the
// intraday cache entry exists for later TTL extension.
func quoteSeries(q *marketdata.Quote) *marketdata.Series {
	return &marketdata.Series{
		Symbol:    q.Symbol,
		TimeRange: marketdata.Range1Day,
		Points: []marketdata.PricePoint{{
			Date:  q.Timestamp,
			Close: q.Price,
		}},
		RetrievedAt: q.Timestamp,
		Source:      marketdata.SourceLive,
	}
}

// HandleFailure runs the fallback chain for a failed historical refresh:
// warm the cache from the durable store, else stretch the existing cache
// entry, else report the symbol unrecoverable.
func (c *Collector) HandleFailure(symbol string, rng marketdata.Range, err error) Outcome {
	c.recordFailure(symbol, err)
	return c.degrade(symbol, rng, err)
}

func (c *Collector) degrade(symbol string, rng marketdata.Range, cause error) Outcome {
	key := pricecache.HistoricalKey(symbol, rng, time.Now())

	rows, dbErr := c.historical.GetDurable(symbol, rng)
	if dbErr == nil && len(rows) > 0 {
		series := historical.SeriesFromDurable(symbol, rng, rows)
		c.cache.Set(key, series, historical.TTLFor(rng))
		c.mu.Lock()
		c.degradations++
		c.mu.Unlock()
		if cause != nil {
			log.Printf("Warmed %s %s from durable store after failure: %v", symbol, rng, cause)
		}
		return OutcomeWarmedFromDurable
	}

	if c.cache.ExtendTTL(key, degradedTTLExtension) {
		c.mu.Lock()
		c.degradations++
		c.mu.Unlock()
		return OutcomeExtendedTTL
	}

	if cause == nil {
		return OutcomeSkippedRestricted
	}
	return OutcomeUnrecoverable
}

func (c *Collector) recordSuccess(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	c.consecutive[symbol] = 0
}

func (c *Collector) recordFailure(symbol string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failuresByKind[marketdata.KindOf(err)]++
	c.consecutive[symbol]++
	c.lastFailure = time.Now()
	c.lastError = err.Error()
}

// Health is a point-in-time view of collector state for the operator
// status endpoint.
type Health struct {
	Restricted      bool                           `json:"restricted_environment"`
	Refreshes       int64                          `json:"successful_refreshes"`
	Degradations    int64                          `json:"degraded_cycles"`
	FailuresByKind  map[marketdata.ErrorKind]int64 `json:"failures_by_kind"`
	StrugglingCount int                            `json:"struggling_symbols"`
	Struggling      []string                       `json:"struggling,omitempty"`
	LastFailure     *time.Time                     `json:"last_failure,omitempty"`
	LastError       string                         `json:"last_error,omitempty"`
}

// strugglingThreshold is the consecutive-failure count past which a
// symbol is reported in health output.
const strugglingThreshold = 3

func (c *Collector) Snapshot() Health {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := Health{
		Restricted:     c.probe.Restricted(),
		Refreshes:      c.refreshes,
		Degradations:   c.degradations,
		FailuresByKind: make(map[marketdata.ErrorKind]int64, len(c.failuresByKind)),
		LastError:      c.lastError,
	}
	for kind, n := range c.failuresByKind {
		h.FailuresByKind[kind] = n
	}
	for symbol, n := range c.consecutive {
		if n >= strugglingThreshold {
			h.Struggling = append(h.Struggling, symbol)
		}
	}
	h.StrugglingCount = len(h.Struggling)
	if !c.lastFailure.IsZero() {
		t := c.lastFailure
		h.LastFailure = &t
	}
	return h
}

// WarmAll rebuilds the volatile cache for every configured symbol from
// the durable store, without touching the upstream. Used at startup and
// by the hourly warm job.
func (c *Collector) WarmAll(ranges []marketdata.Range) int {
	warmed := 0
	for _, symbol := range config.AppConfig.AllSymbols {
		for _, rng := range ranges {
			rows, err := c.historical.GetDurable(symbol, rng)
			if err != nil || len(rows) == 0 {
				continue
			}
			key := pricecache.HistoricalKey(symbol, rng, time.Now())
			c.cache.Set(key, historical.SeriesFromDurable(symbol, rng, rows), historical.TTLFor(rng))
			warmed++
		}
	}
	return warmed
}
