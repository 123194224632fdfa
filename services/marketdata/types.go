package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Range identifies the historical horizon of a price request.
type Range string

const (
	Range1Day    Range = "1day"
	Range1Month  Range = "1month"
	Range3Months Range = "3months"
	Range6Months Range = "6months"
	Range1Year   Range = "1year"
	Range2Years  Range = "2years"
	Range5Years  Range = "5years"
)

var validRanges = map[Range]bool{
	Range1Day:    true,
	Range1Month:  true,
	Range3Months: true,
	Range6Months: true,
	Range1Year:   true,
	Range2Years:  true,
	Range5Years:  true,
}

// ParseRange validates a range query parameter
func ParseRange(s string) (Range, error) {
	r := Range(s)
	if !validRanges[r] {
		return "", fmt.Errorf("invalid range %q", s)
	}
	return r, nil
}

// ValidRanges returns the supported range identifiers
func ValidRanges() []Range {
	return []Range{
		Range1Day, Range1Month, Range3Months, Range6Months,
		Range1Year, Range2Years, Range5Years,
	}
}

// WindowStart returns the earliest date covered by the range, counting back
// from now. Range1Day has no historical window.
func (r Range) WindowStart(now time.Time) time.Time {
	switch r {
	case Range1Month:
		return now.AddDate(0, -1, 0)
	case Range3Months:
		return now.AddDate(0, -3, 0)
	case Range6Months:
		return now.AddDate(0, -6, 0)
	case Range1Year:
		return now.AddDate(-1, 0, 0)
	case Range2Years:
		return now.AddDate(-2, 0, 0)
	case Range5Years:
		return now.AddDate(-5, 0, 0)
	default:
		return now
	}
}

// LongHorizon reports whether the range covers a year or more. Older data
// changes rarely, so long-horizon series tolerate longer cache lifetimes.
func (r Range) LongHorizon() bool {
	switch r {
	case Range1Year, Range2Years, Range5Years:
		return true
	}
	return false
}

// Provenance tags on a served series. Durable-store hits report "cache";
// consumers only see whether data is fresh, cached or degraded.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceDegraded = "degraded"
)

// PricePoint is one daily OHLC entry. Date and Close are always present;
// the remaining fields may be zero when the upstream row omitted them.
type PricePoint struct {
	Date     time.Time       `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
	Turnover decimal.Decimal `json:"turnover"`
}

// Series is a date-ascending run of daily prices for one symbol and range.
type Series struct {
	Symbol      string       `json:"symbol"`
	TimeRange   Range        `json:"time_range"`
	Points      []PricePoint `json:"points"`
	RetrievedAt time.Time    `json:"retrieved_at"`
	Source      string       `json:"source"`
}

// Quote is a live intraday snapshot for one symbol.
type Quote struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change           decimal.Decimal `json:"change"`
	Direction        string          `json:"direction"`
	MarketStatus     string          `json:"market_status"`
	MarketUpdateTime string          `json:"market_update_time"`
	Timestamp        time.Time       `json:"timestamp"`
}
