package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fetcher is the upstream source capability: one call per (symbol, range),
// no internal retries. Callers own the retry and fallback policy.
type Fetcher interface {
	FetchHistorical(ctx context.Context, symbol string, rng Range) (*Series, error)
	FetchIntraday(ctx context.Context, symbol string) (*Quote, error)
}

// Client fetches price data from the MSE market-data endpoints using a
// cookie-authenticated session.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialStore
}

// NewClient creates a client for the given base URL
func NewClient(baseURL string, timeout time.Duration, credentials CredentialStore) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		credentials: credentials,
	}
}

type historicalPayload struct {
	Data []struct {
		Date     string  `json:"date"`
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		Volume   int64   `json:"volume"`
		Turnover float64 `json:"turnover"`
	} `json:"data"`
}

type quotePayload struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	Change           float64 `json:"change"`
	Direction        string  `json:"direction"`
	MarketStatus     string  `json:"market_status"`
	MarketUpdateTime string  `json:"market_update_time"`
}

// FetchHistorical retrieves the daily price history for a symbol over the
// given range.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, rng Range) (*Series, error) {
	u := fmt.Sprintf("%s/api/historical/%s?range=%s", c.baseURL, url.PathEscape(symbol), rng)

	body, err := c.get(ctx, symbol, u)
	if err != nil {
		return nil, err
	}

	var payload historicalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewFetchError(ErrParseFailure, symbol, err)
	}
	if len(payload.Data) == 0 {
		return nil, NewFetchError(ErrParseFailure, symbol, errors.New("empty price table"))
	}

	series := &Series{
		Symbol:      strings.ToUpper(symbol),
		TimeRange:   rng,
		Points:      make([]PricePoint, 0, len(payload.Data)),
		RetrievedAt: time.Now(),
		Source:      SourceLive,
	}
	for _, row := range payload.Data {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, NewFetchError(ErrParseFailure, symbol, fmt.Errorf("bad date %q: %w", row.Date, err))
		}
		series.Points = append(series.Points, PricePoint{
			Date:     date,
			Open:     decimal.NewFromFloat(row.Open),
			High:     decimal.NewFromFloat(row.High),
			Low:      decimal.NewFromFloat(row.Low),
			Close:    decimal.NewFromFloat(row.Close),
			Volume:   row.Volume,
			Turnover: decimal.NewFromFloat(row.Turnover),
		})
	}
	series.Points = sortPoints(series.Points)
	return series, nil
}

// FetchIntraday retrieves the live quote for a symbol
func (c *Client) FetchIntraday(ctx context.Context, symbol string) (*Quote, error) {
	u := fmt.Sprintf("%s/api/live/%s", c.baseURL, url.PathEscape(symbol))

	body, err := c.get(ctx, symbol, u)
	if err != nil {
		return nil, err
	}

	var payload quotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewFetchError(ErrParseFailure, symbol, err)
	}
	if payload.Price == 0 {
		return nil, NewFetchError(ErrParseFailure, symbol, errors.New("quote missing price"))
	}

	return &Quote{
		Symbol:           strings.ToUpper(symbol),
		Price:            decimal.NewFromFloat(payload.Price),
		Change:           decimal.NewFromFloat(payload.Change),
		Direction:        payload.Direction,
		MarketStatus:     payload.MarketStatus,
		MarketUpdateTime: payload.MarketUpdateTime,
		Timestamp:        time.Now(),
	}, nil
}

func (c *Client) get(ctx context.Context, symbol, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, NewFetchError(ErrParseFailure, symbol, err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	cookie, err := c.credentials.Get()
	if err != nil {
		return nil, NewFetchError(ErrUnauthenticated, symbol, err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewFetchError(ErrUnauthenticated, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewFetchError(ErrNotFound, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, NewFetchError(ErrParseFailure, symbol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(symbol, err)
	}
	return body, nil
}

func classifyTransportError(symbol string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFetchError(ErrTimeout, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewFetchError(ErrTimeout, symbol, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewFetchError(ErrNetworkUnreachable, symbol, err)
	}
	return NewFetchError(ErrNetworkUnreachable, symbol, err)
}

// sortPoints orders a series by ascending date and drops duplicate
// dates, keeping the first occurrence. Upstream sends newest first and
// occasionally repeats a trading day; the series invariant is strictly
// increasing dates.
func sortPoints(points []PricePoint) []PricePoint {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Date.Equal(p.Date) {
			continue
		}
		out = append(out, p)
	}
	return out
}
