package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(srv.URL, 2*time.Second, NewStaticCredentialStore("sessionid=abc"))
	return client, srv
}

func TestFetchHistoricalParsesAndSortsSeries(t *testing.T) {
	var gotCookie string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "application/json")
		// Newest first, as the upstream sends it.
		w.Write([]byte(`{"data":[
			{"date":"2026-08-28","open":104,"high":106,"low":103,"close":105,"volume":4000,"turnover":420000},
			{"date":"2026-08-27","open":100,"high":102,"low":99,"close":101,"volume":3000,"turnover":303000}
		]}`))
	}))
	defer srv.Close()

	series, err := client.FetchHistorical(context.Background(), "airtel", Range1Month)
	require.NoError(t, err)

	assert.Equal(t, "AIRTEL", series.Symbol)
	assert.Equal(t, SourceLive, series.Source)
	assert.Equal(t, "sessionid=abc", gotCookie)
	require.Len(t, series.Points, 2)
	assert.True(t, series.Points[0].Date.Before(series.Points[1].Date))
	assert.Equal(t, int64(3000), series.Points[0].Volume)
}

func TestFetchHistoricalDropsDuplicateDates(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"date":"2026-08-28","open":104,"high":106,"low":103,"close":105,"volume":4000,"turnover":420000},
			{"date":"2026-08-28","open":104,"high":106,"low":103,"close":106,"volume":4100,"turnover":430000},
			{"date":"2026-08-27","open":100,"high":102,"low":99,"close":101,"volume":3000,"turnover":303000}
		]}`))
	}))
	defer srv.Close()

	series, err := client.FetchHistorical(context.Background(), "NBM", Range1Month)
	require.NoError(t, err)
	require.Len(t, series.Points, 2)
	assert.Equal(t, "105", series.Points[1].Close.String())
}

func TestFetchHistoricalStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, ErrUnauthenticated},
		{http.StatusForbidden, ErrUnauthenticated},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadGateway, ErrParseFailure},
	}
	for _, tc := range cases {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		_, err := client.FetchHistorical(context.Background(), "TNM", Range1Month)
		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.kind, KindOf(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestFetchHistoricalMalformedPayload(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>login page</html>`))
	}))
	defer srv.Close()

	_, err := client.FetchHistorical(context.Background(), "NBM", Range1Month)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrParseFailure))
}

func TestFetchHistoricalEmptyTable(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := client.FetchHistorical(context.Background(), "NBM", Range1Month)
	assert.True(t, IsKind(err, ErrParseFailure))
}

func TestFetchHistoricalTimeout(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchHistorical(ctx, "NICO", Range1Month)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrTimeout))
}

func TestFetchHistoricalConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, time.Second, NewStaticCredentialStore(""))
	_, err := client.FetchHistorical(context.Background(), "FDHB", Range1Month)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrNetworkUnreachable))
}

func TestFetchIntraday(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AIRTEL","price":125.50,"change":1.25,"direction":"up","market_status":"open","market_update_time":"10:30"}`))
	}))
	defer srv.Close()

	quote, err := client.FetchIntraday(context.Background(), "airtel")
	require.NoError(t, err)
	assert.Equal(t, "AIRTEL", quote.Symbol)
	assert.Equal(t, "up", quote.Direction)
	assert.Equal(t, "125.5", quote.Price.String())
}

func TestFetchIntradayMissingPrice(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AIRTEL"}`))
	}))
	defer srv.Close()

	_, err := client.FetchIntraday(context.Background(), "AIRTEL")
	assert.True(t, IsKind(err, ErrParseFailure))
}
