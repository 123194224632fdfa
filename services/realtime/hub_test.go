package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mse_backend/services/marketdata"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, srv
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsQuotes(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	conn, srv := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Publish(&marketdata.Quote{
		Symbol:    "AIRTEL",
		Price:     decimal.NewFromInt(125),
		Timestamp: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "price_update", msg.Type)
	assert.Contains(t, string(data), "AIRTEL")
}

func TestHubSubscriptionFilter(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	conn, srv := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":  "subscribe",
		"symbols": []string{"TNM"},
	}))

	// Give the read pump a moment to apply the subscription.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(&marketdata.Quote{Symbol: "AIRTEL", Price: decimal.NewFromInt(1), Timestamp: time.Now()})
	hub.Publish(&marketdata.Quote{Symbol: "TNM", Price: decimal.NewFromInt(2), Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "TNM")
	assert.NotContains(t, string(data), "AIRTEL")
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	conn, srv := dialHub(t, hub)
	defer srv.Close()

	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubShutdownReleasesConnectedClients(t *testing.T) {
	hub := NewHub()

	conn, srv := dialHub(t, hub)
	defer srv.Close()
	defer conn.Close()

	waitForClients(t, hub, 1)
	hub.Shutdown()

	// The read pump must unwind even though the hub loop is gone.
	done := make(chan struct{})
	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("client connection not closed after shutdown")
	}
	assert.Zero(t, hub.ClientCount())
}
