package monitor

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocatch/internal/bus"
	"autocatch/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *bus.EventBus, *httptest.Server) {
	t.Helper()
	eb := bus.NewEventBus(testLogger())
	c := metrics.NewMetricsCollector()
	metrics.Subscribe(c, eb)

	s := New(Config{
		Events:    eb,
		Collector: c,
		Pending:   func() int { return 3 },
		Version:   "test",
		Logger:    testLogger(),
	})
	handler, detach := s.Handler()
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		detach()
	})
	return s, eb, srv
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 3, body["pending_sends"])
}

func TestHealthz_CORS(t *testing.T) {
	_, _, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, eb, srv := newTestServer(t)
	eb.Emit(bus.Event{Type: bus.EventSendSucceeded})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `autocatch_sends_total{result="ok"} 1`)
}

func TestWebSocketFeed(t *testing.T) {
	s, eb, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	eb.Emit(bus.Event{
		Type:    bus.EventSendScheduled,
		Source:  "dispatch",
		Payload: map[string]any{"category": "Rare", "delay_ms": int64(3500)},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, bus.EventSendScheduled, msg.Type)
	assert.Equal(t, "dispatch", msg.Source)
	assert.Equal(t, "Rare", msg.Payload["category"])

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
