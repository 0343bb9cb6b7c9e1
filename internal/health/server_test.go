package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradelab/internal/backtest"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(context.Context) error { return f.err }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(Config{ServiceName: "tradelab", Version: "test", Logger: quietLogger()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "tradelab", body.Service)
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		db     DatabasePinger
		status int
	}{
		{"not marked ready", false, nil, http.StatusServiceUnavailable},
		{"ready without db", true, nil, http.StatusOK},
		{"ready with healthy db", true, fakeDB{}, http.StatusOK},
		{"db down", true, fakeDB{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{ServiceName: "tradelab", Logger: quietLogger(), DB: tt.db})
			s.SetReady(tt.ready)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(Config{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsDisabledWithoutHub(t *testing.T) {
	s := NewServer(Config{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub(8, quietLogger())
	s := NewServer(Config{Logger: quietLogger(), Hub: hub})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnEvent(backtest.Event{Type: backtest.EventRunStarted, RunID: "run-1", Total: 10})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got backtest.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, backtest.EventRunStarted, got.Type)
	assert.Equal(t, "run-1", got.RunID)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(2, quietLogger())
	stuck := &client{send: make(chan []byte, 2)}
	hub.clients[stuck] = struct{}{}

	for i := 0; i < 5; i++ {
		hub.OnEvent(backtest.Event{Type: backtest.EventRunProgress, Step: i})
	}
	assert.Equal(t, uint64(3), hub.Dropped())
	assert.Len(t, stuck.send, 2)
}

func TestServerStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewServer(Config{Address: "127.0.0.1:0", Logger: quietLogger()})
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.Addr() + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, s.Shutdown())
}
