package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/server"
)

type testEnv struct {
	cfg      *config.Config
	bus      *events.EventBus
	sessions *server.Manager
	api      *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.RateLimitRPS = 0

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	sessions := server.NewManager(cfg, bus)
	ln := network.NewTCPListener(cfg, bus, sessions)

	return &testEnv{
		cfg:      cfg,
		bus:      bus,
		sessions: sessions,
		api:      NewServer(cfg, bus, sessions, ln),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

// startIdleSession starts a session whose players never speak.
func (e *testEnv) startIdleSession(t *testing.T) string {
	t.Helper()
	serverA, clientA := net.Pipe()
	serverB, clientB := net.Pipe()
	t.Cleanup(func() {
		clientA.Close()
		clientB.Close()
	})

	e.sessions.StartSession(context.Background(), network.NewConnection(serverA), network.NewConnection(serverB))
	all := e.sessions.GetAllInfo()
	require.Len(t, all, 1)
	return all[0].ID
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/public/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, config.AppName, body["service"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, config.AppName+"/"+config.AppVersion, rec.Header().Get("Server"))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/public/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.AppVersion, body["version"])
	assert.Equal(t, "127.0.0.1:4444", body["listen"])
}

func TestStatsAndSessions(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["active"])
	assert.EqualValues(t, 0, body["waiting"])

	id := env.startIdleSession(t)

	_, body = env.do(t, http.MethodGet, "/api/stats", nil)
	assert.EqualValues(t, 1, body["active"])
	assert.EqualValues(t, 1, body["started"])

	_, body = env.do(t, http.MethodGet, "/api/sessions", nil)
	assert.EqualValues(t, 1, body["total"])

	rec, body = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "awaiting_start", body["state"])

	rec, _ = env.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbortSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.startIdleSession(t)

	rec, body := env.do(t, http.MethodPost, "/api/control/sessions/"+id+"/abort", abortRequest{Reason: "test"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aborted", body["status"])

	require.True(t, env.sessions.Wait(5*time.Second))
	assert.Equal(t, uint64(1), env.sessions.Stats().Aborted)

	rec, _ = env.do(t, http.MethodPost, "/api/control/sessions/"+id+"/abort", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetServerField(t *testing.T) {
	env := newTestEnv(t)

	changed := make(chan events.ConfigChangedPayload, 1)
	env.bus.Subscribe(events.EventConfigChanged, "test", func(ctx context.Context, e events.Event) error {
		changed <- e.Payload.(events.ConfigChangedPayload)
		return nil
	})

	rec, _ := env.do(t, http.MethodPost, "/api/configure/server", setFieldRequest{Key: "enforce_dealt_cards", Value: false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.cfg.GetServer().EnforceDealtCards)

	select {
	case p := <-changed:
		assert.Equal(t, "enforce_dealt_cards", p.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("config change not emitted")
	}

	rec, _ = env.do(t, http.MethodPost, "/api/configure/server", setFieldRequest{Key: "bogus", Value: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/configure/server", setFieldRequest{Key: "port", Value: 70000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, config.DefaultPort, env.cfg.GetServer().Port, "invalid change is rolled back")
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", body["error"])
}

func TestSystemInfo(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/system", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "system")
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.api.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?types=session_started"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.bus.HandlerCount(events.EventSessionStarted) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, env.bus.HandlerCount(events.EventRoundPlayed))

	env.bus.Emit(context.Background(), events.Event{
		Type:    events.EventSessionStarted,
		Source:  "test",
		Payload: events.SessionPayload{SessionID: "abc"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "session_started", got.Type)
	assert.Equal(t, "abc", got.Payload["session_id"])

	conn.Close()
	require.Eventually(t, func() bool {
		return env.bus.HandlerCount(events.EventSessionStarted) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	assert.True(t, rl.allow("1.2.3.4", now))
	assert.True(t, rl.allow("1.2.3.4", now))
	assert.False(t, rl.allow("1.2.3.4", now), "burst is twice the rate")
	assert.True(t, rl.allow("5.6.7.8", now), "buckets are per client")
	assert.True(t, rl.allow("1.2.3.4", now.Add(time.Second)))
}

func TestRateLimiterForgetsQuietClients(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	rl.allow("1.2.3.4", now)
	rl.allow("5.6.7.8", now)
	assert.Equal(t, 2, rl.tracked())

	// Only the second client keeps talking.
	later := now.Add(bucketTTL - time.Second)
	rl.allow("5.6.7.8", later)

	rl.allow("9.9.9.9", now.Add(bucketTTL))
	assert.Equal(t, 2, rl.tracked(), "the quiet client's bucket is dropped")

	// A returning client starts with a full burst.
	assert.True(t, rl.allow("1.2.3.4", now.Add(bucketTTL)))
	assert.True(t, rl.allow("1.2.3.4", now.Add(bucketTTL)))
}

func pingURL(addr net.Addr) string {
	return fmt.Sprintf("http://127.0.0.1:%d/api/public/ping", addr.(*net.TCPAddr).Port)
}

func TestServerStartsAgainAfterStopping(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.API.Port = 0

	serve := func(ctx context.Context) <-chan error {
		done := make(chan error, 1)
		go func() { done <- env.api.Start(ctx) }()
		return done
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := serve(ctx)
	select {
	case <-env.api.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("api never bound")
	}
	first := env.api.Addr()
	resp, err := http.Get(pingURL(first))
	require.NoError(t, err)
	resp.Body.Close()
	cancel()
	require.NoError(t, <-done)

	// A second run must not trip over the already-closed ready channel.
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	done = serve(ctx)
	require.Eventually(t, func() bool {
		resp, err := http.Get(pingURL(env.api.Addr()))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
