package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/monitor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
	"github.com/voltpower/volt/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var balanced = plan.MustParseID("381b4222-f694-41f0-9685-ff5bb260df2e")

type fakeMonitor struct {
	mu       sync.Mutex
	state    power.State
	subs     []func(monitor.Event)
	commands []monitor.Command
	err      error
}

func (f *fakeMonitor) State() power.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMonitor) Subscribe(fn func(monitor.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *fakeMonitor) Dispatch(_ context.Context, cmd monitor.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.err
}

func (f *fakeMonitor) Commands() []monitor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]monitor.Command(nil), f.commands...)
}

func (f *fakeMonitor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMonitor) emit(ev monitor.Event) {
	f.mu.Lock()
	subs := append([]func(monitor.Event){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

type fakePrefs prefs.Map

func (p fakePrefs) Snapshot() prefs.Map { return prefs.Map(p) }

func newTestServer(t *testing.T) (*fakeMonitor, *Server, *httptest.Server) {
	t.Helper()
	mon := &fakeMonitor{state: power.AC}
	id := balanced
	srv := NewServer(Config{
		Monitor: mon,
		Prefs:   fakePrefs{power.AC: &id, power.Battery: nil},
		Version: "1.2.3",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.closeAll()
		ts.Close()
	})
	return mon, srv, ts
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"state": "plugged_in",
		"label": "Plugged In",
		"version": "1.2.3",
		"preferences": {
			"plugged_in": "381b4222-f694-41f0-9685-ff5bb260df2e",
			"on_battery": null
		}
	}`, string(raw))
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "volt_power_state")
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSetPreference(t *testing.T) {
	mon, _, ts := newTestServer(t)

	resp := put(t, ts.URL+"/preferences/battery", `{"plan":"381b4222-f694-41f0-9685-ff5bb260df2e"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, mon.Commands(), 1)
	assert.Equal(t, monitor.SetPreference{State: power.Battery, Plan: balanced}, mon.Commands()[0])

	assert.Equal(t, http.StatusBadRequest, put(t, ts.URL+"/preferences/solar", `{"plan":"381b4222-f694-41f0-9685-ff5bb260df2e"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, put(t, ts.URL+"/preferences/ac", `{"plan":"{381b4222-f694-41f0-9685-ff5bb260df2e}"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, put(t, ts.URL+"/preferences/ac", `not json`).StatusCode)
	assert.Len(t, mon.Commands(), 1)
}

func TestActivateErrors(t *testing.T) {
	mon, _, ts := newTestServer(t)
	body := `{"plan":"381b4222-f694-41f0-9685-ff5bb260df2e"}`

	resp, err := http.Post(ts.URL+"/activate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, monitor.ActivateNow{Plan: balanced}, mon.Commands()[0])

	mon.setErr(&plan.CommandError{Command: "powercfg", Args: []string{"/S"}, ExitCode: 1})
	resp, err = http.Post(ts.URL+"/activate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var payload protocol.ErrorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, payload.Error, "powercfg")

	mon.setErr(monitor.ErrStopped)
	resp, err = http.Post(ts.URL+"/activate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCommandsRefuseCrossSiteRequests(t *testing.T) {
	mon, _, ts := newTestServer(t)
	body := `{"plan":"381b4222-f694-41f0-9685-ff5bb260df2e"}`

	send := func(method, path, contentType, origin string) int {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// A form-style post from any page must not reach the monitor.
	assert.Equal(t, http.StatusUnsupportedMediaType, send(http.MethodPost, "/activate", "text/plain", ""))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/activate", "text/plain", "https://evil.example"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/activate", "application/json", "https://evil.example"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPut, "/preferences/ac", "application/json", "http://evil.example"))
	assert.Empty(t, mon.Commands())

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/activate", "application/json; charset=utf-8", "http://127.0.0.1:7419"))
	assert.Equal(t, http.StatusOK, send(http.MethodPut, "/preferences/ac", "application/json", "http://localhost:7419"))
	assert.Len(t, mon.Commands(), 2)
}

func TestIsLoopbackOrigin(t *testing.T) {
	for origin, want := range map[string]bool{
		"http://127.0.0.1:7419": true,
		"http://localhost":      true,
		"http://[::1]:7419":     true,
		"https://evil.example":  false,
		"http://10.0.0.5":       false,
		"null":                  false,
	} {
		assert.Equal(t, want, isLoopbackOrigin(origin), origin)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f protocol.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestFeed(t *testing.T) {
	mon, srv, ts := newTestServer(t)
	conn := dial(t, ts)

	hello := readFrame(t, conn)
	require.Equal(t, protocol.TypeHello, hello.Type)
	require.NotNil(t, hello.Status)
	assert.Equal(t, "plugged_in", hello.Status.State)

	require.Eventually(t, func() bool { return srv.hub.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	id := balanced
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	mon.emit(monitor.Event{Kind: monitor.EventState, Previous: power.AC, Current: power.Battery, Changed: true, At: at})
	mon.emit(monitor.Event{Kind: monitor.EventActivationFailed, Current: power.Battery, Origin: monitor.OriginTransition, Plan: &id, Err: errors.New("exit status 1"), At: at})

	f := readFrame(t, conn)
	require.Equal(t, protocol.TypeEvent, f.Type)
	assert.Equal(t, protocol.Event{Kind: "state", Previous: "plugged_in", Current: "on_battery", Changed: true, At: at}, *f.Event)

	f = readFrame(t, conn)
	assert.Equal(t, protocol.Event{
		Kind:    "activation_failed",
		Current: "on_battery",
		Origin:  "transition",
		Plan:    balanced.String(),
		Error:   "exit status 1",
		At:      at,
	}, *f.Event)

	require.NoError(t, conn.WriteJSON(protocol.Frame{Type: protocol.TypePing}))
	assert.Equal(t, protocol.TypePong, readFrame(t, conn).Type)
}

func TestFeedClientDisconnect(t *testing.T) {
	_, srv, ts := newTestServer(t)
	conn := dial(t, ts)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return srv.hub.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.hub.count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := newHub(zap.NewNop())
	slow := &feedClient{send: make(chan protocol.Frame, 1), done: make(chan struct{})}
	fast := &feedClient{send: make(chan protocol.Frame, 8), done: make(chan struct{})}
	require.True(t, h.add(slow))
	require.True(t, h.add(fast))

	h.broadcast(protocol.Frame{Type: protocol.TypeEvent})
	h.broadcast(protocol.Frame{Type: protocol.TypeEvent})

	assert.Equal(t, 1, h.count())
	select {
	case <-slow.done:
	default:
		t.Fatal("slow client not closed")
	}
	assert.Len(t, fast.send, 2)

	h.closeAll()
	assert.False(t, h.add(&feedClient{send: make(chan protocol.Frame, 1), done: make(chan struct{})}))
}

func TestServeShutdown(t *testing.T) {
	mon := &fakeMonitor{state: power.Battery}
	srv := NewServer(Config{Monitor: mon, Prefs: fakePrefs{}, ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	var hello protocol.Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "on_battery", hello.Status.State)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	// The feed connection is closed by the server.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
