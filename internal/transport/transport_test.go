package transport

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daviddao/cosmoview/internal/snapshot"
)

const updateFrame = `{"type":"universe_update","step":9,"timestamp":"2025-03-01T10:00:00Z",
"planets":[{"id":"p0","name":"Terra","type":"terran","size":[20,20],"cells":[],
"cell_counts":{"plants":0,"herbivores":0,"carnivores":0},"conditions":{"temperature":10,"pressure":1,"radiation":0},
"discovery_multiplier":1,"trade_routes":0,"total_inventory":0,"total_discoveries":0,"scattered_materials":0}],
"cosmic_events":[],"discovery_stats":{"total_discoveries":0,"recent_discoveries":[]}}`

// serverConn is one accepted websocket connection and when it was accepted.
type serverConn struct {
	*websocket.Conn
	acceptedAt time.Time
}

type testServer struct {
	*httptest.Server
	conns    chan serverConn
	accepted atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan serverConn, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.accepted.Add(1)
		ts.conns <- serverConn{Conn: conn, acceptedAt: time.Now()}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (ts *testServer) next(t *testing.T) serverConn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client connection")
	}
	return serverConn{}
}

// eventLog drains a manager's events for inspection.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) has(pred func(Event) bool) bool {
	for _, ev := range l.all() {
		if pred(ev) {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, opts Options) (*Manager, *snapshot.Store, *eventLog) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	store := snapshot.NewStore()
	m := NewManager(store, opts)
	log := &eventLog{}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-m.Events():
				log.mu.Lock()
				log.events = append(log.events, ev)
				log.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
	t.Cleanup(func() {
		m.Close()
		close(stop)
	})
	return m, store, log
}

// waitUntil polls cond until it holds or the timeout expires.
func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func isStatus(st Status) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == EventState && ev.State.Status == st }
}

func TestConnectAppliesUpdate(t *testing.T) {
	ts := newTestServer(t)
	m, store, log := newTestManager(t, Options{})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	if err := sc.WriteMessage(websocket.TextMessage, []byte(updateFrame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitUntil(t, time.Second, "snapshot", func() bool { return store.Current() != nil })

	if got := store.Current().Step; got != 9 {
		t.Errorf("step = %d, want 9", got)
	}
	waitUntil(t, time.Second, "snapshot event", func() bool {
		return log.has(func(ev Event) bool { return ev.Kind == EventSnapshot })
	})

	evs := log.all()
	if len(evs) < 3 || evs[0].State.Status != StatusConnecting || evs[1].State.Status != StatusConnected {
		t.Errorf("events = %+v, want Connecting, Connected, snapshot", evs)
	}
	if m.URL() != ts.wsURL() {
		t.Errorf("URL() = %q", m.URL())
	}
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	const interval = 40 * time.Millisecond
	m, store, _ := newTestManager(t, Options{HeartbeatInterval: interval})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)

	var pings atomic.Int32
	go func() {
		for {
			_, data, err := sc.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == PingText {
				pings.Add(1)
				sc.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		}
	}()

	const window = 10 * interval
	time.Sleep(window + interval/2)

	got := pings.Load()
	if got < 5 || got > 11 {
		t.Errorf("pings in %v = %d, want about %d", window, got, window/interval)
	}
	waitUntil(t, time.Second, "pongs", func() bool { return m.Stats().Pongs >= 5 })
	if store.Current() != nil {
		t.Error("pong must not produce a snapshot")
	}
	if m.State().Status != StatusConnected {
		t.Errorf("status = %v, want Connected", m.State().Status)
	}
}

func TestUndecodableFrameDropped(t *testing.T) {
	ts := newTestServer(t)
	m, store, log := newTestManager(t, Options{})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	sc.WriteMessage(websocket.TextMessage, []byte("not-json"))
	sc.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat"}`))
	waitUntil(t, time.Second, "frames handled", func() bool {
		st := m.Stats()
		return st.DecodeErrors == 1 && st.Ignored == 1
	})

	if store.Current() != nil {
		t.Error("store changed by an undecodable frame")
	}
	if st := m.State(); st.Status != StatusConnected || st.LastError != "" {
		t.Errorf("state = %+v, want Connected without error", st)
	}
	if log.has(isStatus(StatusError)) {
		t.Error("decode failure must not surface as a connection error")
	}
}

func TestNormalCloseSchedulesNoReconnect(t *testing.T) {
	ts := newTestServer(t)
	const delay = 50 * time.Millisecond
	m, _, log := newTestManager(t, Options{ReconnectDelay: delay})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	sc.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
	waitUntil(t, time.Second, "disconnect", func() bool { return m.State().Status == StatusDisconnected })

	time.Sleep(4 * delay)
	if n := ts.accepted.Load(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
	if m.Stats().Retries != 0 {
		t.Errorf("retries = %d, want 0", m.Stats().Retries)
	}
	if !log.has(func(ev Event) bool { return ev.CloseCode == websocket.CloseNormalClosure }) {
		t.Error("missing close event with normal code")
	}
	if err := m.SendRaw("hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendRaw after close = %v, want ErrNotConnected", err)
	}
}

func TestAbnormalCloseReconnectsAfterDelay(t *testing.T) {
	ts := newTestServer(t)
	const delay = 150 * time.Millisecond
	m, _, _ := newTestManager(t, Options{ReconnectDelay: delay})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	closedAt := time.Now()
	sc.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4001, "restarting"), time.Now().Add(time.Second))

	again := ts.next(t)
	if gap := again.acceptedAt.Sub(closedAt); gap < delay {
		t.Errorf("reconnected after %v, want at least %v", gap, delay)
	}
	waitUntil(t, time.Second, "reconnected", func() bool { return m.State().Status == StatusConnected })

	time.Sleep(3 * delay)
	if n := ts.accepted.Load(); n != 2 {
		t.Errorf("connections = %d, want exactly 2", n)
	}
	if m.Stats().Retries != 1 {
		t.Errorf("retries = %d, want 1", m.Stats().Retries)
	}
}

func TestDroppedChannelErrorsThenReconnects(t *testing.T) {
	ts := newTestServer(t)
	const delay = 60 * time.Millisecond
	m, _, log := newTestManager(t, Options{ReconnectDelay: delay})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	// Drop the TCP connection without a close frame.
	sc.UnderlyingConn().Close()

	waitUntil(t, time.Second, "error then disconnect", func() bool {
		return log.has(isStatus(StatusError)) &&
			log.has(func(ev Event) bool { return ev.CloseCode == websocket.CloseAbnormalClosure })
	})

	evs := log.all()
	errAt, closeAt := -1, -1
	for i, ev := range evs {
		if errAt < 0 && ev.State.Status == StatusError {
			errAt = i
			if ev.State.LastError != "Connection failed" {
				t.Errorf("LastError = %q", ev.State.LastError)
			}
		}
		if closeAt < 0 && ev.CloseCode == websocket.CloseAbnormalClosure {
			closeAt = i
			if ev.State.LastError == "" {
				t.Error("LastError should survive the close")
			}
		}
	}
	if errAt > closeAt {
		t.Errorf("error event at %d after close at %d", errAt, closeAt)
	}

	ts.next(t)
	waitUntil(t, time.Second, "reconnected", func() bool { return m.State().Status == StatusConnected })
	if st := m.State(); st.LastError != "" {
		t.Errorf("LastError = %q after reopen, want cleared", st.LastError)
	}
}

func TestDialFailureRetries(t *testing.T) {
	ts := newTestServer(t)
	url := ts.wsURL()
	ts.Close()

	m, _, log := newTestManager(t, Options{ReconnectDelay: 20 * time.Millisecond})
	if err := m.Connect(url); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitUntil(t, 2*time.Second, "three dials", func() bool { return m.Stats().Dials >= 3 })

	if !log.has(isStatus(StatusError)) {
		t.Error("dial failure should surface as StatusError")
	}
	if st := m.State(); st.LastError != "Connection failed" {
		t.Errorf("LastError = %q", st.LastError)
	}
}

func TestCloseIsNormalShutdown(t *testing.T) {
	ts := newTestServer(t)
	const delay = 40 * time.Millisecond
	m, _, _ := newTestManager(t, Options{ReconnectDelay: delay, HeartbeatInterval: 20 * time.Millisecond})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	closeErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := sc.ReadMessage(); err != nil {
				closeErr <- err
				return
			}
		}
	}()

	m.Close()
	m.Close()

	select {
	case err := <-closeErr:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("server saw %v, want normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}

	pings := m.Stats().PingsSent
	time.Sleep(4 * delay)
	if n := ts.accepted.Load(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
	if m.Stats().PingsSent != pings {
		t.Error("heartbeat still running after Close")
	}
	if m.State().Status != StatusDisconnected {
		t.Errorf("status = %v, want Disconnected", m.State().Status)
	}
	if m.URL() != "" {
		t.Errorf("URL() = %q after Close", m.URL())
	}
}

func TestConnectInvalidURL(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	for _, u := range []string{"http://localhost:8001/ws", "ws://", "::bad"} {
		if err := m.Connect(u); err == nil {
			t.Errorf("Connect(%q) succeeded", u)
		}
	}
	st := m.State()
	if st.Status != StatusError || st.LastError != "Failed to create connection" {
		t.Errorf("state = %+v", st)
	}
	time.Sleep(20 * time.Millisecond)
	if m.Stats().Dials != 0 {
		t.Errorf("dials = %d, want 0", m.Stats().Dials)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	ts := newTestServer(t)
	const delay = 200 * time.Millisecond
	m, _, log := newTestManager(t, Options{ReconnectDelay: delay})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	sc.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4001, "restarting"), time.Now().Add(time.Second))
	waitUntil(t, time.Second, "abnormal close", func() bool {
		return log.has(func(ev Event) bool { return ev.CloseCode == 4001 })
	})

	// The retry is armed; closing the session must cancel it.
	m.Close()

	time.Sleep(2 * delay)
	if n := ts.accepted.Load(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
	if r := m.Stats().Retries; r != 0 {
		t.Errorf("retries = %d, want 0", r)
	}
	if d := m.Stats().Dials; d != 1 {
		t.Errorf("dials = %d, want 1", d)
	}
}

func TestConnectInvalidURLStopsRunningSession(t *testing.T) {
	ts := newTestServer(t)
	m, _, _ := newTestManager(t, Options{ReconnectDelay: 20 * time.Millisecond})

	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	closeErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := sc.ReadMessage(); err != nil {
				closeErr <- err
				return
			}
		}
	}()

	if err := m.Connect("http://localhost:8001/ws"); err == nil {
		t.Fatal("Connect accepted a non-websocket URL")
	}
	select {
	case err := <-closeErr:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("server saw %v, want normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("previous session still open after a rejected Connect")
	}

	st := m.State()
	if st.Status != StatusError || st.LastError != "Failed to create connection" {
		t.Errorf("state = %+v", st)
	}
	if m.URL() != "" {
		t.Errorf("URL() = %q, want empty", m.URL())
	}
	time.Sleep(100 * time.Millisecond)
	if n := ts.accepted.Load(); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
}

func TestSendRawAndManualReconnect(t *testing.T) {
	ts := newTestServer(t)
	m, _, _ := newTestManager(t, Options{})

	if err := m.SendRaw("early"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendRaw before connect = %v", err)
	}
	if err := m.Connect(ts.wsURL()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := ts.next(t)
	waitUntil(t, time.Second, "connected", func() bool { return m.State().Status == StatusConnected })

	if err := m.SendRaw("hello"); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	_, data, err := sc.ReadMessage()
	if err != nil || string(data) != "hello" {
		t.Fatalf("server read %q, %v", data, err)
	}

	m.Reconnect()
	_, _, err = sc.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("old connection saw %v, want normal closure", err)
	}
	ts.next(t)
	waitUntil(t, time.Second, "reconnected", func() bool { return m.State().Status == StatusConnected })
	if m.Stats().Dials != 2 {
		t.Errorf("dials = %d, want 2", m.Stats().Dials)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusDisconnected, "Disconnected"},
		{StatusConnecting, "Connecting"},
		{StatusConnected, "Connected"},
		{StatusError, "Error"},
		{Status(42), "?"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
