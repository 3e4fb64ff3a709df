// Package transport keeps a websocket push channel to the simulation server
// open and feeds every universe update into a snapshot store.
//
// A Manager runs one connection at a time. It sends a "ping" heartbeat while
// connected and, when the server closes the channel with anything other than a
// normal closure, dials again after a fixed delay. Channel failures surface as
// StatusError but never schedule a reconnect on their own; only the close that
// follows them does.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daviddao/cosmoview/internal/snapshot"
	"github.com/daviddao/cosmoview/internal/universe"
)

const (
	// HeartbeatInterval is the period of the "ping" heartbeat.
	HeartbeatInterval = 30 * time.Second
	// ReconnectDelay is the fixed wait before dialing again after an abnormal
	// close. There is no backoff and no attempt cap.
	ReconnectDelay = 3 * time.Second
	// PingText is the heartbeat token.
	PingText = "ping"

	writeTimeout = 10 * time.Second

	// Close code reported when the channel dropped without a close frame.
	abnormalClosure = websocket.CloseAbnormalClosure

	msgConnectionFailed = "Connection failed"
	msgCreateFailed     = "Failed to create connection"
)

// ErrNotConnected is returned by SendRaw when no channel is open.
var ErrNotConnected = errors.New("transport: not connected")

// Status is the coarse connection status.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	}
	return "?"
}

// State is the connection status plus the last user-visible error. LastError
// survives reconnect attempts and is cleared when a channel opens.
type State struct {
	Status    Status
	LastError string
}

// EventKind says what an Event carries.
type EventKind int

const (
	EventState EventKind = iota
	EventSnapshot
)

// Event is emitted on every state change and every applied snapshot.
type Event struct {
	Kind     EventKind
	State    State
	Snapshot *universe.Snapshot

	// CloseCode is set on the transition to StatusDisconnected.
	CloseCode int
}

// Stats are running counters for one Manager.
type Stats struct {
	Frames       uint64
	Updates      uint64
	Pongs        uint64
	Ignored      uint64
	DecodeErrors uint64
	PingsSent    uint64
	Dials        uint64
	Retries      uint64
}

// Options tune a Manager. Zero values take the package defaults.
type Options struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	Dialer            *websocket.Dialer
	Logger            *slog.Logger
	Now               func() time.Time
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = HeartbeatInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = o.HandshakeTimeout
		o.Dialer = &d
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager owns the push channel. Create one with NewManager, start it with
// Connect and stop it with Close. Events must be drained by the caller.
type Manager struct {
	store  *snapshot.Store
	opts   Options
	log    *slog.Logger
	events chan Event
	redial chan struct{}

	// life guards the running loop.
	life     sync.Mutex
	url      string
	cancel   context.CancelFunc
	stopping <-chan struct{}
	done     chan struct{}

	// mu guards conn for writers and the published state.
	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	frames, updates, pongs, ignored, decodeErrs atomic.Uint64
	pings, dials, retries                       atomic.Uint64
}

// NewManager returns a Manager that replaces store's snapshot on each update.
func NewManager(store *snapshot.Store, opts Options) *Manager {
	opts.defaults()
	return &Manager{
		store:  store,
		opts:   opts,
		log:    opts.Logger.With("component", "transport"),
		events: make(chan Event, 64),
		redial: make(chan struct{}, 1),
		state:  State{Status: StatusDisconnected},
	}
}

// Events returns the channel of state changes and applied snapshots.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URL returns the endpoint of the running session, or "" when stopped.
func (m *Manager) URL() string {
	m.life.Lock()
	defer m.life.Unlock()
	return m.url
}

// Stats returns a copy of the running counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Frames:       m.frames.Load(),
		Updates:      m.updates.Load(),
		Pongs:        m.pongs.Load(),
		Ignored:      m.ignored.Load(),
		DecodeErrors: m.decodeErrs.Load(),
		PingsSent:    m.pings.Load(),
		Dials:        m.dials.Load(),
		Retries:      m.retries.Load(),
	}
}

// Connect stops any running session with a normal closure and starts a new
// one against rawURL. An unusable URL leaves the manager stopped in
// StatusError and returns an error without scheduling any retry.
func (m *Manager) Connect(rawURL string) error {
	m.Close()
	if err := validateURL(rawURL); err != nil {
		m.setError(msgCreateFailed)
		m.log.Error("create connection", "url", rawURL, "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.life.Lock()
	m.url = rawURL
	m.cancel = cancel
	m.stopping = ctx.Done()
	m.done = done
	m.life.Unlock()

	go m.run(ctx, rawURL, done)
	return nil
}

// Reconnect drops the current channel with a normal closure, cancels any
// pending retry and dials again immediately. It does nothing when stopped.
func (m *Manager) Reconnect() {
	select {
	case m.redial <- struct{}{}:
	default:
	}
}

// Close ends the session: the heartbeat and any pending retry are cancelled
// and the channel is closed with a normal closure so nothing is rescheduled.
// Close is idempotent.
func (m *Manager) Close() error {
	m.life.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.stopping, m.done, m.url = nil, nil, nil, ""
	m.life.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// SendRaw writes text to the open channel.
func (m *Manager) SendRaw(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("transport: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport: url %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("transport: url %q: missing host", raw)
	}
	return nil
}
