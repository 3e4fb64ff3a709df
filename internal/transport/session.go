package transport

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daviddao/cosmoview/internal/universe"
)

// session holds everything one run loop owns: the open channel and the two
// timers. Only the run loop touches it.
type session struct {
	conn      *websocket.Conn
	heartbeat *time.Ticker
	retry     *time.Timer

	frames  chan []byte
	readErr chan error
	stop    chan struct{}
}

func (s *session) heartbeatC() <-chan time.Time {
	if s.heartbeat == nil {
		return nil
	}
	return s.heartbeat.C
}

func (s *session) retryC() <-chan time.Time {
	if s.retry == nil {
		return nil
	}
	return s.retry.C
}

func (s *session) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (m *Manager) run(ctx context.Context, url string, done chan struct{}) {
	defer close(done)
	s := &session{}
	defer m.teardown(s)

	select {
	case <-m.redial:
	default:
	}
	m.dial(ctx, s, url)
	for {
		select {
		case <-ctx.Done():
			return

		case <-s.heartbeatC():
			m.ping()

		case data := <-s.frames:
			m.handleFrame(data)

		case err := <-s.readErr:
			m.handleReadError(s, err)

		case <-s.retryC():
			s.retry = nil
			m.retries.Add(1)
			m.dial(ctx, s, url)

		case <-m.redial:
			m.log.Info("manual reconnect", "url", url)
			s.stopRetry()
			m.closeConn(s, websocket.CloseNormalClosure, "reconnecting")
			m.dial(ctx, s, url)
		}
	}
}

// dial moves to StatusConnecting and tries to open the channel. A failed dial
// is a channel failure followed by an abnormal close.
func (m *Manager) dial(ctx context.Context, s *session, url string) {
	m.setStatus(StatusConnecting)
	m.dials.Add(1)
	m.log.Info("connecting", "url", url)

	conn, _, err := m.opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Error("dial failed", "url", url, "error", err)
		m.setError(msgConnectionFailed)
		m.closed(s, abnormalClosure, err.Error())
		return
	}
	m.open(s, conn)
}

func (m *Manager) open(s *session, conn *websocket.Conn) {
	s.conn = conn
	s.frames = make(chan []byte)
	s.readErr = make(chan error, 1)
	s.stop = make(chan struct{})
	s.heartbeat = time.NewTicker(m.opts.HeartbeatInterval)

	m.mu.Lock()
	m.conn = conn
	m.state = State{Status: StatusConnected}
	m.mu.Unlock()
	m.emit(Event{Kind: EventState, State: State{Status: StatusConnected}})
	m.log.Info("connected", "remote", conn.RemoteAddr().String())

	go readLoop(conn, s.frames, s.readErr, s.stop)
}

func readLoop(conn *websocket.Conn, frames chan<- []byte, errs chan<- error, stop <-chan struct{}) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		select {
		case frames <- data:
		case <-stop:
			return
		}
	}
}

func (m *Manager) ping() {
	if err := m.SendRaw(PingText); err != nil {
		m.log.Warn("heartbeat failed", "error", err)
		return
	}
	m.pings.Add(1)
}

// handleFrame applies one inbound frame. Undecodable frames are logged and
// dropped; pongs and unknown types change nothing.
func (m *Manager) handleFrame(data []byte) {
	m.frames.Add(1)
	msg, err := universe.DecodeMessage(data, m.opts.Now())
	if err != nil {
		m.decodeErrs.Add(1)
		m.log.Warn("dropping message", "error", err, "bytes", len(data))
		return
	}
	switch msg.Kind {
	case universe.KindPong:
		m.pongs.Add(1)
	case universe.KindUpdate:
		m.updates.Add(1)
		m.store.Replace(msg.Snapshot)
		m.emit(Event{Kind: EventSnapshot, State: m.State(), Snapshot: msg.Snapshot})
	default:
		m.ignored.Add(1)
		m.log.Debug("ignoring message", "type", msg.Type)
	}
}

func (m *Manager) handleReadError(s *session, err error) {
	code, reason := abnormalClosure, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}
	if code == abnormalClosure {
		m.log.Error("channel failed", "error", err)
		m.setError(msgConnectionFailed)
	}
	m.closed(s, code, reason)
}

// closed handles the close event: the channel and heartbeat are released and,
// unless the closure was normal, exactly one retry is scheduled.
func (m *Manager) closed(s *session, code int, reason string) {
	m.release(s)
	m.mu.Lock()
	m.state.Status = StatusDisconnected
	st := m.state
	m.mu.Unlock()
	m.emit(Event{Kind: EventState, State: st, CloseCode: code})
	m.log.Info("disconnected", "code", code, "reason", reason)

	if code == websocket.CloseNormalClosure {
		return
	}
	s.stopRetry()
	s.retry = time.NewTimer(m.opts.ReconnectDelay)
	m.log.Info("reconnect scheduled", "delay", m.opts.ReconnectDelay)
}

// closeConn sends a close frame with code and releases the channel.
func (m *Manager) closeConn(s *session, code int, reason string) {
	if s.conn == nil {
		return
	}
	m.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	m.mu.Unlock()
	m.release(s)
}

// release stops the heartbeat and drops the channel without a close frame.
func (m *Manager) release(s *session) {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.conn == nil {
		return
	}
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
	close(s.stop)
	s.conn.Close()
	s.conn = nil
	s.frames, s.readErr, s.stop = nil, nil, nil
}

func (m *Manager) teardown(s *session) {
	s.stopRetry()
	m.closeConn(s, websocket.CloseNormalClosure, "session closed")
	m.mu.Lock()
	m.state.Status = StatusDisconnected
	m.mu.Unlock()
	m.log.Info("session closed")
}

func (m *Manager) setStatus(st Status) {
	m.mu.Lock()
	m.state.Status = st
	state := m.state
	m.mu.Unlock()
	m.emit(Event{Kind: EventState, State: state})
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.state = State{Status: StatusError, LastError: msg}
	m.mu.Unlock()
	m.emit(Event{Kind: EventState, State: State{Status: StatusError, LastError: msg}})
}

// emit delivers ev, giving up once the session is stopping.
func (m *Manager) emit(ev Event) {
	m.life.Lock()
	stopping := m.stopping
	m.life.Unlock()
	if stopping == nil {
		select {
		case m.events <- ev:
		default:
		}
		return
	}
	select {
	case m.events <- ev:
	case <-stopping:
	}
}
