package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNoCredential is returned when Connect is called without a credential;
// no connection attempt is made in that case.
var ErrNoCredential = errors.New("transport: credential required")

// Config defines socket connection settings.
type Config struct {
	URL          string
	Attempts     int
	Backoff      time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = c.PingInterval * 5 / 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Manager owns the single authenticated socket connection of a session.
// Events are dispatched to subscribers in arrival order on the read loop, so
// connection-level ordering is preserved. Publish is best-effort: payloads
// are silently dropped while disconnected, never queued.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	credential string
	closed     bool
	gen        int

	writeMu sync.Mutex

	subMu        sync.Mutex
	subs         map[string]map[int]func(json.RawMessage)
	nextSub      int
	onConnect    []func()
	onDisconnect []func()
}

// NewManager returns a disconnected manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		subs:   make(map[string]map[int]func(json.RawMessage)),
		logger: logger,
	}
}

// Connect establishes the connection for the given credential. Calling while
// already connected with the same credential is a no-op; a different
// credential tears down the old connection first. Makes up to Attempts dial
// attempts with a fixed backoff before giving up.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrNoCredential
	}
	m.mu.Lock()
	if m.state == StateConnected && m.credential == credential {
		m.mu.Unlock()
		return nil
	}
	if m.conn != nil {
		m.teardownLocked()
	}
	m.closed = false
	m.credential = credential
	m.state = StateConnecting
	m.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				m.setState(StateDisconnected)
				return ctx.Err()
			case <-time.After(m.cfg.Backoff):
			}
		}
		if err := m.dial(ctx, credential); err != nil {
			lastErr = err
			if m.logger != nil {
				m.logger.Warn("socket connect failed", "attempt", attempt, "error", err)
			}
			continue
		}
		return nil
	}
	m.setState(StateDisconnected)
	return fmt.Errorf("transport: connect failed after %d attempts: %w", m.cfg.Attempts, lastErr)
}

// Close releases the connection. Safe to call when already closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.state = StateDisconnected
	conn := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}

// IsConnected reports whether the socket is currently established.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current connection phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Publish emits an event. Dropped without error while disconnected.
func (m *Manager) Publish(event string, payload any) {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		if m.logger != nil {
			m.logger.Debug("publish dropped while disconnected", "event", event)
		}
		return
	}
	env := envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("publish payload encode failed", "event", event, "error", err)
			}
			return
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil && m.logger != nil {
		m.logger.Debug("publish write failed", "event", event, "error", err)
	}
}

// Subscribe registers a handler for an event name and returns a subscription
// id. Multiple handlers may register for the same event.
func (m *Manager) Subscribe(event string, handler func(json.RawMessage)) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	id := m.nextSub
	if m.subs[event] == nil {
		m.subs[event] = make(map[int]func(json.RawMessage))
	}
	m.subs[event][id] = handler
	return id
}

// Unsubscribe removes exactly the subscription identified by id.
func (m *Manager) Unsubscribe(event string, id int) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if handlers, ok := m.subs[event]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(m.subs, event)
		}
	}
}

// OnConnect registers a hook fired after every successful (re)connect.
// Initial presence and unread data still require explicit fetches; the hook
// only signals that the socket is up.
func (m *Manager) OnConnect(fn func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

// OnDisconnect registers a hook fired when an established connection drops.
func (m *Manager) OnDisconnect(fn func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onDisconnect = append(m.onDisconnect, fn)
}

func (m *Manager) dial(ctx context.Context, credential string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed || m.credential != credential {
		m.mu.Unlock()
		conn.Close()
		return errors.New("transport: connection superseded")
	}
	m.conn = conn
	m.state = StateConnected
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
		return nil
	})
	go m.readPump(conn, gen)
	go m.pingLoop(conn, gen)

	if m.logger != nil {
		m.logger.Info("socket connected", "url", m.cfg.URL)
	}
	for _, fn := range m.connectHooks() {
		fn()
	}
	return nil
}

func (m *Manager) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(conn, gen, err)
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			if m.logger != nil {
				m.logger.Debug("discarding malformed frame", "error", err)
			}
			continue
		}
		for _, handler := range m.handlersFor(env.Event) {
			handler(env.Data)
		}
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		current := m.gen == gen && m.conn == conn
		m.mu.Unlock()
		if !current {
			return
		}
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		m.writeMu.Unlock()
		if err != nil {
			conn.Close()
			return
		}
	}
}

func (m *Manager) handleDrop(conn *websocket.Conn, gen int, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	closed := m.closed
	credential := m.credential
	m.mu.Unlock()
	conn.Close()
	if closed {
		return
	}
	if m.logger != nil && websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		m.logger.Warn("socket connection lost", "error", cause)
	}
	for _, fn := range m.disconnectHooks() {
		fn()
	}
	go m.retryLoop(credential)
}

func (m *Manager) retryLoop(credential string) {
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		time.Sleep(m.cfg.Backoff)
		m.mu.Lock()
		if m.closed || m.credential != credential || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()
		if err := m.dial(context.Background(), credential); err == nil {
			return
		} else if m.logger != nil {
			m.logger.Warn("socket reconnect failed", "attempt", attempt, "error", err)
		}
		m.setState(StateDisconnected)
	}
	if m.logger != nil {
		m.logger.Error("socket reconnect abandoned", "attempts", m.cfg.Attempts)
	}
}

func (m *Manager) teardownLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.gen++
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if !(s == StateDisconnected && m.state == StateConnected) {
		m.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) handlersFor(event string) []func(json.RawMessage) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	handlers := make([]func(json.RawMessage), 0, len(m.subs[event]))
	for _, h := range m.subs[event] {
		handlers = append(handlers, h)
	}
	return handlers
}

func (m *Manager) connectHooks() []func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return append([]func(){}, m.onConnect...)
}

func (m *Manager) disconnectHooks() []func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return append([]func(){}, m.onDisconnect...)
}
