package delivery

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

// sendBuffer is the per-connection outbound queue depth. A client that
// cannot drain this many events loses the newest ones rather than growing
// memory.
const sendBuffer = 64

// wsConn is the subset of *websocket.Conn the registry needs, split out so
// tests can attach fake sockets.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SessionHook is notified when a session gains its first local connection
// and when it loses its last one. The pub/sub bridge uses this to subscribe
// exactly once per process per session.
type SessionHook interface {
	SessionActive(sessionID string)
	SessionIdle(sessionID string)
}

// Conn is one registered client connection.
type Conn struct {
	sessionID string
	userID    string
	ws        wsConn

	// mu guards send against a concurrent close from Disconnect.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues a payload without blocking. Returns false when the
// connection is closed or its buffer is full.
func (c *Conn) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue down exactly once.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SessionID returns the session this connection is attached to.
func (c *Conn) SessionID() string { return c.sessionID }

// UserID returns the authenticated user behind the connection.
func (c *Conn) UserID() string { return c.userID }

// Registry tracks which local connections belong to which session. All
// access to the session map is mutex-guarded; connects, disconnects, and
// broadcasts race freely.
type Registry struct {
	logger logging.Logger
	hook   SessionHook

	mu       sync.Mutex
	sessions map[string]map[*Conn]struct{}
}

// NewRegistry creates a connection registry. hook may be nil.
func NewRegistry(hook SessionHook, logger logging.Logger) *Registry {
	return &Registry{
		logger:   logger.With(logging.F("component", "delivery_registry")),
		hook:     hook,
		sessions: make(map[string]map[*Conn]struct{}),
	}
}

// Connect registers a client connection for a session and starts its write
// pump. The returned Conn is owned by the registry; callers release it with
// Disconnect or CleanupSession.
func (r *Registry) Connect(sessionID string, ws wsConn, userID string) *Conn {
	c := &Conn{
		sessionID: sessionID,
		userID:    userID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
	}

	r.mu.Lock()
	conns, ok := r.sessions[sessionID]
	if !ok {
		conns = make(map[*Conn]struct{})
		r.sessions[sessionID] = conns
	}
	first := len(conns) == 0
	conns[c] = struct{}{}
	r.mu.Unlock()

	if first && r.hook != nil {
		r.hook.SessionActive(sessionID)
	}

	go r.writePump(c)
	r.logger.Info("client connected",
		logging.F("session_id", sessionID),
		logging.F("user_id", userID))
	return c
}

// Disconnect removes a connection and closes its socket. When it was the
// session's last local connection the session hook is notified.
func (r *Registry) Disconnect(c *Conn) {
	r.mu.Lock()
	conns := r.sessions[c.sessionID]
	_, present := conns[c]
	var last bool
	if present {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.sessions, c.sessionID)
			last = true
		}
	}
	r.mu.Unlock()

	if !present {
		return
	}
	c.closeSend()
	if last && r.hook != nil {
		r.hook.SessionIdle(c.sessionID)
	}
	r.logger.Info("client disconnected", logging.F("session_id", c.sessionID))
}

// BroadcastToSession delivers an encoded envelope to every local connection
// for the session. A connection whose buffer is full loses this event; a
// connection whose socket errors is removed by its own write pump.
func (r *Registry) BroadcastToSession(sessionID string, payload []byte) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.sessions[sessionID]))
	for c := range r.sessions[sessionID] {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if !c.trySend(payload) {
			r.logger.Warn("client too slow, dropping event",
				logging.F("session_id", sessionID),
				logging.F("user_id", c.userID))
		}
	}
}

// CleanupSession disconnects every connection for a session.
func (r *Registry) CleanupSession(sessionID string) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.sessions[sessionID]))
	for c := range r.sessions[sessionID] {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		r.Disconnect(c)
	}
}

// LocalConnections reports how many local connections a session has.
func (r *Registry) LocalConnections(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}

// writePump drains the connection's send queue onto the socket. A write
// error disconnects only this connection; the session's other clients keep
// receiving.
func (r *Registry) writePump(c *Conn) {
	for payload := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			r.logger.Warn("client write failed, removing connection",
				logging.F("session_id", c.sessionID),
				logging.Err(err))
			r.Disconnect(c)
			break
		}
	}
	_ = c.ws.Close()
}
