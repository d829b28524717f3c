// Package registry tracks the authenticated chat sessions and implements
// broadcast fan-out over their connections.
package registry

import (
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"partyline/internal/wire"
)

// writeTimeout bounds how long one frame write to a peer may block.
const writeTimeout = 5 * time.Second

// Session is the server-side record of one authenticated connection.
type Session struct {
	id       string
	username string
	conn     net.Conn

	// writeMu serializes frame writes so a broadcast from another goroutine
	// never interleaves with this session's own replies.
	writeMu sync.Mutex
}

// NewSession wraps an authenticated connection.
func NewSession(conn net.Conn, username string) *Session {
	return &Session{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Username returns the display name established at authentication.
func (s *Session) Username() string { return s.username }

// RemoteAddr returns the peer address, for logging.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send writes one frame to this session's connection. A failure means the
// connection is broken and the session should be unregistered.
func (s *Session) Send(msg *wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wire.WriteMessage(s.conn, msg)
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// Registry is the lock-protected map of live sessions, keyed by connection.
// A connection appears here iff it has authenticated and not yet
// disconnected.
type Registry struct {
	mu       sync.Mutex
	sessions map[net.Conn]*Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[net.Conn]*Session)}
}

// Register adds a session. Registering a second session for the same
// connection replaces the first; the chat service never does this.
func (r *Registry) Register(sess *Session) {
	r.mu.Lock()
	r.sessions[sess.conn] = sess
	total := len(r.sessions)
	r.mu.Unlock()

	slog.Info("session registered", "session_id", sess.id, "username", sess.username, "total", total)
}

// Unregister removes a session. Safe to call more than once.
func (r *Registry) Unregister(sess *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[sess.conn]
	if ok && cur == sess {
		delete(r.sessions, sess.conn)
	} else {
		ok = false
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		slog.Info("session unregistered", "session_id", sess.id, "username", sess.username, "total", total)
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Usernames returns a sorted snapshot of connected display names.
func (r *Registry) Usernames() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.username)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// Broadcast sends msg to every registered session except exclude (which may
// be nil). The session list is snapshotted under the lock but each write
// happens outside it, so one slow peer never stalls the map. A failed write
// unregisters and closes that one session; delivery to the rest continues.
func (r *Registry) Broadcast(msg *wire.Message, exclude *Session) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s == exclude {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	var dead []*Session
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			slog.Debug("broadcast write failed", "session_id", s.id, "username", s.username, "err", err)
			dead = append(dead, s)
		}
	}

	for _, s := range dead {
		if r.Unregister(s) {
			_ = s.Close()
		}
	}

	slog.Debug("broadcast", "type", msg.Type, "recipients", len(targets)-len(dead), "failed", len(dead))
}
