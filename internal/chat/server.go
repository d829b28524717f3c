// Package chat serves the chat plane: authenticated long-lived TCP sessions
// whose framed messages fan out through the registry.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"partyline/internal/auth"
	"partyline/internal/dispatch"
	"partyline/internal/registry"
	"partyline/internal/wire"
)

const (
	// maxAuthAttempts is how many login/register tries a connection gets
	// before the server hangs up.
	maxAuthAttempts = 3

	// authTimeout bounds how long an unauthenticated connection may sit
	// between frames. Authenticated sessions have no read deadline; idle
	// chat connections are legitimate.
	authTimeout = 60 * time.Second
)

// Server accepts chat connections, walks each through authentication, and
// runs its message loop.
type Server struct {
	addr string
	auth *auth.Service
	reg  *registry.Registry
	disp *dispatch.Dispatcher
	ln   net.Listener
}

// NewServer wires the chat service. The auth service is shared state owned
// by the caller; the chat server never constructs its own.
func NewServer(addr string, authSvc *auth.Service, reg *registry.Registry, disp *dispatch.Dispatcher) *Server {
	return &Server{addr: addr, auth: authSvc, reg: reg, disp: disp}
}

// Listen binds the listener. Separate from Run so callers learn the bound
// address (and failures) before the accept loop starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen chat plane on %s: %w", s.addr, err)
	}
	s.ln = ln
	slog.Info("chat plane listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Run accepts connections until ctx is canceled, one goroutine per
// connection.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept chat connection: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn owns one connection from accept to close. Any exit path tears
// down the session and announces the departure.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	username, ok := s.authenticate(ctx, conn)
	if !ok {
		return
	}

	sess := registry.NewSession(conn, username)
	s.reg.Register(sess)
	slog.Info("session started", "session", sess.ID(), "username", username, "remote", conn.RemoteAddr())
	s.reg.Broadcast(&wire.Message{
		Type: wire.TypeSystem,
		Text: username + " joined the chat",
	}, sess)

	defer func() {
		if s.reg.Unregister(sess) {
			s.reg.Broadcast(&wire.Message{
				Type: wire.TypeSystem,
				Text: username + " left the chat",
			}, nil)
		}
		slog.Info("session ended", "session", sess.ID(), "username", username)
	}()

	// Authenticated sessions block on reads indefinitely.
	_ = conn.SetReadDeadline(time.Time{})

	dctx := &dispatch.Context{Registry: s.reg, Sender: sess}
	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			slog.Debug("session read failed", "session", sess.ID(), "err", err)
			return
		}
		if msg.Type == wire.TypeQuit {
			return
		}
		s.disp.Dispatch(dctx, msg)
	}
}

// authenticate walks the unauthenticated state machine: up to
// maxAuthAttempts login/register frames, each answered with an
// auth_response. A success additionally sends auth_success and returns the
// account name.
func (s *Server) authenticate(ctx context.Context, conn net.Conn) (string, bool) {
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			slog.Debug("auth read failed", "remote", conn.RemoteAddr(), "err", err)
			return "", false
		}

		var ok bool
		var reason string
		switch msg.Type {
		case wire.TypeLogin:
			ok, reason = s.auth.Authenticate(ctx, msg.Username, msg.Password)
		case wire.TypeRegister:
			ok, reason = s.auth.Register(ctx, msg.Username, msg.Password)
		default:
			ok, reason = false, "authentication required"
		}

		resp := &wire.Message{Type: wire.TypeAuthResponse, Success: ok, Reason: reason}
		if err := wire.WriteMessage(conn, resp); err != nil {
			slog.Debug("auth response write failed", "remote", conn.RemoteAddr(), "err", err)
			return "", false
		}
		if !ok {
			slog.Info("auth attempt failed", "remote", conn.RemoteAddr(), "username", msg.Username, "attempt", attempt)
			continue
		}

		// The auth service trims the name before storing it; the session
		// must carry the same form.
		username := strings.TrimSpace(msg.Username)
		success := &wire.Message{Type: wire.TypeAuthSuccess, Username: username}
		if err := wire.WriteMessage(conn, success); err != nil {
			slog.Debug("auth success write failed", "remote", conn.RemoteAddr(), "err", err)
			return "", false
		}
		return username, true
	}

	slog.Info("auth attempts exhausted", "remote", conn.RemoteAddr())
	return "", false
}
