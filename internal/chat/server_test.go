package chat

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"partyline/internal/auth"
	"partyline/internal/dispatch"
	"partyline/internal/registry"
	"partyline/internal/store"
	"partyline/internal/wire"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := NewServer("127.0.0.1:0", auth.NewService(st), registry.New(), dispatch.New(dispatch.DefaultHandlers(nil)...))
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()

	return srv
}

// client is a minimal test-side chat peer.
type client struct {
	t    *testing.T
	conn net.Conn
}

func dialClient(t *testing.T, srv *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(msg *wire.Message) {
	c.t.Helper()
	if err := wire.WriteMessage(c.conn, msg); err != nil {
		c.t.Fatalf("send %s: %v", msg.Type, err)
	}
}

func (c *client) recv() *wire.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := wire.ReadMessage(c.conn)
	if err != nil {
		c.t.Fatalf("recv: %v", err)
	}
	return msg
}

// recvType reads frames until one of the wanted type arrives, so tests stay
// robust against interleaved system notices.
func (c *client) recvType(want string) *wire.Message {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		if msg := c.recv(); msg.Type == want {
			return msg
		}
	}
	c.t.Fatalf("no %s frame within 10 frames", want)
	return nil
}

// register runs a successful register handshake for username.
func (c *client) register(username string) {
	c.t.Helper()
	c.send(&wire.Message{Type: wire.TypeRegister, Username: username, Password: "hunter2!"})
	resp := c.recv()
	if resp.Type != wire.TypeAuthResponse || !resp.Success {
		c.t.Fatalf("register %s failed: %#v", username, resp)
	}
	success := c.recv()
	if success.Type != wire.TypeAuthSuccess || success.Username != username {
		c.t.Fatalf("unexpected auth_success: %#v", success)
	}
}

func TestRegisterHandshakeAndBroadcast(t *testing.T) {
	srv := startTestServer(t)

	alice := dialClient(t, srv)
	alice.register("alice")

	bob := dialClient(t, srv)
	bob.register("bob")

	// Alice hears bob arrive.
	joined := alice.recvType(wire.TypeSystem)
	if joined.Text != "bob joined the chat" {
		t.Fatalf("unexpected join notice: %#v", joined)
	}

	bob.send(&wire.Message{Type: wire.TypeMessage, Text: "hello everyone"})

	for _, c := range []*client{alice, bob} {
		got := c.recvType(wire.TypeMessage)
		if got.From != "bob" || got.Text != "hello everyone" {
			t.Fatalf("unexpected chat frame: %#v", got)
		}
	}
}

func TestLoginAfterRegister(t *testing.T) {
	srv := startTestServer(t)

	first := dialClient(t, srv)
	first.register("carol")
	first.send(&wire.Message{Type: wire.TypeQuit})

	again := dialClient(t, srv)
	again.send(&wire.Message{Type: wire.TypeLogin, Username: "carol", Password: "hunter2!"})
	resp := again.recv()
	if resp.Type != wire.TypeAuthResponse || !resp.Success {
		t.Fatalf("login failed: %#v", resp)
	}
	if success := again.recv(); success.Type != wire.TypeAuthSuccess || success.Username != "carol" {
		t.Fatalf("unexpected auth_success: %#v", success)
	}
}

func TestFailedAttemptsCloseConnection(t *testing.T) {
	srv := startTestServer(t)

	c := dialClient(t, srv)
	for i := 0; i < 3; i++ {
		c.send(&wire.Message{Type: wire.TypeLogin, Username: "ghost", Password: "wrong"})
		resp := c.recv()
		if resp.Type != wire.TypeAuthResponse || resp.Success {
			t.Fatalf("attempt %d: unexpected response %#v", i+1, resp)
		}
	}

	// Attempts exhausted; the server hangs up.
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadMessage(c.conn); err == nil {
		t.Fatal("expected connection to be closed after three failures")
	}
}

func TestSecondAttemptMaySucceed(t *testing.T) {
	srv := startTestServer(t)

	setup := dialClient(t, srv)
	setup.register("dave")
	setup.send(&wire.Message{Type: wire.TypeQuit})

	c := dialClient(t, srv)
	c.send(&wire.Message{Type: wire.TypeLogin, Username: "dave", Password: "typo"})
	if resp := c.recv(); resp.Success {
		t.Fatalf("wrong password accepted: %#v", resp)
	}

	c.send(&wire.Message{Type: wire.TypeLogin, Username: "dave", Password: "hunter2!"})
	if resp := c.recv(); !resp.Success {
		t.Fatalf("correct password rejected on second attempt: %#v", resp)
	}
	if success := c.recv(); success.Type != wire.TypeAuthSuccess {
		t.Fatalf("unexpected frame: %#v", success)
	}
}

func TestChatFrameBeforeAuthIsRejected(t *testing.T) {
	srv := startTestServer(t)

	c := dialClient(t, srv)
	c.send(&wire.Message{Type: wire.TypeMessage, Text: "sneaky"})
	resp := c.recv()
	if resp.Type != wire.TypeAuthResponse || resp.Success || resp.Reason != "authentication required" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestQuitBroadcastsLeave(t *testing.T) {
	srv := startTestServer(t)

	alice := dialClient(t, srv)
	alice.register("alice")
	bob := dialClient(t, srv)
	bob.register("bob")
	alice.recvType(wire.TypeSystem) // bob joined

	bob.send(&wire.Message{Type: wire.TypeQuit})

	left := alice.recvType(wire.TypeSystem)
	if left.Text != "bob left the chat" {
		t.Fatalf("unexpected leave notice: %#v", left)
	}
}

func TestMalformedFrameKillsOnlyThatSession(t *testing.T) {
	srv := startTestServer(t)

	alice := dialClient(t, srv)
	alice.register("alice")
	mallory := dialClient(t, srv)
	mallory.register("mallory")
	alice.recvType(wire.TypeSystem) // mallory joined

	// A length prefix far beyond the frame ceiling.
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<31)
	if _, err := mallory.conn.Write(header[:]); err != nil {
		t.Fatalf("write bogus header: %v", err)
	}

	left := alice.recvType(wire.TypeSystem)
	if left.Text != "mallory left the chat" {
		t.Fatalf("unexpected notice: %#v", left)
	}

	// Alice's session is unaffected.
	alice.send(&wire.Message{Type: wire.TypeMessage, Text: "still here"})
	got := alice.recvType(wire.TypeMessage)
	if got.From != "alice" || got.Text != "still here" {
		t.Fatalf("unexpected frame: %#v", got)
	}
}
