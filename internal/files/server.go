// Package files serves the out-of-band file plane: a second TCP listener
// speaking one framed control message followed by raw chunked bytes, so
// large transfers never stall the chat plane.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"partyline/internal/filestore"
	"partyline/internal/store"
	"partyline/internal/wire"
)

const (
	// ChunkSize caps how many payload bytes one read or write moves, to
	// bound per-connection memory.
	ChunkSize = 64 * 1024

	// chunkTimeout is the per-chunk I/O deadline. An unresponsive peer
	// fails the transfer instead of pinning a worker forever.
	chunkTimeout = 30 * time.Second

	// MaxUploadSize bounds the size a peer may declare.
	MaxUploadSize = 1 << 30 // 1 GiB
)

// Server accepts file-plane connections. Each connection carries exactly one
// upload or download request and is then closed.
type Server struct {
	addr  string
	files *filestore.Store
	ln    net.Listener
}

// NewServer creates a file server bound to the given store.
func NewServer(addr string, files *filestore.Store) *Server {
	return &Server{addr: addr, files: files}
}

// Listen binds the listener. Separate from Run so callers learn the bound
// address (and failures) before the accept loop starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen file plane on %s: %w", s.addr, err)
	}
	s.ln = ln
	slog.Info("file plane listening", "addr", ln.Addr())
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
			return fmt.Errorf("accept file connection: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one request. Errors are reported to the peer as an
// error frame and never affect other connections.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(chunkTimeout))
	req, err := wire.ReadMessage(conn)
	if err != nil {
		slog.Debug("file request unreadable", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	switch req.Type {
	case wire.TypeUpload:
		s.handleUpload(ctx, conn, req)
	case wire.TypeDownload:
		s.handleDownload(ctx, conn, req)
	default:
		s.reply(conn, &wire.Message{Type: wire.TypeError, Reason: "unknown request"})
	}
}

func (s *Server) handleUpload(ctx context.Context, conn net.Conn, req *wire.Message) {
	if req.Size < 0 || req.Size > MaxUploadSize {
		s.reply(conn, &wire.Message{Type: wire.TypeError, Reason: "invalid size"})
		return
	}

	rec, err := s.files.Put(ctx, req.Filename, req.Size, &chunkedReader{conn: conn})
	if err != nil {
		slog.Warn("upload failed", "remote", conn.RemoteAddr(), "name", req.Filename, "err", err)
		s.reply(conn, &wire.Message{Type: wire.TypeError, Reason: "upload failed"})
		return
	}

	slog.Info("upload complete", "file_id", rec.ID, "name", rec.Name, "size", rec.SizeBytes)
	s.reply(conn, &wire.Message{Type: wire.TypeUploadOK, FileID: rec.ID})
}

func (s *Server) handleDownload(ctx context.Context, conn net.Conn, req *wire.Message) {
	res, err := s.files.Open(ctx, req.FileID)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			s.reply(conn, &wire.Message{Type: wire.TypeError, Reason: "file not found"})
		} else {
			slog.Error("download open failed", "file_id", req.FileID, "err", err)
			s.reply(conn, &wire.Message{Type: wire.TypeError, Reason: "download failed"})
		}
		return
	}
	defer res.File.Close()

	if !s.reply(conn, &wire.Message{
		Type:     wire.TypeDownloadMeta,
		Filename: res.Record.Name,
		Size:     res.Record.SizeBytes,
	}) {
		return
	}

	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(&chunkedWriter{conn: conn}, res.File, buf); err != nil {
		slog.Warn("download stream failed", "file_id", req.FileID, "err", err)
		return
	}
	slog.Info("download complete", "file_id", res.Record.ID, "size", res.Record.SizeBytes)
}

func (s *Server) reply(conn net.Conn, msg *wire.Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(chunkTimeout))
	if err := wire.WriteMessage(conn, msg); err != nil {
		slog.Debug("file reply failed", "remote", conn.RemoteAddr(), "err", err)
		return false
	}
	return true
}

// chunkedReader reads raw payload bytes with a fresh deadline per chunk and
// never more than ChunkSize at a time.
type chunkedReader struct {
	conn net.Conn
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	_ = r.conn.SetReadDeadline(time.Now().Add(chunkTimeout))
	return r.conn.Read(p)
}

// chunkedWriter writes raw payload bytes with a fresh deadline per chunk.
type chunkedWriter struct {
	conn net.Conn
}

func (w *chunkedWriter) Write(p []byte) (int, error) {
	_ = w.conn.SetWriteDeadline(time.Now().Add(chunkTimeout))
	return w.conn.Write(p)
}
