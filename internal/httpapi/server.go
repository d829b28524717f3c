// Package httpapi is the HTTP observability surface: health, live state, and
// browser-friendly access to stored files. It runs beside the socket planes
// and stopping it never disturbs them.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"partyline/internal/filestore"
	"partyline/internal/media"
	"partyline/internal/registry"
	"partyline/internal/store"
)

// Server is the Echo application.
type Server struct {
	echo  *echo.Echo
	reg   *registry.Registry
	relay *media.Relay
	files *filestore.Store
}

// New constructs an Echo app over the live services.
func New(reg *registry.Registry, relay *media.Relay, files *filestore.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reg: reg, relay: relay, files: files}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/api/files", s.handleListFiles)
	s.echo.GET("/api/files/:id", s.handleDownloadFile)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

// RunTLS is Run over TLS with the supplied certificate configuration.
func (s *Server) RunTLS(ctx context.Context, addr string, tlsConf *tls.Config) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.StartServer(&http.Server{Addr: addr, TLSConfig: tlsConf})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: s.reg.Len(),
	})
}

type stateResponse struct {
	Sessions int         `json:"sessions"`
	Users    []string    `json:"users"`
	Relay    media.Stats `json:"relay"`
}

func (s *Server) handleState(c echo.Context) error {
	users := s.reg.Usernames()
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, stateResponse{
		Sessions: len(users),
		Users:    users,
		Relay:    s.relay.Stats(),
	})
}

type fileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListFiles(c echo.Context) error {
	records, err := s.files.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list files: %v", err))
	}
	resp := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, fileResponse{
			ID:        rec.ID,
			Name:      rec.Name,
			SizeBytes: rec.SizeBytes,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDownloadFile(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file id is required")
	}

	result, err := s.files.Open(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("open file: %v", err))
	}
	defer result.File.Close()

	c.Response().Header().Set(echo.HeaderContentType, "application/octet-stream")
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(result.Record.SizeBytes, 10))
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, safeFilename(result.Record.Name)),
	)
	c.Response().WriteHeader(http.StatusOK)
	_, copyErr := io.Copy(c.Response().Writer, result.File)
	return copyErr
}

func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "file"
	}
	name = strings.ReplaceAll(name, `"`, "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}
