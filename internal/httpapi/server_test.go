package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"partyline/internal/filestore"
	"partyline/internal/media"
	"partyline/internal/registry"
	"partyline/internal/store"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry, *filestore.Store) {
	t.Helper()

	meta, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	files, err := filestore.New(t.TempDir(), meta)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}

	reg := registry.New()
	return New(reg, media.NewRelay("127.0.0.1:0", 0), files), reg, files
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, reg, _ := newTestServer(t)

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() { _ = serverSide.Close(); _ = clientSide.Close() })
	reg.Register(registry.NewSession(serverSide, "alice"))

	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Sessions != 1 {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestStateListsUsers(t *testing.T) {
	s, reg, _ := newTestServer(t)

	for _, name := range []string{"zoe", "adam"} {
		serverSide, clientSide := net.Pipe()
		t.Cleanup(func() { _ = serverSide.Close(); _ = clientSide.Close() })
		reg.Register(registry.NewSession(serverSide, name))
	}

	rec := doRequest(t, s, http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp struct {
		Sessions int      `json:"sessions"`
		Users    []string `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sessions != 2 || len(resp.Users) != 2 || resp.Users[0] != "adam" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestStateEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/state")
	if !strings.Contains(rec.Body.String(), `"users":[]`) {
		t.Fatalf("expected empty users array, got %s", rec.Body.String())
	}
}

func TestFileListAndDownload(t *testing.T) {
	s, _, files := newTestServer(t)

	recStored, err := files.Put(context.Background(), "notes.txt", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	list := doRequest(t, s, http.MethodGet, "/api/files")
	if list.Code != http.StatusOK {
		t.Fatalf("list status %d", list.Code)
	}
	var listed []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != recStored.ID || listed[0].Name != "notes.txt" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	dl := doRequest(t, s, http.MethodGet, "/api/files/"+recStored.ID)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status %d", dl.Code)
	}
	if dl.Body.String() != "hello" {
		t.Fatalf("unexpected bytes: %q", dl.Body.String())
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Fatalf("unexpected disposition: %q", cd)
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/files/no-such-id")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}
