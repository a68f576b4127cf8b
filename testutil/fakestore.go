package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iksnae/chat-session/internal"
)

// FakeStore is an in-process Session Store serving the two read endpoints
type FakeStore struct {
	server *httptest.Server

	mu         sync.Mutex
	sessions   map[string][]internal.Session
	listStatus int
	getStatus  int
	rawList    string
	requests   []string
}

// NewFakeStore starts a fake store that is shut down when the test ends
func NewFakeStore(t *testing.T) *FakeStore {
	t.Helper()
	fs := &FakeStore{sessions: make(map[string][]internal.Session)}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/api/chat-sessions", fs.handleList)
	e.GET("/api/chat-sessions/:id", fs.handleGet)

	fs.server = httptest.NewServer(e)
	t.Cleanup(fs.server.Close)
	return fs
}

// URL returns the base URL of the fake store
func (fs *FakeStore) URL() string {
	return fs.server.URL
}

// AddSession stores a session for userID
func (fs *FakeStore) AddSession(userID string, session internal.Session) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sessions[userID] = append(fs.sessions[userID], session)
}

// FailList makes the listing endpoint answer with status
func (fs *FakeStore) FailList(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.listStatus = status
}

// FailGet makes the single-session endpoint answer with status
func (fs *FakeStore) FailGet(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.getStatus = status
}

// SetRawList makes the listing endpoint answer 200 with body verbatim
func (fs *FakeStore) SetRawList(body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rawList = body
}

// Requests returns the request URIs seen so far
func (fs *FakeStore) Requests() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.requests...)
}

func (fs *FakeStore) handleList(c echo.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests = append(fs.requests, c.Request().RequestURI)

	if fs.listStatus != 0 {
		return c.JSON(fs.listStatus, map[string]string{"detail": "list failed"})
	}
	if fs.rawList != "" {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(fs.rawList))
	}
	sessions := fs.sessions[c.QueryParam("user_id")]
	if sessions == nil {
		sessions = []internal.Session{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (fs *FakeStore) handleGet(c echo.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests = append(fs.requests, c.Request().RequestURI)

	if fs.getStatus != 0 {
		return c.JSON(fs.getStatus, map[string]string{"detail": "get failed"})
	}
	id := c.Param("id")
	for _, s := range fs.sessions[c.QueryParam("user_id")] {
		if s.ID == id {
			return c.JSON(http.StatusOK, s)
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"detail": "Session not found"})
}
