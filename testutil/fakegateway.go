package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iksnae/chat-session/internal"
)

// FakeGateway is an in-process Socket Gateway. It records outbound envelopes and lets
// tests push inbound frames or drop the connection.
type FakeGateway struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	paths  []string
	reject int
	dials  int

	received  chan internal.OutboundEnvelope
	connected chan string
}

// NewFakeGateway starts a fake gateway that is shut down when the test ends
func NewFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()
	g := &FakeGateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		received:  make(chan internal.OutboundEnvelope, 64),
		connected: make(chan string, 16),
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Close)
	return g
}

// URL returns the ws:// base URL of the gateway
func (g *FakeGateway) URL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

// RejectNext makes the next n handshakes fail with 503
func (g *FakeGateway) RejectNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reject = n
}

// Dials returns the number of handshakes attempted so far
func (g *FakeGateway) Dials() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dials
}

// Paths returns the request paths of accepted connections
func (g *FakeGateway) Paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

func (g *FakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.dials++
	if g.reject > 0 {
		g.reject--
		g.mu.Unlock()
		http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
		return
	}
	g.mu.Unlock()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.paths = append(g.paths, r.URL.Path)
	g.mu.Unlock()

	select {
	case g.connected <- r.URL.Path:
	default:
	}

	go g.readLoop(conn)
}

func (g *FakeGateway) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env internal.OutboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case g.received <- env:
		default:
		}
	}
}

// WaitConnected blocks until a connection is accepted and returns its path
func (g *FakeGateway) WaitConnected(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case path := <-g.connected:
		return path
	case <-time.After(timeout):
		t.Fatalf("no connection within %v", timeout)
		return ""
	}
}

// WaitEnvelope blocks until an outbound envelope arrives
func (g *FakeGateway) WaitEnvelope(t *testing.T, timeout time.Duration) internal.OutboundEnvelope {
	t.Helper()
	select {
	case env := <-g.received:
		return env
	case <-time.After(timeout):
		t.Fatalf("no envelope within %v", timeout)
		return internal.OutboundEnvelope{}
	}
}

// Send writes v as JSON on the most recent connection
func (g *FakeGateway) Send(t *testing.T, v interface{}) {
	t.Helper()
	g.SendRaw(t, JSONMarshal(t, v))
}

// SendRaw writes data as a text frame on the most recent connection
func (g *FakeGateway) SendRaw(t *testing.T, data []byte) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) == 0 {
		t.Fatal("no gateway connection to send on")
	}
	if err := g.conns[len(g.conns)-1].WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("gateway write failed: %v", err)
	}
}

// Drop closes the most recent connection with code
func (g *FakeGateway) Drop(code int, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) == 0 {
		return
	}
	conn := g.conns[len(g.conns)-1]
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// Close closes every connection and stops the server
func (g *FakeGateway) Close() {
	g.mu.Lock()
	for _, conn := range g.conns {
		_ = conn.Close()
	}
	g.conns = nil
	g.mu.Unlock()
	g.server.Close()
}
