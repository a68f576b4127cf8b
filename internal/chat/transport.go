package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live socket connection to the gateway
type Conn interface {
	// Read blocks until the next data frame arrives or the connection ends
	Read() ([]byte, error)
	WriteJSON(v interface{}) error
	// Close sends a normal close frame carrying reason and releases the connection
	Close(reason string) error
}

// Dialer opens a connection for a session id
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// WebSocketDialer dials <BaseURL>/<session id> with gorilla/websocket
type WebSocketDialer struct {
	BaseURL          string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// NewWebSocketDialer creates a dialer for the gateway at baseURL
func NewWebSocketDialer(baseURL string, handshakeTimeout, writeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		BaseURL:          baseURL,
		HandshakeTimeout: handshakeTimeout,
		WriteTimeout:     writeTimeout,
	}
}

// URLFor returns the socket URL of a session
func (d *WebSocketDialer) URLFor(sessionID string) string {
	return strings.TrimSuffix(d.BaseURL, "/") + "/" + url.PathEscape(sessionID)
}

// Dial performs the websocket handshake
func (d *WebSocketDialer) Dial(ctx context.Context, sessionID string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, d.URLFor(sessionID), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &wsConn{conn: ws, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	return c.conn.Close()
}
