package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentity is returned when a command needs a user id and nobody has logged in
	ErrNoIdentity = errors.New("no identity: run `chat-session login` first")

	// ErrSessionNotFound is returned when the Session Store has no record for an id
	ErrSessionNotFound = errors.New("session not found")
)

// StoreError represents a failed call to the Session Store
type StoreError struct {
	Op         string // "list", "get" or "ping"
	SessionID  string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *StoreError) Error() string {
	target := e.Op
	if e.SessionID != "" {
		target = fmt.Sprintf("%s %s", e.Op, e.SessionID)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("session store error: %s (HTTP %d): %v", target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("session store error: %s: %v", target, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a socket frame that could not be decoded
type ProtocolError struct {
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v (payload %q)", e.Err, e.Payload)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ConnectionError represents the final failure of a socket connection after retries
type ConnectionError struct {
	SessionID string
	Attempts  int
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s] after %d attempt(s): %v", e.SessionID, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CacheError represents errors reading or writing the local session cache
type CacheError struct {
	Path string
	Op   string // e.g. "read", "decode"
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
