// Package chat owns the socket lifecycle of one chat view: connect, reconnect with
// backoff, teardown, and the ordered message log built from inbound envelopes.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/chat-session/internal"
)

var (
	// ErrNotOpen is returned by Send when the connection is not open
	ErrNotOpen = errors.New("connection is not open")
	// ErrEmptyMessage is returned for blank user input
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotFailed is returned by Retry unless the controller is closed-failed
	ErrNotFailed = errors.New("connection has not failed")
	// ErrShutdown is returned by every operation after Shutdown
	ErrShutdown = errors.New("controller is shut down")
)

const outboxSize = 64

// EventKind identifies what an Event reports
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventMessageAppended
	EventDeliveryUpdated
	EventConnectionStatus
	EventProtocolError
)

// Event is published to the Observer for every transition, append and delivery update
type Event struct {
	Kind    EventKind
	State   State
	Index   int // position in the message log
	Message internal.ChatMessage
	Status  string        // connection_status text
	Delay   time.Duration // time until the next attempt in closed-retrying
	Attempt int
	Err     error
}

// Observer receives events in order on the controller's goroutine. It must not call
// back into the controller synchronously.
type Observer func(Event)

// DeliveryRecorder persists outbound messages and their delivery status
type DeliveryRecorder interface {
	RecordOutbound(sessionID string, msg internal.ChatMessage) (int64, error)
	UpdateDelivery(id int64, status internal.DeliveryStatus) error
}

// Option configures a Controller
type Option func(*Controller)

// WithReconnectPolicy overrides the default backoff policy
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithClock replaces the wall clock used for reconnect timers
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithObserver registers the event callback
func WithObserver(obs Observer) Option {
	return func(c *Controller) {
		c.observer = obs
	}
}

// WithRecorder journals outbound messages
func WithRecorder(r DeliveryRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithIDGenerator replaces uuid.NewString for new session ids
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		c.newID = gen
	}
}

// OpenOption configures a single Open call
type OpenOption func(*openConfig)

type openConfig struct {
	history []internal.ChatMessage
	initial string
}

// WithHistory seeds the message log before the first dial
func WithHistory(msgs []internal.ChatMessage) OpenOption {
	return func(o *openConfig) {
		o.history = msgs
	}
}

// WithInitialMessage sends text right after the connection first opens
func WithInitialMessage(text string) OpenOption {
	return func(o *openConfig) {
		o.initial = text
	}
}

type outbound struct {
	logGen uint64
	index  int
	env    internal.OutboundEnvelope
}

// Controller holds at most one live gateway connection and the message log of one
// session. All state is owned by a single goroutine; public methods hand it closures.
type Controller struct {
	userID   string
	dialer   Dialer
	policy   ReconnectPolicy
	clock    Clock
	observer Observer
	recorder DeliveryRecorder
	newID    func() string

	cmds         chan func()
	quit         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once

	// owned by run
	state          State
	sessionID      string
	messages       []internal.ChatMessage
	deliveryIDs    map[int]int64
	logGen         uint64
	attempt        int
	gen            uint64
	conn           Conn
	outbox         chan outbound
	dialCancel     context.CancelFunc
	timer          Timer
	pendingInitial string
	lastErr        error
}

// New creates a controller that speaks for userID and starts its goroutine
func New(userID string, dialer Dialer, opts ...Option) (*Controller, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, internal.ErrNoIdentity
	}
	c := &Controller{
		userID:      userID,
		dialer:      dialer,
		policy:      DefaultReconnectPolicy(),
		clock:       realClock{},
		newID:       uuid.NewString,
		cmds:        make(chan func()),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		deliveryIDs: make(map[int]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c, nil
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the controller goroutine and waits for it
func (c *Controller) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrShutdown
	}
	<-finished
	return nil
}

// post hands fn to the controller goroutine without waiting for it to run
func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// Open connects to sessionID, tearing down any previous connection first. Opening a
// different session starts a fresh message log.
func (c *Controller) Open(sessionID string, opts ...OpenOption) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return c.do(func() {
		c.teardown("reconnecting")
		if sessionID != c.sessionID {
			c.resetLog()
			c.sessionID = sessionID
		}
		if cfg.history != nil {
			c.resetLog()
			for _, msg := range cfg.history {
				c.appendMessage(msg)
			}
		}
		c.pendingInitial = strings.TrimSpace(cfg.initial)
		c.attempt = 0
		c.lastErr = nil
		c.dial()
	})
}

// Start begins a new session with question as its first message and returns the new id
func (c *Controller) Start(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyMessage
	}
	sessionID := c.newID()
	if err := c.Open(sessionID, WithInitialMessage(question)); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Send appends text to the log as a pending user message and writes it to the socket
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	var err error
	if doErr := c.do(func() {
		if c.state != StateOpen {
			err = ErrNotOpen
			return
		}
		c.send(text)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Close tears everything down and lands in closed-clean from any state
func (c *Controller) Close(reason string) error {
	return c.do(func() {
		c.teardown(reason)
		c.pendingInitial = ""
		c.setState(Event{State: StateClosedClean})
	})
}

// Retry restarts a failed connection with a fresh attempt budget
func (c *Controller) Retry() error {
	var err error
	if doErr := c.do(func() {
		if c.state != StateClosedFailed {
			err = ErrNotFailed
			return
		}
		c.attempt = 0
		c.lastErr = nil
		c.dial()
	}); doErr != nil {
		return doErr
	}
	return err
}

// State returns the current connection state
func (c *Controller) State() State {
	s := StateClosedClean
	_ = c.do(func() { s = c.state })
	return s
}

// SessionID returns the id of the session being shown
func (c *Controller) SessionID() string {
	var id string
	_ = c.do(func() { id = c.sessionID })
	return id
}

// Messages returns a copy of the message log
func (c *Controller) Messages() []internal.ChatMessage {
	var out []internal.ChatMessage
	_ = c.do(func() {
		out = make([]internal.ChatMessage, len(c.messages))
		copy(out, c.messages)
	})
	return out
}

// LastError returns the error behind the most recent connection failure
func (c *Controller) LastError() error {
	var err error
	_ = c.do(func() { err = c.lastErr })
	return err
}

// Shutdown closes the connection and stops the controller goroutine
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		_ = c.Close("shutdown")
		close(c.quit)
	})
	<-c.done
}

func (c *Controller) publish(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

func (c *Controller) setState(ev Event) {
	if c.state == ev.State && ev.Err == nil {
		return
	}
	c.state = ev.State
	ev.Kind = EventStateChanged
	internal.LogDebug("Session %s: %s", c.sessionID, ev.State)
	c.publish(ev)
}

func (c *Controller) resetLog() {
	c.messages = nil
	c.deliveryIDs = make(map[int]int64)
	c.logGen++
}

func (c *Controller) appendMessage(msg internal.ChatMessage) int {
	index := len(c.messages)
	c.messages = append(c.messages, msg)
	c.publish(Event{Kind: EventMessageAppended, State: c.state, Index: index, Message: msg})
	return index
}

// teardown invalidates the current generation, so late dial results, frames and timers
// from it are dropped
func (c *Controller) teardown(reason string) {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.outbox != nil {
		close(c.outbox)
		c.outbox = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(reason); err != nil {
			internal.LogDebug("Closing connection: %v", err)
		}
		c.conn = nil
	}
}

func (c *Controller) dial() {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel
	c.setState(Event{State: StateConnecting, Attempt: c.attempt})

	sessionID := c.sessionID
	go func() {
		conn, err := c.dialer.Dial(ctx, sessionID)
		c.post(func() { c.onDialResult(gen, conn, err) })
	}()
}

func (c *Controller) onDialResult(gen uint64, conn Conn, err error) {
	if gen != c.gen {
		if conn != nil {
			_ = conn.Close("stale")
		}
		return
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if err != nil {
		internal.LogDebug("Dial %s failed: %v", c.sessionID, err)
		c.connectionLost(err)
		return
	}

	c.conn = conn
	c.outbox = make(chan outbound, outboxSize)
	c.attempt = 0
	c.lastErr = nil
	go c.readLoop(gen, conn)
	go c.writeLoop(conn, c.outbox)
	c.setState(Event{State: StateOpen})

	if c.pendingInitial != "" {
		text := c.pendingInitial
		c.pendingInitial = ""
		c.send(text)
	}
}

// connectionLost schedules the next attempt or gives up
func (c *Controller) connectionLost(err error) {
	c.lastErr = err
	if c.attempt < c.policy.MaxAttempts {
		delay := c.policy.Delay(c.attempt)
		c.attempt++
		gen := c.gen
		c.timer = c.clock.AfterFunc(delay, func() {
			c.post(func() { c.onRetryTimer(gen) })
		})
		c.setState(Event{State: StateClosedRetrying, Delay: delay, Attempt: c.attempt, Err: err})
		return
	}
	internal.LogWarn("Giving up on session %s after %d attempt(s): %v", c.sessionID, c.attempt, err)
	c.setState(Event{
		State:   StateClosedFailed,
		Attempt: c.attempt,
		Err:     &internal.ConnectionError{SessionID: c.sessionID, Attempts: c.attempt + 1, Err: err},
	})
}

func (c *Controller) onRetryTimer(gen uint64) {
	if gen != c.gen || c.state != StateClosedRetrying {
		return
	}
	c.timer = nil
	c.dial()
}

func (c *Controller) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			c.post(func() { c.onReadError(gen, err) })
			return
		}
		c.post(func() { c.onFrame(gen, data) })
	}
}

func (c *Controller) writeLoop(conn Conn, outbox <-chan outbound) {
	for item := range outbox {
		err := conn.WriteJSON(item.env)
		status := internal.DeliverySent
		if err != nil {
			status = internal.DeliveryFailed
			internal.LogWarn("Failed to send message: %v", err)
		}
		c.post(func() { c.updateDelivery(item.logGen, item.index, status) })
	}
}

func (c *Controller) onReadError(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	internal.LogDebug("Connection to %s lost: %v", c.sessionID, err)
	c.teardown("connection lost")
	c.connectionLost(err)
}

func (c *Controller) onFrame(gen uint64, data []byte) {
	if gen != c.gen {
		return
	}
	env, err := internal.ParseInboundEnvelope(data)
	if err != nil {
		internal.LogWarn("Discarding malformed frame: %v", err)
		c.publish(Event{Kind: EventProtocolError, State: c.state, Err: err})
		return
	}

	switch env.Type {
	case internal.EnvelopeMessage:
		c.appendMessage(env.AssistantMessage())
	case internal.EnvelopeConnectionStatus:
		internal.LogDebug("Connection status for %s: %s", c.sessionID, env.StatusText())
		c.publish(Event{Kind: EventConnectionStatus, State: c.state, Status: env.StatusText()})
	default:
		internal.LogWarn("Ignoring envelope with unknown type %q", env.Type)
	}
}

func (c *Controller) send(text string) {
	msg := internal.ChatMessage{Role: internal.RoleUser, Content: text, Status: internal.DeliveryPending}
	index := c.appendMessage(msg)

	if c.recorder != nil {
		id, err := c.recorder.RecordOutbound(c.sessionID, msg)
		if err != nil {
			internal.LogWarn("Failed to journal outbound message: %v", err)
		} else {
			c.deliveryIDs[index] = id
		}
	}

	item := outbound{
		logGen: c.logGen,
		index:  index,
		env: internal.OutboundEnvelope{
			UserID:    c.userID,
			UserInput: text,
			SessionID: c.sessionID,
		},
	}
	select {
	case c.outbox <- item:
	default:
		internal.LogWarn("Outbox full, dropping message")
		c.updateDelivery(c.logGen, index, internal.DeliveryFailed)
	}
}

func (c *Controller) updateDelivery(logGen uint64, index int, status internal.DeliveryStatus) {
	if logGen != c.logGen || index >= len(c.messages) {
		return
	}
	c.messages[index].Status = status
	c.publish(Event{Kind: EventDeliveryUpdated, State: c.state, Index: index, Message: c.messages[index]})

	if c.recorder != nil {
		if id, ok := c.deliveryIDs[index]; ok {
			if err := c.recorder.UpdateDelivery(id, status); err != nil {
				internal.LogWarn("Failed to journal delivery status: %v", err)
			}
		}
	}
}
