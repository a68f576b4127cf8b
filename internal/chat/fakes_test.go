package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/iksnae/chat-session/internal"
)

var errRefused = errors.New("connection refused")

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock never fires on its own; tests call FireNext
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// FireNext runs the oldest active timer and reports whether there was one
func (c *fakeClock) FireNext() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.mu.Unlock()
	next.f()
	return true
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) Timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []internal.OutboundEnvelope
	reason   string
	writeErr error
	readErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env internal.OutboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// serverClose ends the connection as if the gateway went away
func (c *fakeConn) serverClose(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) push(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) Written() []internal.OutboundEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]internal.OutboundEnvelope(nil), c.written...)
}

func (c *fakeConn) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) SetWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// fakeDialer fails while failures remain, then hands out fresh fakeConns
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	failAll  bool
	ids      []string
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, sessionID string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, sessionID)
	if d.failAll {
		return nil, errRefused
	}
	if d.failures > 0 {
		d.failures--
		return nil, errRefused
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

func (d *fakeDialer) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) Conns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) SetFailAll(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = v
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Kind(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) States() []State {
	var out []State
	for _, ev := range l.Kind(EventStateChanged) {
		out = append(out, ev.State)
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]internal.DeliveryStatus
}

func (r *fakeRecorder) RecordOutbound(sessionID string, msg internal.ChatMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		r.records = make(map[int64]internal.DeliveryStatus)
	}
	r.nextID++
	r.records[r.nextID] = msg.Status
	return r.nextID, nil
}

func (r *fakeRecorder) UpdateDelivery(id int64, status internal.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = status
	return nil
}

func (r *fakeRecorder) Status(id int64) internal.DeliveryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}
