package syncclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
	"chatcollab/internal/eventloop"
)

type fakeConn struct {
	ctx    context.Context
	cb     Callbacks
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeTransport struct {
	conns []*fakeConn
}

func (t *fakeTransport) Open(ctx context.Context, cb Callbacks) Conn {
	conn := &fakeConn{ctx: ctx, cb: cb}
	t.conns = append(t.conns, conn)
	return conn
}

func (t *fakeTransport) last() *fakeConn {
	return t.conns[len(t.conns)-1]
}

type fakeHistory struct {
	history event.History
	err     error
	calls   int
}

func (h *fakeHistory) FetchHistory(context.Context) (event.History, error) {
	h.calls++
	return h.history, h.err
}

type fakeSender struct {
	err  error
	sent []Outbound
}

func (s *fakeSender) Send(_ context.Context, msg Outbound) error {
	s.sent = append(s.sent, msg)
	return s.err
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	timer := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) active() []*fakeTimer {
	var out []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped {
			out = append(out, timer)
		}
	}
	return out
}

// fire runs the timer callback the way time.AfterFunc would, once.
func (c *fakeClock) fire(t *fakeTimer) {
	c.now = c.now.Add(t.delay)
	t.stopped = true
	t.fn()
}

type recordingRenderer struct {
	appended     []chat.Message
	resets       [][]chat.Message
	participants []chat.Participant
	stages       []chat.StageInfo
	connections  []chat.ConnectionView
}

func (r *recordingRenderer) AppendMessage(m chat.Message) { r.appended = append(r.appended, m) }
func (r *recordingRenderer) ResetMessages(m []chat.Message) { r.resets = append(r.resets, m) }
func (r *recordingRenderer) UpdateParticipant(p chat.Participant) { r.participants = append(r.participants, p) }
func (r *recordingRenderer) UpdateStage(s chat.StageInfo) { r.stages = append(r.stages, s) }
func (r *recordingRenderer) UpdateConnection(v chat.ConnectionView) {
	r.connections = append(r.connections, v)
}

func (r *recordingRenderer) lastConnection() chat.ConnectionView {
	return r.connections[len(r.connections)-1]
}

type harness struct {
	t         *testing.T
	client    *Client
	loop      *eventloop.Loop
	transport *fakeTransport
	history   *fakeHistory
	sender    *fakeSender
	clock     *fakeClock
	renderer  *recordingRenderer
	deferred  []func()
}

type harnessOption func(*Config, *harness)

// withDeferredWork queues background work instead of running it inline, so tests decide when
// history pulls and sends complete.
func withDeferredWork() harnessOption {
	return func(cfg *Config, h *harness) {
		cfg.Go = func(f func()) { h.deferred = append(h.deferred, f) }
	}
}

func newHarness(t *testing.T, agents []string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		loop:      eventloop.New(),
		transport: &fakeTransport{},
		history:   &fakeHistory{},
		sender:    &fakeSender{},
		clock:     &fakeClock{now: time.UnixMilli(5_000_000)},
		renderer:  &recordingRenderer{},
	}
	cfg := Config{
		Transport:    h.transport,
		History:      h.history,
		Sender:       h.sender,
		Renderer:     h.renderer,
		Loop:         h.loop,
		Clock:        h.clock,
		Username:     "Alice",
		Agents:       agents,
		Go:           func(f func()) { f() },
		NewRequestID: func() string { return "req-1" },
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	client, err := New(cfg)
	require.NoError(t, err)
	h.client = client
	h.loop.Drain()
	return h
}

func (h *harness) drain() {
	h.loop.Drain()
}

func (h *harness) runDeferred() {
	work := h.deferred
	h.deferred = nil
	for _, f := range work {
		f()
	}
	h.drain()
}

// open connects and completes the transport handshake.
func (h *harness) open() *fakeConn {
	h.t.Helper()
	h.client.Connect()
	h.drain()
	conn := h.transport.last()
	conn.cb.OnOpen()
	h.drain()
	return conn
}

func (h *harness) snapshot() Snapshot {
	return h.client.Snapshot()
}

func (h *harness) participant(name string) chat.Participant {
	h.t.Helper()
	for _, p := range h.snapshot().Participants {
		if p.Name == name {
			return p
		}
	}
	h.t.Fatalf("participant %q not found", name)
	return chat.Participant{}
}

func msgEvent(source, text string, ts int64) event.Message {
	return event.Message{Source: source, SenderName: source, Text: text, Timestamp: ts}
}

var errBoom = errors.New("boom")
