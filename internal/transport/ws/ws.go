// Package ws is the WebSocket push transport. It also carries outbound user messages over the
// same socket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"chatcollab/internal/event"
	"chatcollab/internal/syncclient"
)

const (
	frameJoin        = "join"
	frameJoined      = "joined"
	frameUserMessage = "user_message"
	frameReceived    = "message_received"
)

var (
	ErrNotConnected = errors.New("websocket not connected")
	ErrClosed       = errors.New("websocket closed by server")
)

// RejectedError is a server error frame answering one of our requests.
type RejectedError struct {
	RequestID string
	Message   string
}

func (e *RejectedError) Error() string {
	return e.Message
}

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
}

type userMessagePayload struct {
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
}

// Transport dials one socket per Open. The most recently opened socket is used by Send.
type Transport struct {
	URL       string
	Origin    string
	SessionID string
	Logger    *slog.Logger

	mu     sync.Mutex
	active *conn
}

func New(url, origin, sessionID string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{URL: url, Origin: origin, SessionID: sessionID, Logger: logger}
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.Logger
}

func (t *Transport) Open(ctx context.Context, cb syncclient.Callbacks) syncclient.Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{
		cancel:  cancel,
		cb:      cb,
		done:    make(chan struct{}),
		pending: map[string]chan error{},
		logger:  t.logger().With("transport", "ws", "url", t.URL),
	}
	go func() {
		defer close(c.done)
		t.run(ctx, c)
	}()
	return c
}

func (t *Transport) run(ctx context.Context, c *conn) {
	cfg, err := websocket.NewConfig(t.URL, t.Origin)
	if err != nil {
		c.fail(ctx, fmt.Errorf("websocket config: %w", err))
		return
	}
	sock, err := cfg.DialContext(ctx)
	if err != nil {
		c.fail(ctx, fmt.Errorf("dial websocket: %w", err))
		return
	}
	c.enc = json.NewEncoder(sock)

	stop := context.AfterFunc(ctx, func() { _ = sock.Close() })
	defer stop()
	defer sock.Close()

	join, _ := json.Marshal(joinPayload{SessionID: t.SessionID})
	if err := c.write(frame{Type: frameJoin, Payload: join}); err != nil {
		c.fail(ctx, fmt.Errorf("send join: %w", err))
		return
	}

	t.setActive(c)
	defer t.clearActive(c)
	c.emit(ctx, func() { c.cb.OnOpen() })

	decoder := json.NewDecoder(sock)
	for {
		var in frame
		if err := decoder.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			c.failPending(ErrNotConnected)
			c.fail(ctx, err)
			return
		}
		c.handle(ctx, in)
	}
}

func (t *Transport) setActive(c *conn) {
	t.mu.Lock()
	t.active = c
	t.mu.Unlock()
}

func (t *Transport) clearActive(c *conn) {
	t.mu.Lock()
	if t.active == c {
		t.active = nil
	}
	t.mu.Unlock()
}

// Send emits a user_message frame on the live socket and waits for the server to acknowledge
// or reject it.
func (t *Transport) Send(ctx context.Context, msg syncclient.Outbound) error {
	t.mu.Lock()
	c := t.active
	t.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(userMessagePayload{
		SessionID:  t.SessionID,
		Text:       msg.Text,
		SenderName: msg.SenderName,
	})
	if err != nil {
		return err
	}
	ack, err := c.await(msg.RequestID)
	if err != nil {
		return err
	}
	if err := c.write(frame{Type: frameUserMessage, RequestID: msg.RequestID, Payload: payload}); err != nil {
		c.forget(msg.RequestID)
		return fmt.Errorf("write user_message: %w", err)
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		c.forget(msg.RequestID)
		return ctx.Err()
	}
}

type conn struct {
	cancel context.CancelFunc
	cb     syncclient.Callbacks
	done   chan struct{}
	logger *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	closed  bool
	failed  bool
	drained bool // reader stopped; pending sends were failed
	pending map[string]chan error
	order   []string
}

func (c *conn) handle(ctx context.Context, in frame) {
	switch in.Type {
	case frameJoined:
		c.logger.Debug("joined session", "payload", string(in.Payload))
	case frameReceived:
		c.resolve(in.RequestID, nil)
	case string(event.KindServerError):
		if in.RequestID != "" && c.resolve(in.RequestID, rejection(in)) {
			return
		}
		c.dispatch(ctx, in)
	default:
		c.dispatch(ctx, in)
	}
}

func (c *conn) dispatch(ctx context.Context, in frame) {
	ev, err := event.Decode(in.Type, in.Payload)
	switch {
	case errors.Is(err, event.ErrUnknownKind):
		c.logger.Debug("ignoring frame", "type", in.Type)
	case err != nil:
		c.emit(ctx, func() { c.cb.OnInvalid(err) })
	default:
		c.emit(ctx, func() { c.cb.OnEvent(ev) })
	}
}

func rejection(in frame) error {
	ev, err := event.Decode(in.Type, in.Payload)
	if se, ok := ev.(event.ServerError); ok && err == nil {
		return &RejectedError{RequestID: in.RequestID, Message: se.Message}
	}
	return &RejectedError{RequestID: in.RequestID, Message: strings.TrimSpace(string(in.Payload))}
}

func (c *conn) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(f)
}

// await registers a pending send. It fails once the reader has given up or the connection
// is closed, since nothing would ever settle the send.
func (c *conn) await(requestID string) (chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drained || c.closed || c.failed {
		return nil, ErrNotConnected
	}
	ch := make(chan error, 1)
	c.pending[requestID] = ch
	c.order = append(c.order, requestID)
	return ch, nil
}

func (c *conn) forget(requestID string) {
	c.mu.Lock()
	c.dropLocked(requestID)
	c.mu.Unlock()
}

func (c *conn) dropLocked(requestID string) {
	delete(c.pending, requestID)
	for i, id := range c.order {
		if id == requestID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// resolve completes a pending send. Acks without a request id settle the oldest send.
func (c *conn) resolve(requestID string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if requestID == "" {
		if len(c.order) == 0 {
			return false
		}
		requestID = c.order[0]
	}
	ch, ok := c.pending[requestID]
	if !ok {
		return false
	}
	c.dropLocked(requestID)
	ch <- err
	return true
}

func (c *conn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	for id, ch := range c.pending {
		ch <- err
		delete(c.pending, id)
	}
	c.order = nil
}

func (c *conn) emit(ctx context.Context, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failed || ctx.Err() != nil {
		return
	}
	fn()
}

func (c *conn) fail(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failed || ctx.Err() != nil {
		return
	}
	c.failed = true
	c.cb.OnError(err)
}

// Close tears the socket down. No callbacks fire after it returns.
func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *conn) Done() <-chan struct{} {
	return c.done
}
