// Package sse is the server-sent events push transport.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"chatcollab/internal/event"
	"chatcollab/internal/syncclient"
)

// ErrStreamClosed is reported when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// StatusError is a non-2xx answer to the stream request.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET stream failed: %s", e.Status)
}

type Transport struct {
	URL    string
	HTTP   *http.Client
	Logger *slog.Logger
}

func New(url string, httpClient *http.Client, logger *slog.Logger) *Transport {
	return &Transport{URL: url, HTTP: httpClient, Logger: logger}
}

// Open starts streaming on a new goroutine.
func (t *Transport) Open(ctx context.Context, cb syncclient.Callbacks) syncclient.Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{cancel: cancel, cb: cb, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		t.run(ctx, c)
	}()
	return c
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.Logger
}

func (t *Transport) run(ctx context.Context, c *conn) {
	logger := t.logger().With("transport", "sse", "url", t.URL)
	httpClient := t.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.fail(ctx, &StatusError{Code: resp.StatusCode, Status: resp.Status})
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		logger.Warn("unexpected content type", "content_type", ct)
	}

	logger.Debug("stream open")
	c.emit(ctx, func() { c.cb.OnOpen() })

	err = ReadFrames(resp.Body, func(frame Frame) bool {
		ev, err := event.Decode(frame.Event, []byte(frame.Data))
		switch {
		case errors.Is(err, event.ErrUnknownKind):
			logger.Debug("ignoring frame", "event", frame.Event)
		case err != nil:
			c.emit(ctx, func() { c.cb.OnInvalid(err) })
		default:
			c.emit(ctx, func() { c.cb.OnEvent(ev) })
		}
		return ctx.Err() == nil
	})
	if errors.Is(err, io.EOF) || err == nil {
		err = ErrStreamClosed
	}
	c.fail(ctx, err)
}

type conn struct {
	cancel context.CancelFunc
	cb     syncclient.Callbacks
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	failed bool
}

// emit calls fn unless the connection was closed or already failed.
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

// Close stops the stream. No callbacks fire after it returns.
func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

// Done is closed once the streaming goroutine has exited.
func (c *conn) Done() <-chan struct{} {
	return c.done
}
