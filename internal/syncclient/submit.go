package syncclient

import (
	"context"
	"errors"
	"strings"

	"chatcollab/internal/metrics"
)

var errNoSender = errors.New("no sender configured")

// queuedSubmit is a message waiting for input to become enabled.
type queuedSubmit struct {
	ctx  context.Context
	text string
	done chan error
}

// Queue holds text until input is enabled, then sends it. Queued messages go out one at a
// time in call order. The channel receives the send result; entries whose ctx ends before
// they are sent are dropped and receive ctx's error.
func (c *Client) Queue(ctx context.Context, text string) <-chan error {
	done := make(chan error, 1)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		done <- nil
		return done
	}
	c.loop.Post(func() {
		c.queued = append(c.queued, queuedSubmit{ctx: ctx, text: trimmed, done: done})
		c.flushQueued()
	})
	return done
}

// SubmitWait queues text and blocks until it has been sent or ctx ends.
func (c *Client) SubmitWait(ctx context.Context, text string) error {
	select {
	case err := <-c.Queue(ctx, text):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) flushQueued() {
	for len(c.queued) > 0 && c.inputEnabled() {
		next := c.queued[0]
		c.queued = c.queued[1:]
		if err := next.ctx.Err(); err != nil {
			next.done <- err
			continue
		}
		c.send(next.text, next.done)
	}
}

func (c *Client) submit(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !c.inputEnabled() {
		c.logger.Debug("submit ignored", "empty", trimmed == "", "state", c.state, "sending", c.sending)
		return
	}
	c.send(trimmed, nil)
}

// send requires enabled input; done, when set, receives the result.
func (c *Client) send(text string, done chan<- error) {
	c.sending = true
	c.renderConnection()

	out := Outbound{
		RequestID:  c.requestID(),
		Text:       text,
		SenderName: c.username,
	}
	c.goFn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		err := errNoSender
		if c.sender != nil {
			err = c.sender.Send(ctx, out)
		}
		c.loop.Post(func() { c.finishSend(out, err, done) })
	})
}

// finishSend runs regardless of connection generation: the in-flight flag must always clear.
func (c *Client) finishSend(out Outbound, err error, done chan<- error) {
	c.sending = false
	if err != nil {
		serr := &SendError{Err: err}
		c.logger.Error("message rejected", "request_id", out.RequestID, "error", serr)
		metrics.ObserveSend(false)
		c.appendSystem("Failed to send message: " + err.Error())
	} else {
		c.logger.Debug("message sent", "request_id", out.RequestID)
		metrics.ObserveSend(true)
	}
	if done != nil {
		done <- err
	}
	c.renderConnection()
	c.flushQueued()
}
