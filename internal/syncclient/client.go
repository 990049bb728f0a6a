// Package syncclient keeps a local mirror of a live chat session in step with the server's
// event stream and reports every change to a Renderer.
//
// All state is owned by one Client and touched only from its Loop. Transport goroutines,
// HTTP requests and timers post closures onto the loop; closures tied to a connection carry
// that connection's generation and are dropped once the client has moved on.
package syncclient

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
	"chatcollab/internal/metrics"
)

const (
	// DefaultRetryDelay is the fixed pause before reconnecting after a transport failure.
	DefaultRetryDelay     = 5 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultUsername       = "You"

	emptyMessageText = "(empty message)"
	historyErrorText = "Could not load chat history."
)

type Config struct {
	Transport Transport
	History   HistoryFetcher
	Sender    Sender
	Renderer  Renderer
	Loop      Loop
	Clock     Clock
	Logger    *slog.Logger

	Username string
	Agents   []string

	RetryDelay     time.Duration
	RequestTimeout time.Duration

	// Go runs background work (history pulls, sends). Defaults to a new goroutine.
	Go func(func())
	// NewRequestID defaults to uuid.NewString.
	NewRequestID func() string
}

type Client struct {
	transport Transport
	history   HistoryFetcher
	sender    Sender
	renderer  Renderer
	loop      Loop
	clock     Clock
	logger    *slog.Logger
	goFn      func(func())
	requestID func() string

	retryDelay     time.Duration
	requestTimeout time.Duration

	username string

	state      chat.ConnectionState
	gen        uint64
	conn       Conn
	cancelConn context.CancelFunc
	retry      Timer
	retrySeq   uint64
	sending    bool
	queued     []queuedSubmit

	messages     []chat.Message
	participants []chat.Participant
	byKey        map[string]int
	typing       map[string]struct{}
	stage        chat.StageInfo
}

// New builds a disconnected client. Nothing is opened until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}
	if cfg.History == nil {
		return nil, ErrMissingHistory
	}
	if cfg.Loop == nil {
		return nil, ErrMissingLoop
	}
	c := &Client{
		transport:      cfg.Transport,
		history:        cfg.History,
		sender:         cfg.Sender,
		renderer:       cfg.Renderer,
		loop:           cfg.Loop,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		goFn:           cfg.Go,
		requestID:      cfg.NewRequestID,
		retryDelay:     cfg.RetryDelay,
		requestTimeout: cfg.RequestTimeout,
		state:          chat.Disconnected,
		typing:         map[string]struct{}{},
	}
	if c.renderer == nil {
		c.renderer = nopRenderer{}
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.goFn == nil {
		c.goFn = func(f func()) { go f() }
	}
	if c.requestID == nil {
		c.requestID = uuid.NewString
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}

	c.username = strings.TrimSpace(cfg.Username)
	if c.username == "" {
		c.username = DefaultUsername
	}
	c.participants, c.byKey = buildParticipants(c.username, cfg.Agents)

	c.loop.Post(c.renderParticipants)
	return c, nil
}

func buildParticipants(username string, agents []string) ([]chat.Participant, map[string]int) {
	participants := []chat.Participant{{Key: username, Name: username, Role: chat.RoleUser, Status: chat.StatusIdle}}
	byKey := map[string]int{strings.ToLower(username): 0}
	for _, agent := range agents {
		name := strings.TrimSpace(agent)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = len(participants)
		participants = append(participants, chat.Participant{Key: name, Name: name, Role: chat.RoleAgent, Status: chat.StatusIdle})
	}
	return participants, byKey
}

// Connect opens the transport unless a connection is already live or being opened.
func (c *Client) Connect() {
	c.loop.Post(func() { c.connect("manual") })
}

// Disconnect closes the transport and cancels any scheduled retry.
func (c *Client) Disconnect() {
	c.loop.Post(c.disconnect)
}

// Reconnect drops the current connection and opens a fresh one.
func (c *Client) Reconnect() {
	c.loop.Post(func() {
		c.disconnect()
		c.connect("manual")
	})
}

// Submit sends text as the local user. Empty text or disabled input makes it a no-op.
func (c *Client) Submit(text string) {
	c.loop.Post(func() { c.submit(text) })
}

func (c *Client) connect(trigger string) {
	if c.state == chat.Connecting || c.state == chat.Connected {
		c.logger.Debug("connect ignored", "state", c.state, "trigger", trigger)
		return
	}
	c.stopRetry()
	c.gen++
	gen := c.gen
	c.setState(chat.Connecting)
	metrics.ObserveConnect(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelConn = cancel
	c.conn = c.transport.Open(ctx, Callbacks{
		OnOpen: func() {
			c.post(gen, c.handleOpen)
		},
		OnEvent: func(ev event.Event) {
			c.post(gen, func() { c.apply(ev) })
		},
		OnInvalid: func(err error) {
			c.post(gen, func() { c.dropInvalid(err) })
		},
		OnError: func(err error) {
			c.post(gen, func() { c.handleTransportError(err) })
		},
	})
}

// post schedules fn on the loop, dropping it if the connection generation has changed.
func (c *Client) post(gen uint64, fn func()) {
	c.loop.Post(func() {
		if gen != c.gen {
			c.logger.Debug("discarding stale callback", "generation", gen, "current", c.gen)
			return
		}
		fn()
	})
}

func (c *Client) handleOpen() {
	if c.state != chat.Connecting {
		return
	}
	c.setState(chat.Connected)
	c.resetStatuses()
	c.fetchHistory(c.gen)
	c.flushQueued()
}

func (c *Client) fetchHistory(gen uint64) {
	started := c.clock.Now()
	c.goFn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		history, err := c.history.FetchHistory(ctx)
		c.post(gen, func() { c.applyHistory(history, err, started) })
	})
}

func (c *Client) handleTransportError(err error) {
	terr := &TransportError{Err: err}
	c.logger.Warn("connection lost", "error", terr, "retry_in", c.retryDelay)
	metrics.ObserveTransportError()
	c.closeConn()
	c.gen++
	c.setState(chat.Disconnected)
	c.scheduleRetry()
}

func (c *Client) disconnect() {
	c.stopRetry()
	c.closeConn()
	c.gen++
	c.setState(chat.Disconnected)
}

func (c *Client) closeConn() {
	if c.cancelConn != nil {
		c.cancelConn()
		c.cancelConn = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("close transport", "error", err)
		}
		c.conn = nil
	}
}

// scheduleRetry arms a single reconnect; a pending one is left alone.
func (c *Client) scheduleRetry() {
	if c.retry != nil {
		return
	}
	c.retrySeq++
	seq := c.retrySeq
	c.retry = c.clock.AfterFunc(c.retryDelay, func() {
		c.loop.Post(func() {
			if seq != c.retrySeq || c.retry == nil {
				return
			}
			c.retry = nil
			c.connect("retry")
		})
	})
}

func (c *Client) stopRetry() {
	if c.retry == nil {
		return
	}
	c.retry.Stop()
	c.retry = nil
	c.retrySeq++
}

func (c *Client) setState(state chat.ConnectionState) {
	if c.state != state {
		c.logger.Info("connection state", "from", c.state, "to", state)
	}
	c.state = state
	metrics.SetConnectionState(string(state))
	c.renderConnection()
}

func (c *Client) inputEnabled() bool {
	return c.state == chat.Connected && !c.sending
}

func (c *Client) renderConnection() {
	c.renderer.UpdateConnection(chat.ConnectionView{
		State:        c.state,
		InputEnabled: c.inputEnabled(),
		Sending:      c.sending,
	})
}

func (c *Client) renderParticipants() {
	for _, p := range c.participants {
		c.renderer.UpdateParticipant(p)
	}
}
