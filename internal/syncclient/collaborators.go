package syncclient

import (
	"context"
	"time"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
)

// Renderer receives one-way notifications about state changes.
type Renderer interface {
	AppendMessage(chat.Message)
	// ResetMessages replaces the whole log, used when history arrives.
	ResetMessages([]chat.Message)
	UpdateParticipant(chat.Participant)
	UpdateStage(chat.StageInfo)
	UpdateConnection(chat.ConnectionView)
}

// Callbacks are invoked from transport goroutines. A transport calls OnError at most once per
// connection and nothing after it; none of them fire after Conn.Close.
type Callbacks struct {
	OnOpen    func()
	OnEvent   func(event.Event)
	OnInvalid func(error)
	OnError   func(error)
}

// Transport opens push connections. Open must not block and must not invoke callbacks
// synchronously.
type Transport interface {
	Open(ctx context.Context, cb Callbacks) Conn
}

type Conn interface {
	Close() error
}

type HistoryFetcher interface {
	FetchHistory(ctx context.Context) (event.History, error)
}

// Outbound is a pending user message.
type Outbound struct {
	RequestID  string
	Text       string
	SenderName string
}

type Sender interface {
	Send(ctx context.Context, msg Outbound) error
}

// Loop serializes every state mutation. See eventloop.Loop.
type Loop interface {
	Post(func())
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is backed by the time package.
var SystemClock Clock = systemClock{}

type nopRenderer struct{}

func (nopRenderer) AppendMessage(chat.Message)           {}
func (nopRenderer) ResetMessages([]chat.Message)         {}
func (nopRenderer) UpdateParticipant(chat.Participant)   {}
func (nopRenderer) UpdateStage(chat.StageInfo)           {}
func (nopRenderer) UpdateConnection(chat.ConnectionView) {}
