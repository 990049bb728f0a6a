package syncclient

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTransport = errors.New("syncclient: transport is required")
	ErrMissingHistory   = errors.New("syncclient: history fetcher is required")
	ErrMissingLoop      = errors.New("syncclient: loop is required")
)

// TransportError wraps a connection drop or refusal.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// UnknownParticipantError is logged when a status event names nobody we know.
type UnknownParticipantError struct {
	Name string
}

func (e *UnknownParticipantError) Error() string {
	return fmt.Sprintf("unknown participant %q", e.Name)
}

type HistoryFetchError struct {
	Err error
}

func (e *HistoryFetchError) Error() string { return "fetch history: " + e.Err.Error() }
func (e *HistoryFetchError) Unwrap() error { return e.Err }

type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "send message: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }
