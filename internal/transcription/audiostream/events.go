package audiostream

import (
	"fmt"
)

type State int32

const (
	StateInit State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) Terminal() bool { return s == StateFinished || s == StateError }

// Event is one of Opened, TokensReceived, StateChanged, Errored or Closed.
type Event interface {
	isEvent()
}

type Opened struct {
	// Attempt is 1 for the first connection and grows with each reconnect.
	Attempt int
}

type TokensReceived struct {
	Tokens           []Token
	FinalAudioProcMs int64
}

type StateChanged struct {
	From State
	To   State
}

type Errored struct {
	Err      error
	Terminal bool
}

// Closed is always the last event; the channel is closed right after it.
type Closed struct {
	State State
}

func (Opened) isEvent()         {}
func (TokensReceived) isEvent() {}
func (StateChanged) isEvent()   {}
func (Errored) isEvent()        {}
func (Closed) isEvent()         {}

// StreamError is a provider or transport failure. Code and Message are set when the provider
// reported them.
type StreamError struct {
	Code     int
	Message  string
	Attempts int
	Err      error
}

func (e *StreamError) Error() string {
	msg := "stream error"
	if e.Code != 0 {
		msg = fmt.Sprintf("%s: provider code %d", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

func (e *StreamError) Unwrap() error { return e.Err }
