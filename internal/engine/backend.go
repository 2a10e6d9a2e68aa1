package engine

import (
	"context"
	"errors"
	"fmt"
)

// EventKind classifies what a backend stream reported.
type EventKind int

const (
	EventSpeechStarted EventKind = iota + 1
	EventPartial
	EventFinal
	EventUtteranceEnd
)

func (k EventKind) String() string {
	switch k {
	case EventSpeechStarted:
		return "speech_started"
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventUtteranceEnd:
		return "utterance_end"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Alternative is one hypothesis of a recognized segment. Zero confidence means
// the backend did not score it.
type Alternative struct {
	Transcript string
	Confidence float32
}

// Event is one message from a backend stream.
type Event struct {
	Kind         EventKind
	Alternatives []Alternative
	// SpeechFinal marks a final segment that also closes the utterance.
	SpeechFinal bool
}

// StreamRequest configures one backend stream.
type StreamRequest struct {
	Language        string
	Encoding        string
	SampleRate      int
	Channels        int
	MaxAlternatives int
	InterimResults  bool
}

// Stream is an open recognition stream. Events is closed when the stream ends;
// Wait then reports the terminal error, if any.
type Stream interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan Event
	Wait() error
	Close() error
}

// Backend opens recognition streams against a speech service.
type Backend interface {
	Name() string
	Available() error
	Open(ctx context.Context, req StreamRequest) (Stream, error)
}

// Error attaches an engine error number to a failure.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine error %d: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode wraps err with an engine error number. A nil err stays nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// CodeOf returns the engine error number carried by err, or fallback.
func CodeOf(err error, fallback int) int {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return fallback
}
