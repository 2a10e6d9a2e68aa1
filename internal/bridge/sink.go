package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

type errorPayload struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// EncodeError renders the error payload sent to the web view.
func EncodeError(code domain.ErrorCode, message string) string {
	return encodeError(code, message, json.Marshal)
}

func encodeError(code domain.ErrorCode, message string, marshal func(any) ([]byte, error)) string {
	body, err := marshal(errorPayload{Code: code, Message: message})
	if err != nil {
		return string(code) + ":" + message
	}
	return string(body)
}

// EncodeSuccess renders a success payload. A nil payload is the empty string.
func EncodeSuccess(payload any) string {
	return encodeSuccess(payload, json.Marshal)
}

func encodeSuccess(payload any, marshal func(any) ([]byte, error)) string {
	if payload == nil {
		return ""
	}
	body, err := marshal(payload)
	if err != nil {
		return fallbackText(payload)
	}
	return string(body)
}

func fallbackText(payload any) string {
	switch p := payload.(type) {
	case domain.RecognitionOutcome:
		return p.Text
	case domain.LetterOutcome:
		return p.Text
	case string:
		return p
	default:
		return ""
	}
}

// callbackSink adapts a Callback to ports.ResponseSink. It forwards Release
// when the callback wants to know about dropped commands.
type callbackSink struct {
	cb  Callback
	log *slog.Logger

	once sync.Once
}

func newCallbackSink(cb Callback, log *slog.Logger) *callbackSink {
	return &callbackSink{cb: cb, log: log}
}

func (s *callbackSink) Success(payload any) {
	s.once.Do(func() { s.cb.Success(EncodeSuccess(payload)) })
}

func (s *callbackSink) Error(code domain.ErrorCode, message string) {
	s.once.Do(func() {
		s.log.Debug("command failed", "code", code, "message", message)
		s.cb.Error(EncodeError(code, message))
	})
}

func (s *callbackSink) Release() {
	s.once.Do(func() {
		if r, ok := s.cb.(ports.Releaser); ok {
			r.Release()
		}
	})
}
