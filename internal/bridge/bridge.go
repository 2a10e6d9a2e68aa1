package bridge

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

// Action names accepted by Execute.
const (
	ActionInit            = "init"
	ActionStartSession    = "startSession"
	ActionStartLetter     = "startLetter"
	ActionStop            = "stop"
	ActionSetBeepsMuted   = "setBeepsMuted"
	ActionSetKeepScreenOn = "setKeepScreenOn"
)

// Callback is the web view side of one command. Exactly one of Success or
// Error is called, unless the command is released without a response.
type Callback interface {
	Success(payload string)
	Error(payload string)
}

// Controller is the session controller surface driven by the bridge.
type Controller interface {
	Init(opts domain.InitOptions, sink ports.ResponseSink)
	StartSession(sink ports.ResponseSink)
	Stop(sink ports.ResponseSink)
	SetBeepsMuted(mute bool, sink ports.ResponseSink)
	SetKeepScreenOn(on bool, sink ports.ResponseSink)
}

// Bridge translates string-keyed commands with JSON array arguments into
// controller operations.
type Bridge struct {
	controller Controller
	log        *slog.Logger
}

func New(controller Controller, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{controller: controller, log: log}
}

// Actions lists every command Execute understands.
func Actions() []string {
	return []string{
		ActionInit,
		ActionStartSession,
		ActionStartLetter,
		ActionStop,
		ActionSetBeepsMuted,
		ActionSetKeepScreenOn,
	}
}

// Execute runs action with args. It returns false, without touching cb, when
// the action is unknown.
func (b *Bridge) Execute(action string, args json.RawMessage, cb Callback) bool {
	b.log.Debug("execute", "action", action)

	list, argsErr := parseArgs(args)
	sink := newCallbackSink(cb, b.log)

	switch action {
	case ActionInit:
		opts, err := parseInitOptions(list, argsErr)
		if err != nil {
			b.log.Error("error parsing init options", "error", err)
			sink.Error(domain.ErrorCodeInitOptions, err.Error())
			return true
		}
		b.controller.Init(opts, sink)
	case ActionStartSession:
		b.controller.StartSession(sink)
	case ActionStartLetter:
		b.controller.StartSession(newLetterSink(sink, stringArg(list, 0), b.log))
	case ActionStop:
		b.controller.Stop(sink)
	case ActionSetBeepsMuted:
		b.controller.SetBeepsMuted(boolArg(list, 0), sink)
	case ActionSetKeepScreenOn:
		b.controller.SetKeepScreenOn(boolArg(list, 0), sink)
	default:
		b.log.Warn("unknown action", "action", action)
		return false
	}
	return true
}

func parseArgs(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// boolArg reads a boolean argument, defaulting to true when it is missing or
// not a boolean.
func boolArg(list []json.RawMessage, index int) bool {
	if index >= len(list) {
		return true
	}
	var value bool
	if err := json.Unmarshal(list[index], &value); err != nil || isNull(list[index]) {
		return true
	}
	return value
}

func stringArg(list []json.RawMessage, index int) string {
	if index >= len(list) {
		return ""
	}
	var value string
	if err := json.Unmarshal(list[index], &value); err != nil {
		return ""
	}
	return value
}
