package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"limetuna/internal/bootstrap"
	"limetuna/internal/bridge"
	"limetuna/internal/config"
	"limetuna/internal/domain"
)

const (
	eventSpeech = "limetuna:speech"
	eventBoot   = "limetuna:bootError"
)

var (
	errNotReady      = errors.New("application is not initialized")
	errUnknownAction = errors.New("unknown action")
	errReleased      = errors.New("command was released without a response")
)

type executor interface {
	Execute(action string, args json.RawMessage, cb bridge.Callback) bool
}

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	exec     executor
	status   func() domain.Status
	services *bootstrap.Services
	bootErr  error
	log      *slog.Logger
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit, log: slog.Default()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load("")
	if err != nil {
		a.fail(err)
		return
	}
	a.log = config.SetupLogging(cfg.Logging, nil)

	services, err := bootstrap.Build(cfg, bootstrap.Dependencies{
		Events: a,
		Emit:   a.emitEvent,
		Logger: a.log,
	})
	if err != nil {
		a.fail(err)
		return
	}

	a.services = services
	a.exec = services.Bridge
	a.status = services.Controller.Status
}

func (a *App) shutdown(context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.log.Warn("shutdown finished with errors", "error", err)
	}
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.log.Error("startup failed", "error", err)
	a.emitEvent(eventBoot, map[string]string{"message": err.Error()})
}

// Exec runs one bridge action and waits for its answer. A rejected promise
// carries the JSON error payload as its message.
func (a *App) Exec(action string, args json.RawMessage) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	w := newWaiter()
	if !a.exec.Execute(action, args, w) {
		return "", fmt.Errorf("%w: %s", errUnknownAction, action)
	}
	return w.wait()
}

// Actions lists the commands Exec accepts.
func (a *App) Actions() []string {
	return bridge.Actions()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.status == nil {
		return domain.Status{State: domain.SessionStateIdle}
	}
	return a.status()
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.exec == nil {
		return errNotReady
	}
	return nil
}

// SpeechEvent forwards diagnostic recognizer events to the frontend.
func (a *App) SpeechEvent(name string, data map[string]any) {
	a.emitEvent(eventSpeech, map[string]any{"name": name, "data": data})
}

func (a *App) emitEvent(name string, data any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

// BridgeError is a command failure; its message is the JSON error payload.
type BridgeError struct {
	Payload string
}

func (e *BridgeError) Error() string {
	return e.Payload
}

type waitResult struct {
	payload string
	err     error
}

// waiter turns one bridge callback into a blocking call.
type waiter struct {
	result chan waitResult
}

func newWaiter() *waiter {
	return &waiter{result: make(chan waitResult, 1)}
}

func (w *waiter) Success(payload string) { w.deliver(waitResult{payload: payload}) }

func (w *waiter) Error(payload string) { w.deliver(waitResult{err: &BridgeError{Payload: payload}}) }

func (w *waiter) Release() { w.deliver(waitResult{err: errReleased}) }

func (w *waiter) deliver(r waitResult) {
	select {
	case w.result <- r:
	default:
	}
}

func (w *waiter) wait() (string, error) {
	r := <-w.result
	return r.payload, r.err
}
