package usecase

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

const destroyedMessage = "speech controller destroyed"

// Config controls controller defaults.
type Config struct {
	DefaultLanguage string
}

// SessionController owns the single recognition session, the pending init
// permission request and the beep mute state. All state is mutated on one
// goroutine; public methods only enqueue work and answer through the sink.
type SessionController struct {
	engines ports.EngineFactory
	perms   ports.PermissionAuthority
	display ports.DisplayDirective
	events  ports.EventSink
	log     *slog.Logger
	loop    *mainLoop

	closeOnce sync.Once

	// main loop only
	mute        *muteController
	engine      ports.SpeechEngine
	language    string
	current     *session
	pendingInit ports.ResponseSink
	generation  uint64
	destroyed   bool
}

func NewSessionController(
	engines ports.EngineFactory,
	perms ports.PermissionAuthority,
	volume ports.VolumeControl,
	display ports.DisplayDirective,
	events ports.EventSink,
	log *slog.Logger,
	cfg Config,
) *SessionController {
	if log == nil {
		log = slog.Default()
	}
	language := strings.TrimSpace(cfg.DefaultLanguage)
	if language == "" {
		language = domain.DefaultLanguage
	}
	return &SessionController{
		engines:  engines,
		perms:    perms,
		display:  display,
		events:   events,
		log:      log,
		loop:     newMainLoop(),
		mute:     newMuteController(volume, log),
		language: language,
	}
}

// Init records options and makes sure capture permission and the engine are in place.
func (c *SessionController) Init(opts domain.InitOptions, sink ports.ResponseSink) {
	c.dispatch(func() { c.handleInit(opts, sink) }, func() {
		sink.Error(domain.ErrorCodeEngineUnavailable, destroyedMessage)
	})
}

// StartSession begins one listening attempt; sink receives the outcome.
func (c *SessionController) StartSession(sink ports.ResponseSink) {
	c.dispatch(func() { c.handleStart(sink) }, func() {
		sink.Error(domain.ErrorCodeEngineUnavailable, destroyedMessage)
	})
}

// Stop cancels the current attempt without answering its caller.
func (c *SessionController) Stop(sink ports.ResponseSink) {
	c.dispatch(func() { c.handleStop(sink) }, func() { sink.Success(nil) })
}

// SetBeepsMuted mutes or restores the system, notification and ring streams.
func (c *SessionController) SetBeepsMuted(mute bool, sink ports.ResponseSink) {
	c.dispatch(func() {
		c.mute.set(mute)
		sink.Success(nil)
	}, func() { sink.Success(nil) })
}

// SetKeepScreenOn toggles the display stay-on directive.
func (c *SessionController) SetKeepScreenOn(on bool, sink ports.ResponseSink) {
	c.dispatch(func() {
		if err := c.display.SetKeepAwake(on); err != nil {
			c.log.Warn("failed to set keep screen on", "on", on, "error", err)
		} else {
			c.log.Debug("keep screen on updated", "on", on)
		}
		sink.Success(nil)
	}, func() { sink.Success(nil) })
}

// Status returns a snapshot of controller state. It must not be called from a
// response sink or engine callback.
func (c *SessionController) Status() domain.Status {
	result := make(chan domain.Status, 1)
	if err := c.loop.post(func() { result <- c.snapshot() }); err != nil {
		return domain.Status{State: domain.SessionStateIdle}
	}
	return <-result
}

// Close tears the controller down: the engine is destroyed, pending sinks are
// released and muted streams are restored. It blocks until queued work drains.
func (c *SessionController) Close() {
	c.closeOnce.Do(func() {
		if err := c.loop.post(c.teardown); err != nil {
			c.log.Warn("speech controller already closed", "error", err)
		}
		c.loop.shutdown()
		c.loop.wait()
	})
}

func (c *SessionController) dispatch(fn func(), closed func()) {
	err := c.loop.post(func() {
		if c.destroyed {
			closed()
			return
		}
		fn()
	})
	if err != nil {
		closed()
	}
}

func (c *SessionController) handleInit(opts domain.InitOptions, sink ports.ResponseSink) {
	if opts.Language != nil {
		c.language = *opts.Language
	}

	if c.perms.HasCapturePermission() {
		c.completeInit(sink)
		return
	}

	if c.pendingInit != nil {
		c.log.Debug("init superseded while awaiting permission")
		release(c.pendingInit)
		c.pendingInit = sink
		return
	}

	c.log.Debug("no capture permission, requesting")
	c.pendingInit = sink
	c.perms.RequestCapturePermission(func(granted bool) {
		c.dispatch(func() { c.handlePermissionResult(granted) }, func() {})
	})
}

func (c *SessionController) handlePermissionResult(granted bool) {
	sink := c.pendingInit
	if sink == nil {
		c.log.Debug("ignoring stale permission result", "granted", granted)
		return
	}
	c.pendingInit = nil

	if !granted {
		sink.Error(domain.ErrorCodePermissionDenied, "Microphone permission denied")
		return
	}
	c.completeInit(sink)
}

func (c *SessionController) completeInit(sink ports.ResponseSink) {
	if !c.engines.IsAvailable() {
		c.log.Error("speech recognition not available")
		sink.Error(domain.ErrorCodeEngineUnavailable, "Speech recognition not available")
		return
	}
	if !c.ensureEngine() {
		sink.Error(domain.ErrorCodeEngineCreateFailed, "Failed to create speech recognizer")
		return
	}
	sink.Success(nil)
}

func (c *SessionController) handleStart(sink ports.ResponseSink) {
	if !c.perms.HasCapturePermission() {
		sink.Error(domain.ErrorCodePermissionDenied, "Microphone permission not granted")
		return
	}
	if c.current != nil {
		c.log.Warn("already listening", "session", c.current.id)
		sink.Error(domain.ErrorCodeAlreadyListening, "Already listening")
		return
	}
	if !c.engines.IsAvailable() {
		c.log.Error("speech recognition not available")
		sink.Error(domain.ErrorCodeEngineUnavailable, "Speech recognition not available")
		return
	}
	if !c.ensureEngine() {
		sink.Error(domain.ErrorCodeEngineCreateFailed, "Failed to create speech recognizer")
		return
	}

	c.generation++
	active := &session{id: uuid.NewString(), generation: c.generation, sink: sink}
	c.current = active

	cfg := domain.RecognitionConfig{
		LanguageModel:  domain.LanguageModelWebSearch,
		Language:       c.language,
		MaxResults:     domain.MaxResults,
		PartialResults: true,
		PreferOffline:  false,
	}

	c.log.Debug("start listening", "session", active.id, "language", cfg.Language)
	if err := c.engine.StartListening(cfg, &sessionListener{controller: c, generation: active.generation}); err != nil {
		c.log.Error("start listening failed", "session", active.id, "error", err)
		c.current = nil
		active.take().Error(domain.ErrorCodeStartFailed, "Failed to start listening")
	}
}

func (c *SessionController) handleStop(sink ports.ResponseSink) {
	if active := c.current; active != nil {
		c.current = nil
		if c.engine != nil {
			if err := c.engine.Cancel(); err != nil {
				c.log.Warn("error stopping recognizer", "session", active.id, "error", err)
			}
		}
		c.log.Debug("listening cancelled", "session", active.id)
		release(active.take())
	}
	sink.Success(nil)
}

func (c *SessionController) handleResults(generation uint64, results domain.RecognitionResults) {
	active := c.listening(generation)
	if active == nil {
		return
	}
	c.current = nil

	outcome, ok := buildOutcome(results)
	if !ok {
		active.take().Error(domain.ErrorCodeNoMatch, "No recognition result")
		return
	}
	c.log.Debug("recognition results", "session", active.id, "text", outcome.Text, "candidates", len(outcome.AllResults))
	active.take().Success(outcome)
}

func (c *SessionController) handleError(generation uint64, code int) {
	active := c.listening(generation)
	if active == nil {
		return
	}
	c.current = nil

	errCode := domain.EngineErrorCode(code)
	c.log.Debug("recognition error", "session", active.id, "engine_code", code, "code", errCode)
	active.take().Error(errCode, "Speech recognition error")
}

func (c *SessionController) observe(generation uint64, name string, data map[string]any) {
	active := c.listening(generation)
	if active == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["session"] = active.id
	if c.events != nil {
		c.events.SpeechEvent(name, data)
	}
}

// listening returns the current session if generation still identifies it.
func (c *SessionController) listening(generation uint64) *session {
	if c.current == nil || c.current.generation != generation {
		c.log.Debug("ignoring stale engine callback", "generation", generation)
		return nil
	}
	return c.current
}

func (c *SessionController) ensureEngine() bool {
	if c.engine != nil {
		return true
	}
	c.log.Debug("creating speech recognizer")
	engine, err := c.engines.Create()
	if err != nil || engine == nil {
		c.log.Error("failed to create speech recognizer", "error", err)
		return false
	}
	c.engine = engine
	return true
}

func (c *SessionController) teardown() {
	c.destroyed = true

	if c.engine != nil {
		if err := c.engine.Destroy(); err != nil {
			c.log.Warn("error destroying recognizer", "error", err)
		}
		c.engine = nil
	}
	if c.current != nil {
		release(c.current.take())
		c.current = nil
	}
	if c.pendingInit != nil {
		release(c.pendingInit)
		c.pendingInit = nil
	}

	c.mute.set(false)
}

func (c *SessionController) snapshot() domain.Status {
	state := domain.SessionStateIdle
	switch {
	case c.current != nil:
		state = domain.SessionStateListening
	case c.pendingInit != nil:
		state = domain.SessionStateAwaitingPermission
	}
	return domain.Status{State: state, Language: c.language, Muted: c.mute.muted}
}
