package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

var (
	ErrRecognizerBusy = errors.New("recognizer is busy")
	ErrDestroyed      = errors.New("recognizer destroyed")
	ErrNoListener     = errors.New("recognition listener is required")
	ErrUnavailable    = errors.New("speech engine unavailable")
)

// Options tunes utterance timing and capture.
type Options struct {
	Audio ports.AudioConfig
	// ChunkSize is the capture read size in bytes.
	ChunkSize int
	// SpeechTimeout fails the utterance when no speech starts in time.
	SpeechTimeout time.Duration
	// MaxUtterance stops capture after this long and waits for the final.
	MaxUtterance time.Duration
	// FinalizeTimeout bounds the wait for a final after capture stopped.
	FinalizeTimeout time.Duration
	// CancelGrace bounds how long a new utterance waits for a cancelled one to unwind.
	CancelGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.Audio.SampleRate <= 0 {
		o.Audio.SampleRate = 16000
	}
	if o.Audio.Channels <= 0 {
		o.Audio.Channels = 1
	}
	if o.ChunkSize < minChunkSize {
		o.ChunkSize = defaultChunkSize
	}
	if o.SpeechTimeout <= 0 {
		o.SpeechTimeout = 5 * time.Second
	}
	if o.MaxUtterance <= 0 {
		o.MaxUtterance = 10 * time.Second
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 2 * time.Second
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = time.Second
	}
	return o
}

// Factory builds engines over one backend and microphone.
type Factory struct {
	backend Backend
	capture ports.AudioCapture
	opts    Options
	log     *slog.Logger
}

func NewFactory(backend Backend, capture ports.AudioCapture, opts Options, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{backend: backend, capture: capture, opts: opts.withDefaults(), log: log}
}

// IsAvailable reports whether both the backend and the microphone are usable.
func (f *Factory) IsAvailable() bool {
	if f.backend == nil || f.capture == nil {
		return false
	}
	if err := f.backend.Available(); err != nil {
		f.log.Warn("speech backend unavailable", "backend", f.backend.Name(), "error", err)
		return false
	}
	if err := f.capture.Available(); err != nil {
		f.log.Warn("audio capture unavailable", "error", err)
		return false
	}
	return true
}

func (f *Factory) Create() (ports.SpeechEngine, error) {
	if !f.IsAvailable() {
		return nil, ErrUnavailable
	}
	f.log.Debug("speech engine created", "backend", f.backend.Name())
	return &Engine{
		backend: f.backend,
		capture: f.capture,
		opts:    f.opts,
		log:     f.log.With("backend", f.backend.Name()),
	}, nil
}

// Engine runs one utterance at a time against its backend.
type Engine struct {
	backend Backend
	capture ports.AudioCapture
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	current   *utterance
	destroyed bool
}

// StartListening begins an utterance. Callbacks reach listener from engine
// goroutines, so it must be safe for concurrent use.
func (e *Engine) StartListening(cfg domain.RecognitionConfig, listener ports.RecognitionListener) error {
	if listener == nil {
		return ErrNoListener
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	if prev := e.current; prev != nil {
		if !prev.settled.Load() {
			return ErrRecognizerBusy
		}
		if !prev.waitDone(e.opts.CancelGrace) {
			e.log.Warn("previous utterance still unwinding")
			return ErrRecognizerBusy
		}
	}

	u := newUtterance(cfg, listener, e.opts, e.log)
	e.current = u
	go u.run(e.backend, e.capture)
	return nil
}

// StopListening ends capture and lets the backend deliver its final result.
func (e *Engine) StopListening() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.stop()
	}
	return nil
}

// Cancel abandons the utterance without delivering anything further.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.cancel()
	}
	return nil
}

func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	if e.current != nil {
		e.current.cancel()
	}
	e.log.Debug("speech engine destroyed")
	return nil
}

var _ ports.SpeechEngine = (*Engine)(nil)
var _ ports.EngineFactory = (*Factory)(nil)

func requestFor(cfg domain.RecognitionConfig, opts Options) StreamRequest {
	return StreamRequest{
		Language:        cfg.Language,
		Encoding:        "linear16",
		SampleRate:      opts.Audio.SampleRate,
		Channels:        opts.Audio.Channels,
		MaxAlternatives: cfg.MaxResults,
		InterimResults:  cfg.PartialResults,
	}
}
