package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

var (
	errSpeechTimeout = errors.New("no speech detected")
	errNoFinal       = errors.New("stream ended without a final result")
)

// utterance is one listening attempt. It delivers exactly one terminal callback
// unless it is cancelled first.
type utterance struct {
	cfg      domain.RecognitionConfig
	listener ports.RecognitionListener
	opts     Options
	log      *slog.Logger

	ctx      context.Context
	cancelFn context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	// done closes when the terminal decision is made; released closes once
	// capture and stream resources are let go.
	done     chan struct{}
	released chan struct{}

	// settled flips once the terminal callback went out or the utterance was cancelled.
	settled atomic.Bool
}

func newUtterance(cfg domain.RecognitionConfig, listener ports.RecognitionListener, opts Options, log *slog.Logger) *utterance {
	ctx, cancel := context.WithCancel(context.Background())
	return &utterance{
		cfg:      cfg,
		listener: listener,
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancelFn: cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
}

func (u *utterance) stop() {
	u.stopOnce.Do(func() { close(u.stopCh) })
}

func (u *utterance) cancel() {
	u.settled.Store(true)
	u.cancelFn()
}

func (u *utterance) waitDone(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return true
	case <-timer.C:
		return false
	}
}

func (u *utterance) live() bool {
	return u.ctx.Err() == nil
}

func (u *utterance) emit(fn func(ports.RecognitionListener)) {
	if !u.live() {
		return
	}
	fn(u.listener)
}

func (u *utterance) fail(code int, err error) {
	if !u.live() || !u.settled.CompareAndSwap(false, true) {
		return
	}
	u.log.Debug("utterance failed", "engine_code", code, "error", err)
	u.listener.OnError(code)
}

func (u *utterance) deliver(segments [][]Alternative) {
	results := mergeSegments(segments, u.cfg.MaxResults)
	if len(results.Candidates) == 0 {
		u.fail(domain.EngineErrorNoMatch, errNoFinal)
		return
	}
	if !u.live() || !u.settled.CompareAndSwap(false, true) {
		return
	}
	u.log.Debug("utterance results", "candidates", len(results.Candidates))
	u.listener.OnResults(results)
}

func (u *utterance) run(backend Backend, capture ports.AudioCapture) {
	var cleanup []func()
	defer func() {
		u.cancelFn()
		close(u.done)
		// Capture shutdown can take longer than a follow-up start is willing to wait.
		go func() {
			defer close(u.released)
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}()
	}()

	stream, err := backend.Open(u.ctx, requestFor(u.cfg, u.opts))
	if err != nil {
		u.fail(CodeOf(err, domain.EngineErrorNetwork), err)
		return
	}
	cleanup = append(cleanup, func() { _ = stream.Close() })

	audio, err := capture.Start(u.ctx, u.opts.Audio)
	if err != nil {
		u.fail(CodeOf(err, domain.EngineErrorAudio), err)
		return
	}

	halted := false
	halt := func() {
		if halted {
			return
		}
		halted = true
		if err := audio.Stop(); err != nil {
			u.log.Debug("audio stop failed", "error", err)
		}
		if err := stream.CloseSend(); err != nil {
			u.log.Debug("close send failed", "error", err)
		}
	}
	cleanup = append(cleanup, halt)

	u.emit(func(l ports.RecognitionListener) { l.OnReadyForSpeech() })

	pumpResult := make(chan error, 1)
	go pumpAudio(audio, stream, u.opts.ChunkSize, u.onChunk, pumpResult)

	speechTimer := time.NewTimer(u.opts.SpeechTimeout)
	defer speechTimer.Stop()
	maxTimer := time.NewTimer(u.opts.MaxUtterance)
	defer maxTimer.Stop()

	var (
		speaking bool
		ended    bool
		segments [][]Alternative
		finalize <-chan time.Time
		stopped  = (<-chan struct{})(u.stopCh)
		events   = stream.Events()
	)

	beginSpeech := func() {
		if speaking {
			return
		}
		speaking = true
		speechTimer.Stop()
		u.emit(func(l ports.RecognitionListener) { l.OnBeginningOfSpeech() })
	}
	endSpeech := func() {
		if ended {
			return
		}
		ended = true
		u.emit(func(l ports.RecognitionListener) { l.OnEndOfSpeech() })
	}
	drain := func() {
		halt()
		if finalize == nil {
			finalize = time.After(u.opts.FinalizeTimeout)
		}
	}

	for {
		select {
		case <-u.ctx.Done():
			return

		case <-stopped:
			stopped = nil
			endSpeech()
			drain()

		case <-speechTimer.C:
			if !speaking {
				u.fail(domain.EngineErrorSpeechTimeout, errSpeechTimeout)
				return
			}

		case <-maxTimer.C:
			endSpeech()
			drain()

		case <-finalize:
			u.deliver(segments)
			return

		case err := <-pumpResult:
			pumpResult = nil
			if halted {
				continue
			}
			if err != nil {
				u.fail(CodeOf(err, domain.EngineErrorAudio), err)
				return
			}
			endSpeech()
			drain()

		case ev, ok := <-events:
			if !ok {
				if err := stream.Wait(); err != nil && len(segments) == 0 {
					u.fail(CodeOf(err, domain.EngineErrorServer), err)
					return
				}
				u.deliver(segments)
				return
			}

			switch ev.Kind {
			case EventSpeechStarted:
				beginSpeech()
			case EventPartial:
				if !hasText(ev.Alternatives) {
					continue
				}
				beginSpeech()
				partial := mergeSegments([][]Alternative{ev.Alternatives}, u.cfg.MaxResults)
				u.emit(func(l ports.RecognitionListener) { l.OnPartialResults(partial) })
			case EventFinal:
				if hasText(ev.Alternatives) {
					beginSpeech()
					segments = append(segments, ev.Alternatives)
				}
				if ev.SpeechFinal && len(segments) > 0 {
					endSpeech()
					u.deliver(segments)
					return
				}
			case EventUtteranceEnd:
				endSpeech()
				if len(segments) > 0 {
					u.deliver(segments)
					return
				}
				drain()
			}
		}
	}
}

func (u *utterance) onChunk(chunk []byte) {
	buffer := append([]byte(nil), chunk...)
	level := levelDB(chunk)
	u.emit(func(l ports.RecognitionListener) {
		l.OnBufferReceived(buffer)
		l.OnRmsChanged(level)
	})
}
