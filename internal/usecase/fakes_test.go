package usecase

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type response struct {
	ok      bool
	payload any
	code    domain.ErrorCode
	message string
}

type recordingSink struct {
	mu        sync.Mutex
	responses []response
	released  int
	onSuccess func(payload any)
}

func (s *recordingSink) Success(payload any) {
	s.mu.Lock()
	s.responses = append(s.responses, response{ok: true, payload: payload})
	hook := s.onSuccess
	s.mu.Unlock()
	if hook != nil {
		hook(payload)
	}
}

func (s *recordingSink) Error(code domain.ErrorCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response{code: code, message: message})
}

func (s *recordingSink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

func (s *recordingSink) snapshot() []response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]response, len(s.responses))
	copy(out, s.responses)
	return out
}

func (s *recordingSink) releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeEngineFactory struct {
	mu          sync.Mutex
	unavailable bool
	createErr   error
	engine      *fakeEngine
	creates     int
}

func (f *fakeEngineFactory) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unavailable
}

func (f *fakeEngineFactory) Create() (ports.SpeechEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.engine == nil {
		f.engine = &fakeEngine{}
	}
	return f.engine, nil
}

func (f *fakeEngineFactory) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

type fakeEngine struct {
	mu         sync.Mutex
	startErr   error
	destroyErr error
	listeners  []ports.RecognitionListener
	configs    []domain.RecognitionConfig
	cancels    int
	destroys   int
}

func (e *fakeEngine) StartListening(cfg domain.RecognitionConfig, listener ports.RecognitionListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.configs = append(e.configs, cfg)
	e.listeners = append(e.listeners, listener)
	return nil
}

func (e *fakeEngine) StopListening() error { return nil }

func (e *fakeEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
	return nil
}

func (e *fakeEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroys++
	return e.destroyErr
}

func (e *fakeEngine) listener(index int) ports.RecognitionListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listeners[index]
}

func (e *fakeEngine) lastConfig() domain.RecognitionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configs[len(e.configs)-1]
}

type fakePermissions struct {
	mu       sync.Mutex
	granted  bool
	requests int
	done     func(bool)
}

func (p *fakePermissions) HasCapturePermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *fakePermissions) RequestCapturePermission(done func(granted bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.done = done
}

// answer simulates the platform delivering a permission result from another goroutine.
func (p *fakePermissions) answer(granted bool) {
	p.mu.Lock()
	p.granted = granted
	done := p.done
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done(granted)
	}()
	<-finished
}

func (p *fakePermissions) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

type fakeVolume struct {
	mu      sync.Mutex
	levels  map[domain.AudioStream]int
	readErr map[domain.AudioStream]error
	setErr  error
	sets    int
}

func newFakeVolume(system, notification, ring int) *fakeVolume {
	return &fakeVolume{
		levels: map[domain.AudioStream]int{
			domain.AudioStreamSystem:       system,
			domain.AudioStreamNotification: notification,
			domain.AudioStreamRing:         ring,
		},
		readErr: map[domain.AudioStream]error{},
	}
}

func (v *fakeVolume) StreamVolume(stream domain.AudioStream) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.readErr[stream]; err != nil {
		return 0, err
	}
	return v.levels[stream], nil
}

func (v *fakeVolume) SetStreamVolume(stream domain.AudioStream, level int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sets++
	if v.setErr != nil {
		return v.setErr
	}
	v.levels[stream] = level
	return nil
}

func (v *fakeVolume) level(stream domain.AudioStream) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.levels[stream]
}

func (v *fakeVolume) setCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sets
}

type fakeDisplay struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (d *fakeDisplay) SetKeepAwake(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, on)
	return d.err
}

type speechEvent struct {
	name string
	data map[string]any
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []speechEvent
}

func (f *fakeEventSink) SpeechEvent(name string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, speechEvent{name: name, data: data})
}

func (f *fakeEventSink) snapshot() []speechEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]speechEvent, len(f.events))
	copy(out, f.events)
	return out
}

var errBoom = errors.New("boom")
