package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	mu         sync.Mutex
	events     chan Event
	done       chan struct{}
	ended      bool
	err        error
	sent       int
	closedSend bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan Event, 32), done: make(chan struct{})}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent += len(chunk)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closedSend = true
	return nil
}

func (s *fakeStream) Events() <-chan Event { return s.events }

func (s *fakeStream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.end(nil)
	return nil
}

func (s *fakeStream) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
}

func (s *fakeStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.events)
	close(s.done)
}

func (s *fakeStream) sentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *fakeStream) sendClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedSend
}

type fakeBackend struct {
	mu       sync.Mutex
	openErr  error
	unavail  error
	requests []StreamRequest
	streams  chan *fakeStream
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{streams: make(chan *fakeStream, 4)}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Available() error { return b.unavail }

func (b *fakeBackend) Open(ctx context.Context, req StreamRequest) (Stream, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	err := b.openErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	stream := newFakeStream()
	b.streams <- stream
	return stream, nil
}

func (b *fakeBackend) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case stream := <-b.streams:
		return stream
	case <-time.After(2 * time.Second):
		t.Fatalf("backend stream was not opened")
		return nil
	}
}

type fakeAudio struct {
	reader *io.PipeReader
	writer *io.PipeWriter
	once   sync.Once
	delay  time.Duration
}

func (a *fakeAudio) Read(p []byte) (int, error) { return a.reader.Read(p) }

func (a *fakeAudio) Close() error { return a.Stop() }

func (a *fakeAudio) Stop() error {
	a.once.Do(func() {
		time.Sleep(a.delay)
		_ = a.writer.Close()
	})
	return nil
}

type fakeCapture struct {
	mu        sync.Mutex
	startErr  error
	unavail   error
	stopDelay time.Duration
	sessions  chan *fakeAudio
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{sessions: make(chan *fakeAudio, 4)}
}

func (c *fakeCapture) Available() error { return c.unavail }

func (c *fakeCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	err, delay := c.startErr, c.stopDelay
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	reader, writer := io.Pipe()
	audio := &fakeAudio{reader: reader, writer: writer, delay: delay}
	go func() {
		<-ctx.Done()
		_ = audio.Stop()
	}()
	c.sessions <- audio
	return audio, nil
}

type recorder struct {
	mu       sync.Mutex
	calls    []string
	results  []domain.RecognitionResults
	partials []domain.RecognitionResults
	errs     []int
	buffers  int
	terminal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan struct{}, 4)}
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) OnReadyForSpeech()    { r.record("ready") }
func (r *recorder) OnBeginningOfSpeech() { r.record("begin") }
func (r *recorder) OnEndOfSpeech()       { r.record("end") }
func (r *recorder) OnRmsChanged(float32) {}

func (r *recorder) OnBufferReceived(buffer []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers += len(buffer)
}

func (r *recorder) OnEvent(int, map[string]any) {}

func (r *recorder) OnPartialResults(results domain.RecognitionResults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "partial")
	r.partials = append(r.partials, results)
}

func (r *recorder) OnError(code int) {
	r.mu.Lock()
	r.calls = append(r.calls, "error")
	r.errs = append(r.errs, code)
	r.mu.Unlock()
	r.terminal <- struct{}{}
}

func (r *recorder) OnResults(results domain.RecognitionResults) {
	r.mu.Lock()
	r.calls = append(r.calls, "results")
	r.results = append(r.results, results)
	r.mu.Unlock()
	r.terminal <- struct{}{}
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatalf("no terminal callback; calls so far: %v", r.snapshot())
	}
}

func (r *recorder) expectNoTerminal(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-r.terminal:
		t.Fatalf("unexpected terminal callback; calls: %v", r.snapshot())
	case <-time.After(within):
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) errors() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.errs...)
}
