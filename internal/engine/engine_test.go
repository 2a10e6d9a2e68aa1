package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"limetuna/internal/domain"
)

func testConfig() domain.RecognitionConfig {
	return domain.RecognitionConfig{
		LanguageModel:  domain.LanguageModelWebSearch,
		Language:       "en-US",
		MaxResults:     domain.MaxResults,
		PartialResults: true,
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeBackend, *fakeCapture) {
	t.Helper()

	backend := newFakeBackend()
	capture := newFakeCapture()
	created, err := NewFactory(backend, capture, opts, discardLogger()).Create()
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return created.(*Engine), backend, capture
}

func nextAudio(t *testing.T, capture *fakeCapture) *fakeAudio {
	t.Helper()
	select {
	case audio := <-capture.sessions:
		return audio
	case <-time.After(2 * time.Second):
		t.Fatalf("capture was not started")
		return nil
	}
}

// waitIdle waits until the current utterance released its capture and stream.
func waitIdle(t *testing.T, eng *Engine) {
	t.Helper()
	eng.mu.Lock()
	current := eng.current
	eng.mu.Unlock()
	if current == nil {
		return
	}
	select {
	case <-current.released:
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance goroutine did not finish")
	}
}

func requireCalls(t *testing.T, rec *recorder, want ...string) {
	t.Helper()
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected callbacks:\n got %v\nwant %v", got, want)
	}
}

func TestUtteranceDeliversSpeechFinal(t *testing.T) {
	t.Parallel()

	eng, backend, capture := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	audio := nextAudio(t, capture)

	if _, err := audio.writer.Write(make([]byte, 640)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		got := rec.buffers
		rec.mu.Unlock()
		if got >= 640 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audio chunk was not surfaced")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stream.push(Event{Kind: EventPartial, Alternatives: []Alternative{{Transcript: "be"}}})
	stream.push(Event{
		Kind:         EventFinal,
		Alternatives: []Alternative{{Transcript: "bee", Confidence: 0.9}, {Transcript: "be", Confidence: 0.5}},
		SpeechFinal:  true,
	})

	rec.waitTerminal(t)
	requireCalls(t, rec, "ready", "begin", "partial", "end", "results")

	got := rec.results[0]
	if !reflect.DeepEqual(got.Candidates, []string{"bee", "be"}) {
		t.Fatalf("unexpected candidates: %v", got.Candidates)
	}
	if !reflect.DeepEqual(got.Confidences, []float32{0.9, 0.5}) {
		t.Fatalf("unexpected confidences: %v", got.Confidences)
	}

	req := backend.requests[0]
	if req.Language != "en-US" || req.MaxAlternatives != 10 || !req.InterimResults || req.SampleRate != 16000 || req.Encoding != "linear16" {
		t.Fatalf("unexpected stream request: %+v", req)
	}

	waitIdle(t, eng)
	if !stream.sendClosed() {
		t.Fatalf("expected send side to be closed after the utterance")
	}
	if sent := stream.sentBytes(); sent < 640 {
		t.Fatalf("expected audio to reach the stream, got %d bytes", sent)
	}
}

func TestStartWhileListeningIsBusy(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	first := newRecorder()

	if err := eng.StartListening(testConfig(), first); err != nil {
		t.Fatalf("start: %v", err)
	}
	backend.next(t)

	if err := eng.StartListening(testConfig(), newRecorder()); !errors.Is(err, ErrRecognizerBusy) {
		t.Fatalf("expected busy, got %v", err)
	}

	if err := eng.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second := newRecorder()
	if err := eng.StartListening(testConfig(), second); err != nil {
		t.Fatalf("start after cancel: %v", err)
	}
	backend.next(t)

	first.expectNoTerminal(t, 50*time.Millisecond)
	_ = eng.Destroy()
}

func TestRestartDoesNotWaitForSlowCaptureShutdown(t *testing.T) {
	t.Parallel()

	eng, backend, capture := newTestEngine(t, Options{CancelGrace: 100 * time.Millisecond})
	capture.mu.Lock()
	capture.stopDelay = 500 * time.Millisecond
	capture.mu.Unlock()
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	nextAudio(t, capture)
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "bee"}}, SpeechFinal: true})
	rec.waitTerminal(t)

	started := time.Now()
	if err := eng.StartListening(testConfig(), newRecorder()); err != nil {
		t.Fatalf("start after results: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 300*time.Millisecond {
		t.Fatalf("restart waited %v for the previous capture to stop", elapsed)
	}
	backend.next(t)
	_ = eng.Destroy()
}

func TestSpeechTimeout(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{SpeechTimeout: 30 * time.Millisecond})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	backend.next(t)

	rec.waitTerminal(t)
	requireCalls(t, rec, "ready", "error")
	if got := rec.errors(); got[0] != domain.EngineErrorSpeechTimeout {
		t.Fatalf("expected speech timeout, got %v", got)
	}
}

func TestStreamEndWithoutFinalIsNoMatch(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	stream.push(Event{Kind: EventPartial, Alternatives: []Alternative{{Transcript: "hm"}}})
	stream.push(Event{Kind: EventPartial})
	stream.end(nil)

	rec.waitTerminal(t)
	requireCalls(t, rec, "ready", "begin", "partial", "error")
	if got := rec.errors(); got[0] != domain.EngineErrorNoMatch {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestStreamErrorCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "coded", err: WithCode(domain.EngineErrorInsufficientPermissions, errors.New("denied")), want: 9},
		{name: "plain", err: errors.New("socket reset"), want: domain.EngineErrorServer},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			eng, backend, _ := newTestEngine(t, Options{})
			rec := newRecorder()
			if err := eng.StartListening(testConfig(), rec); err != nil {
				t.Fatalf("start: %v", err)
			}
			backend.next(t).end(tc.err)

			rec.waitTerminal(t)
			if got := rec.errors(); len(got) != 1 || got[0] != tc.want {
				t.Fatalf("expected %d, got %v", tc.want, got)
			}
		})
	}
}

func TestOpenFailureCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "coded", err: WithCode(domain.EngineErrorInsufficientPermissions, errors.New("bad key")), want: 9},
		{name: "plain", err: errors.New("dial failed"), want: domain.EngineErrorNetwork},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			eng, backend, _ := newTestEngine(t, Options{})
			backend.openErr = tc.err
			rec := newRecorder()
			if err := eng.StartListening(testConfig(), rec); err != nil {
				t.Fatalf("start: %v", err)
			}

			rec.waitTerminal(t)
			requireCalls(t, rec, "error")
			if got := rec.errors(); got[0] != tc.want {
				t.Fatalf("expected %d, got %v", tc.want, got)
			}
		})
	}
}

func TestCaptureFailureIsAudioError(t *testing.T) {
	t.Parallel()

	eng, backend, capture := newTestEngine(t, Options{})
	capture.startErr = errors.New("no device")
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	backend.next(t)

	rec.waitTerminal(t)
	if got := rec.errors(); got[0] != domain.EngineErrorAudio {
		t.Fatalf("expected audio error, got %v", got)
	}
}

func TestUtteranceEndWaitsForLateFinal(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	stream.push(Event{Kind: EventSpeechStarted})
	stream.push(Event{Kind: EventUtteranceEnd})
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "dee"}}})
	stream.end(nil)

	rec.waitTerminal(t)
	requireCalls(t, rec, "ready", "begin", "end", "results")
	if rec.results[0].Confidences != nil {
		t.Fatalf("unscored finals must not report confidences: %v", rec.results[0].Confidences)
	}
	if !stream.sendClosed() {
		t.Fatalf("utterance end must close the send side")
	}
}

func TestSegmentsJoinAtUtteranceEnd(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "hello"}}})
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "world"}}})
	stream.push(Event{Kind: EventUtteranceEnd})

	rec.waitTerminal(t)
	if got := rec.results[0].Candidates; !reflect.DeepEqual(got, []string{"hello world"}) {
		t.Fatalf("unexpected candidates: %v", got)
	}
}

func TestStopListeningDeliversPendingFinal(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{FinalizeTimeout: 200 * time.Millisecond})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "kay"}}})
	if err := eng.StopListening(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	rec.waitTerminal(t)
	if len(rec.results) != 1 || rec.results[0].Candidates[0] != "kay" {
		t.Fatalf("expected pending final, got %v / %v", rec.results, rec.errors())
	}
	if !stream.sendClosed() {
		t.Fatalf("stop must close the send side")
	}
}

func TestStopListeningWithoutSpeechIsNoMatch(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{FinalizeTimeout: 20 * time.Millisecond})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	backend.next(t)
	_ = eng.StopListening()

	rec.waitTerminal(t)
	requireCalls(t, rec, "ready", "end", "error")
	if got := rec.errors(); got[0] != domain.EngineErrorNoMatch {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestMaxUtteranceStopsCapture(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{MaxUtterance: 30 * time.Millisecond, FinalizeTimeout: 30 * time.Millisecond})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)
	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "zed", Confidence: 0.7}}})

	rec.waitTerminal(t)
	if len(rec.results) != 1 {
		t.Fatalf("expected results, got errors %v", rec.errors())
	}
	if !stream.sendClosed() {
		t.Fatalf("max duration must close the send side")
	}
}

func TestCancelSuppressesCallbacks(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := backend.next(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Cancel()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("cancel blocked")
	}

	stream.push(Event{Kind: EventFinal, Alternatives: []Alternative{{Transcript: "late"}}, SpeechFinal: true})
	rec.expectNoTerminal(t, 100*time.Millisecond)
	waitIdle(t, eng)
}

func TestDestroyRejectsNewUtterances(t *testing.T) {
	t.Parallel()

	eng, backend, _ := newTestEngine(t, Options{})
	rec := newRecorder()

	if err := eng.StartListening(testConfig(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	backend.next(t)

	if err := eng.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := eng.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if err := eng.StartListening(testConfig(), newRecorder()); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected destroyed, got %v", err)
	}
	rec.expectNoTerminal(t, 50*time.Millisecond)
}

func TestStartListeningRequiresListener(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(t, Options{})
	if err := eng.StartListening(testConfig(), nil); !errors.Is(err, ErrNoListener) {
		t.Fatalf("expected listener error, got %v", err)
	}
}

func TestFactoryAvailability(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	capture := newFakeCapture()
	factory := NewFactory(backend, capture, Options{}, discardLogger())
	if !factory.IsAvailable() {
		t.Fatalf("expected factory to be available")
	}

	backend.unavail = errors.New("no api key")
	if factory.IsAvailable() {
		t.Fatalf("expected unavailable backend to disable the factory")
	}
	if _, err := factory.Create(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	backend.unavail = nil
	capture.unavail = errors.New("ffmpeg missing")
	if factory.IsAvailable() {
		t.Fatalf("expected unavailable capture to disable the factory")
	}

	if NewFactory(nil, capture, Options{}, discardLogger()).IsAvailable() {
		t.Fatalf("nil backend must be unavailable")
	}
}
