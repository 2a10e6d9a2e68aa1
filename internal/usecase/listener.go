package usecase

import "limetuna/internal/domain"

// sessionListener forwards engine callbacks for one session onto the main loop.
type sessionListener struct {
	controller *SessionController
	generation uint64
}

func (l *sessionListener) post(fn func()) {
	l.controller.dispatch(fn, func() {})
}

func (l *sessionListener) observe(name string, data map[string]any) {
	l.post(func() { l.controller.observe(l.generation, name, data) })
}

func (l *sessionListener) OnReadyForSpeech() {
	l.observe("ready", nil)
}

func (l *sessionListener) OnBeginningOfSpeech() {
	l.observe("beginningOfSpeech", nil)
}

func (l *sessionListener) OnRmsChanged(rmsdB float32) {
	l.observe("rmsChanged", map[string]any{"rmsdB": rmsdB})
}

func (l *sessionListener) OnBufferReceived(buffer []byte) {
	l.observe("bufferReceived", map[string]any{"bytes": len(buffer)})
}

func (l *sessionListener) OnEndOfSpeech() {
	l.observe("endOfSpeech", nil)
}

func (l *sessionListener) OnPartialResults(results domain.RecognitionResults) {
	l.observe("partialResults", map[string]any{"candidates": append([]string(nil), results.Candidates...)})
}

func (l *sessionListener) OnEvent(eventType int, params map[string]any) {
	data := map[string]any{"type": eventType}
	for key, value := range params {
		data[key] = value
	}
	l.observe("event", data)
}

func (l *sessionListener) OnError(code int) {
	l.post(func() { l.controller.handleError(l.generation, code) })
}

func (l *sessionListener) OnResults(results domain.RecognitionResults) {
	l.post(func() { l.controller.handleResults(l.generation, results) })
}
