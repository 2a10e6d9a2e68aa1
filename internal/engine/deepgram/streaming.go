package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"limetuna/internal/domain"
	"limetuna/internal/engine"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

var errMissingKey = errors.New("DEEPGRAM_API_KEY is not configured")

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	SmartFormat    bool
	UtteranceEndMs int
}

// Backend streams audio to Deepgram's live transcription websocket.
type Backend struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewBackend(cfg Config) *Backend {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.UtteranceEndMs <= 0 {
		cfg.UtteranceEndMs = 1000
	}
	return &Backend{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (b *Backend) Name() string { return "deepgram" }

func (b *Backend) Available() error {
	if strings.TrimSpace(b.cfg.APIKey) == "" {
		return errMissingKey
	}
	return nil
}

func (b *Backend) Open(ctx context.Context, req engine.StreamRequest) (engine.Stream, error) {
	if err := b.Available(); err != nil {
		return nil, engine.WithCode(domain.EngineErrorInsufficientPermissions, err)
	}

	wsURL, err := buildListenURL(b.cfg, req)
	if err != nil {
		return nil, engine.WithCode(domain.EngineErrorClient, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+b.cfg.APIKey)

	conn, resp, err := b.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, engine.WithCode(dialErrorCode(status), fmt.Errorf("failed to connect to Deepgram websocket: %w", err))
	}

	session := &streamingSession{
		conn:    conn,
		events:  make(chan engine.Event, 64),
		audio:   make(chan []byte, 32),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

func dialErrorCode(status int) int {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return domain.EngineErrorInsufficientPermissions
	case http.StatusTooManyRequests:
		return domain.EngineErrorRecognizerBusy
	case http.StatusBadRequest:
		return domain.EngineErrorClient
	case 0:
		return domain.EngineErrorNetwork
	default:
		if status >= 500 {
			return domain.EngineErrorServer
		}
		return domain.EngineErrorNetwork
	}
}

type streamingSession struct {
	conn *websocket.Conn

	events  chan engine.Event
	audio   chan []byte
	closing chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan engine.Event {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil || isNormalClose(err) {
		return
	}
	select {
	case <-s.closing:
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// isNormalClose reports whether err, possibly wrapped, is a close frame that
// ends the stream without a failure.
func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	default:
		return false
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(engine.WithCode(domain.EngineErrorNetwork, fmt.Errorf("failed to send audio: %w", err)))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(engine.WithCode(domain.EngineErrorNetwork, fmt.Errorf("failed to close stream: %w", err)))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				return
			}
			s.setErr(engine.WithCode(domain.EngineErrorNetwork, fmt.Errorf("failed to read provider event: %w", err)))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		event, stop, err := translate(response)
		if err != nil {
			s.setErr(err)
			return
		}
		if event != nil {
			s.emit(*event)
		}
		if stop {
			return
		}
	}
}

func (s *streamingSession) emit(event engine.Event) {
	select {
	case s.events <- event:
	case <-s.closing:
	}
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []deepgramAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// translate maps one Deepgram message to an engine event. stop reports that
// the server is done with the stream.
func translate(response deepgramResponse) (event *engine.Event, stop bool, err error) {
	switch {
	case strings.EqualFold(response.Type, "Error"):
		message := strings.TrimSpace(response.Message)
		if message == "" {
			message = strings.TrimSpace(response.Description)
		}
		if message == "" {
			message = "deepgram returned an unknown error"
		}
		return nil, true, engine.WithCode(domain.EngineErrorServer, errors.New(message))
	case strings.EqualFold(response.Type, "SpeechStarted"):
		return &engine.Event{Kind: engine.EventSpeechStarted}, false, nil
	case strings.EqualFold(response.Type, "UtteranceEnd"):
		return &engine.Event{Kind: engine.EventUtteranceEnd}, false, nil
	case strings.EqualFold(response.Type, "Metadata"):
		return nil, false, nil
	}

	alternatives := extractAlternatives(response)
	if response.IsFinal || response.SpeechFinal {
		return &engine.Event{Kind: engine.EventFinal, Alternatives: alternatives, SpeechFinal: response.SpeechFinal}, false, nil
	}
	if len(alternatives) == 0 {
		return nil, false, nil
	}
	return &engine.Event{Kind: engine.EventPartial, Alternatives: alternatives}, false, nil
}

func extractAlternatives(response deepgramResponse) []engine.Alternative {
	source := response.Channel.Alternatives
	if len(source) == 0 && len(response.Results.Channels) > 0 {
		source = response.Results.Channels[0].Alternatives
	}

	out := make([]engine.Alternative, 0, len(source))
	for _, alt := range source {
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		out = append(out, engine.Alternative{Transcript: text, Confidence: alt.Confidence})
	}
	return out
}

func buildListenURL(cfg Config, req engine.StreamRequest) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if req.Encoding == "" {
		req.Encoding = "linear16"
	}
	if req.SampleRate <= 0 {
		req.SampleRate = 16000
	}
	if req.Channels <= 0 {
		req.Channels = 1
	}
	if req.MaxAlternatives <= 0 {
		req.MaxAlternatives = 1
	}
	utteranceEnd := cfg.UtteranceEndMs
	if utteranceEnd <= 0 {
		utteranceEnd = 1000
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", req.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", req.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", req.Channels))
	query.Set("alternatives", fmt.Sprintf("%d", req.MaxAlternatives))
	// utterance_end_ms requires interim results, so they are always requested.
	query.Set("interim_results", "true")
	query.Set("vad_events", "true")
	query.Set("utterance_end_ms", fmt.Sprintf("%d", utteranceEnd))
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if req.Language != "" {
		query.Set("language", req.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
