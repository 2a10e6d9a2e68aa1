package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"limetuna/internal/domain"
	"limetuna/internal/engine"
)

var errNoCredentials = errors.New("google speech credentials are not configured")

// Config controls the Cloud Speech client.
type Config struct {
	CredentialsFile string
	Endpoint        string
	Model           string
	Punctuation     bool
}

// recognizeStream is the subset of speechpb.Speech_StreamingRecognizeClient used here.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type openFunc func(ctx context.Context) (recognizeStream, error)

// Backend streams audio to Google Cloud Speech-to-Text in single utterance mode.
type Backend struct {
	cfg Config

	mu     sync.Mutex
	client *speech.Client
	open   openFunc
}

func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Name() string { return "google" }

// Available checks that some credential source is configured. The client
// itself is created on first use.
func (b *Backend) Available() error {
	b.mu.Lock()
	injected := b.open != nil
	b.mu.Unlock()
	if injected {
		return nil
	}

	path := strings.TrimSpace(b.cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return errNoCredentials
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("google speech credentials: %w", err)
	}
	return nil
}

func (b *Backend) Open(ctx context.Context, req engine.StreamRequest) (engine.Stream, error) {
	open, err := b.opener()
	if err != nil {
		return nil, engine.WithCode(domain.EngineErrorInsufficientPermissions, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := open(streamCtx)
	if err != nil {
		cancel()
		return nil, engine.WithCode(statusCode(err), fmt.Errorf("failed to open streaming recognize: %w", err))
	}

	if err := stream.Send(configRequest(b.cfg, req)); err != nil {
		_ = stream.CloseSend()
		cancel()
		return nil, engine.WithCode(statusCode(err), fmt.Errorf("failed to send streaming config: %w", err))
	}

	session := &session{
		stream:  stream,
		cancel:  cancel,
		events:  make(chan engine.Event, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go session.recvLoop()
	return session, nil
}

// Close releases the underlying gRPC client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	b.open = nil
	return err
}

func (b *Backend) opener() (openFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open != nil {
		return b.open, nil
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(b.cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if endpoint := strings.TrimSpace(b.cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := speech.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	b.client = client
	b.open = func(ctx context.Context) (recognizeStream, error) {
		return client.StreamingRecognize(ctx)
	}
	return b.open, nil
}

func configRequest(cfg Config, req engine.StreamRequest) *speechpb.StreamingRecognizeRequest {
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := req.Channels
	if channels <= 0 {
		channels = 1
	}
	language := req.Language
	if language == "" {
		language = domain.DefaultLanguage
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					AudioChannelCount:          int32(channels),
					LanguageCode:               language,
					MaxAlternatives:            int32(req.MaxAlternatives),
					Model:                      cfg.Model,
					EnableAutomaticPunctuation: cfg.Punctuation,
				},
				InterimResults:  req.InterimResults,
				SingleUtterance: true,
			},
		},
	}
}

// statusCode maps a gRPC failure to an engine error number.
func statusCode(err error) int {
	return codeFor(status.Code(err))
}

func codeFor(code codes.Code) int {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.EngineErrorInsufficientPermissions
	case codes.DeadlineExceeded:
		return domain.EngineErrorNetworkTimeout
	case codes.Unavailable:
		return domain.EngineErrorNetwork
	case codes.ResourceExhausted:
		return domain.EngineErrorRecognizerBusy
	case codes.InvalidArgument:
		return domain.EngineErrorClient
	default:
		return domain.EngineErrorServer
	}
}

type session struct {
	stream recognizeStream
	cancel context.CancelFunc

	events  chan engine.Event
	closing chan struct{}
	done    chan struct{}

	sendMu     sync.Mutex
	sendClosed bool

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: append([]byte(nil), chunk...),
		},
	})
}

func (s *session) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.stream.CloseSend()
}

func (s *session) Events() <-chan engine.Event {
	return s.events
}

func (s *session) Wait() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.cancel()
		_ = s.CloseSend()
	})
	return s.Wait()
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) recvLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return
		}
		if err != nil {
			s.setErr(engine.WithCode(statusCode(err), err))
			return
		}

		if rpcErr := resp.GetError(); rpcErr != nil && rpcErr.GetCode() != int32(codes.OK) {
			code := codes.Code(rpcErr.GetCode())
			s.setErr(engine.WithCode(codeFor(code), fmt.Errorf("speech service error %s: %s", code, rpcErr.GetMessage())))
			return
		}

		for _, event := range translate(resp) {
			select {
			case s.events <- event:
			case <-s.closing:
				return
			}
		}
	}
}

func translate(resp *speechpb.StreamingRecognizeResponse) []engine.Event {
	var out []engine.Event
	if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
		out = append(out, engine.Event{Kind: engine.EventUtteranceEnd})
	}

	for _, result := range resp.GetResults() {
		alternatives := make([]engine.Alternative, 0, len(result.GetAlternatives()))
		for _, alt := range result.GetAlternatives() {
			text := strings.TrimSpace(alt.GetTranscript())
			if text == "" {
				continue
			}
			alternatives = append(alternatives, engine.Alternative{Transcript: text, Confidence: alt.GetConfidence()})
		}
		if len(alternatives) == 0 {
			continue
		}
		if result.GetIsFinal() {
			out = append(out, engine.Event{Kind: engine.EventFinal, Alternatives: alternatives, SpeechFinal: true})
			continue
		}
		out = append(out, engine.Event{Kind: engine.EventPartial, Alternatives: alternatives})
		// Later interim results are lower-stability tails of the same utterance.
		break
	}
	return out
}
