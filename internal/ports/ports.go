package ports

import (
	"context"
	"io"

	"limetuna/internal/domain"
)

// ResponseSink receives exactly one terminal response for a command.
type ResponseSink interface {
	Success(payload any)
	Error(code domain.ErrorCode, message string)
}

// Releaser is implemented by sinks that want to know when they are dropped
// without a response.
type Releaser interface {
	Release()
}

// PermissionAuthority grants microphone capture.
type PermissionAuthority interface {
	HasCapturePermission() bool
	// RequestCapturePermission asks the user and reports the answer through
	// done, possibly from another goroutine.
	RequestCapturePermission(done func(granted bool))
}

// RecognitionListener receives native engine callbacks.
type RecognitionListener interface {
	OnReadyForSpeech()
	OnBeginningOfSpeech()
	OnRmsChanged(rmsdB float32)
	OnBufferReceived(buffer []byte)
	OnEndOfSpeech()
	OnError(code int)
	OnResults(results domain.RecognitionResults)
	OnPartialResults(results domain.RecognitionResults)
	OnEvent(eventType int, params map[string]any)
}

// SpeechEngine is a created native recognizer handle.
type SpeechEngine interface {
	StartListening(cfg domain.RecognitionConfig, listener RecognitionListener) error
	StopListening() error
	Cancel() error
	Destroy() error
}

// EngineFactory probes for and constructs the native recognizer.
type EngineFactory interface {
	IsAvailable() bool
	Create() (SpeechEngine, error)
}

// VolumeControl reads and writes output stream levels.
type VolumeControl interface {
	StreamVolume(stream domain.AudioStream) (int, error)
	SetStreamVolume(stream domain.AudioStream, level int) error
}

// DisplayDirective keeps the active view awake.
type DisplayDirective interface {
	SetKeepAwake(on bool) error
}

// EventSink surfaces diagnostic speech events to the UI.
type EventSink interface {
	SpeechEvent(name string, data map[string]any)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Available() error
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}
