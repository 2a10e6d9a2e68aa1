package domain

import "strconv"

// SessionState models the recognition session lifecycle.
type SessionState string

const (
	SessionStateIdle               SessionState = "idle"
	SessionStateAwaitingPermission SessionState = "awaiting_permission"
	SessionStateListening          SessionState = "listening"
)

// ErrorCode is the string code delivered to the web view on failure.
type ErrorCode string

const (
	ErrorCodeInitOptions             ErrorCode = "INIT_OPTIONS_ERROR"
	ErrorCodeEngineUnavailable       ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorCodeEngineCreateFailed      ErrorCode = "ENGINE_CREATE_FAILED"
	ErrorCodePermissionDenied        ErrorCode = "PERMISSION_DENIED"
	ErrorCodeAlreadyListening        ErrorCode = "ALREADY_LISTENING"
	ErrorCodeStartFailed             ErrorCode = "START_FAILED"
	ErrorCodeNoMatch                 ErrorCode = "NO_MATCH"
	ErrorCodeSpeechTimeout           ErrorCode = "SPEECH_TIMEOUT"
	ErrorCodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"
)

// Engine error numbers reported through RecognitionListener.OnError.
const (
	EngineErrorNetworkTimeout          = 1
	EngineErrorNetwork                 = 2
	EngineErrorAudio                   = 3
	EngineErrorServer                  = 4
	EngineErrorClient                  = 5
	EngineErrorSpeechTimeout           = 6
	EngineErrorNoMatch                 = 7
	EngineErrorRecognizerBusy          = 8
	EngineErrorInsufficientPermissions = 9
)

// EngineErrorCode maps a native engine error number to its bridge error code.
func EngineErrorCode(code int) ErrorCode {
	switch code {
	case EngineErrorNoMatch:
		return ErrorCodeNoMatch
	case EngineErrorSpeechTimeout:
		return ErrorCodeSpeechTimeout
	case EngineErrorInsufficientPermissions:
		return ErrorCodeInsufficientPermissions
	default:
		return ErrorCode("ERROR_" + strconv.Itoa(code))
	}
}

// AudioStream identifies one of the non-media output streams muted during listening.
type AudioStream string

const (
	AudioStreamSystem       AudioStream = "system"
	AudioStreamNotification AudioStream = "notification"
	AudioStreamRing         AudioStream = "ring"
)

// MutedStreams lists the streams touched by beep muting, in restore order.
var MutedStreams = []AudioStream{AudioStreamSystem, AudioStreamNotification, AudioStreamRing}

// UnknownVolume marks a stream whose level could not be read.
const UnknownVolume = -1

// LanguageModelWebSearch is the free-form web-search grammar.
const LanguageModelWebSearch = "web_search"

// DefaultLanguage is used until init sets another locale.
const DefaultLanguage = "en-US"

// MaxResults is the number of alternatives requested from the engine.
const MaxResults = 10

// RecognitionConfig is passed to the engine when listening starts.
type RecognitionConfig struct {
	LanguageModel  string
	Language       string
	MaxResults     int
	PartialResults bool
	PreferOffline  bool
}

// RecognitionResults is the raw candidate list delivered by the engine.
// Confidences is nil when the engine supplied no scores.
type RecognitionResults struct {
	Candidates  []string
	Confidences []float32
}

// RecognitionOutcome is the success payload of one completed session.
type RecognitionOutcome struct {
	Text           string    `json:"text"`
	Confidence     *float32  `json:"confidence"`
	AllResults     []string  `json:"allResults"`
	AllConfidences []float32 `json:"allConfidences,omitempty"`
}

// LetterOutcome extends a recognition outcome with the matched letter.
type LetterOutcome struct {
	RecognitionOutcome
	NormalizedLetter *string `json:"normalizedLetter"`
}

// InitOptions carries the optional fields of an init command.
type InitOptions struct {
	Language *string
}

// Status summarizes controller state for the UI.
type Status struct {
	State    SessionState `json:"state"`
	Language string       `json:"language"`
	Muted    bool         `json:"muted"`
}
