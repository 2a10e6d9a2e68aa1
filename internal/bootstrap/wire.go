package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"limetuna/internal/audio"
	"limetuna/internal/bridge"
	"limetuna/internal/config"
	"limetuna/internal/engine"
	"limetuna/internal/engine/deepgram"
	"limetuna/internal/engine/google"
	"limetuna/internal/platform"
	"limetuna/internal/ports"
	"limetuna/internal/usecase"
)

// Dependencies are the host-specific collaborators supplied by the caller.
type Dependencies struct {
	Events ports.EventSink
	// Emit reaches the web view; nil disables the keep-awake directive.
	Emit   platform.Emitter
	Logger *slog.Logger
	// Permissions overrides the dialog permission authority.
	Permissions ports.PermissionAuthority
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Controller *usecase.SessionController
	Bridge     *bridge.Bridge
	Engines    *engine.Factory

	closers []func() error
}

// Build wires all backend dependencies for cfg.
func Build(cfg config.Config, deps Dependencies) (*Services, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	events := deps.Events
	if events == nil {
		events = noopEvents{}
	}

	services := &Services{Config: cfg}

	backend, err := buildBackend(cfg, services)
	if err != nil {
		return nil, err
	}
	capture, err := buildCapture(cfg)
	if err != nil {
		return nil, err
	}

	perms := deps.Permissions
	if perms == nil {
		dialog, err := platform.NewDialogPermission(platform.PermissionOptions{
			Path:           cfg.Platform.PermissionFile,
			NotifyOnDenied: cfg.Platform.NotifyOnDenied,
		}, log.With("component", "permission"))
		if err != nil {
			return nil, err
		}
		perms = dialog
	}

	services.Engines = engine.NewFactory(backend, capture, engine.Options{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		ChunkSize:       cfg.Engine.ChunkSize,
		SpeechTimeout:   cfg.Engine.SpeechTimeout,
		MaxUtterance:    cfg.Engine.MaxUtterance,
		FinalizeTimeout: cfg.Engine.FinalizeTimeout,
		CancelGrace:     cfg.Engine.CancelGrace,
	}, log.With("component", "engine"))

	services.Controller = usecase.NewSessionController(
		services.Engines,
		perms,
		platform.NewCommandVolume(cfg.Platform.VolumeCommand),
		platform.NewEventDisplay(deps.Emit),
		events,
		log.With("component", "controller"),
		usecase.Config{DefaultLanguage: cfg.Engine.Language},
	)
	services.Bridge = bridge.New(services.Controller, log.With("component", "bridge"))

	log.Info("speech bridge assembled",
		"backend", cfg.Engine.Backend,
		"capture", cfg.Audio.Capture,
		"language", cfg.Engine.Language,
	)
	return services, nil
}

// Close tears down the controller and releases backend clients.
func (s *Services) Close() error {
	if s.Controller != nil {
		s.Controller.Close()
	}
	var errs []error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildBackend(cfg config.Config, services *Services) (engine.Backend, error) {
	switch cfg.Engine.Backend {
	case config.BackendDeepgram:
		return deepgram.NewBackend(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
		}), nil
	case config.BackendGoogle:
		backend := google.NewBackend(google.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			Endpoint:        cfg.Google.Endpoint,
			Model:           cfg.Google.Model,
			Punctuation:     cfg.Google.Punctuation,
		})
		services.closers = append(services.closers, backend.Close)
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Engine.Backend)
	}
}

func buildCapture(cfg config.Config) (ports.AudioCapture, error) {
	switch cfg.Audio.Capture {
	case config.CaptureFFMPEG:
		return audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand), nil
	case config.CapturePortAudio:
		return audio.NewPortAudioCapture(cfg.Audio.FramesPerBuffer), nil
	default:
		return nil, fmt.Errorf("unknown audio capture %q", cfg.Audio.Capture)
	}
}

type noopEvents struct{}

func (noopEvents) SpeechEvent(string, map[string]any) {}
