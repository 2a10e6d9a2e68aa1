// Package config loads limetuna runtime settings from defaults, an optional
// YAML file and LIMETUNA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendDeepgram = "deepgram"
	BackendGoogle   = "google"

	CaptureFFMPEG    = "ffmpeg"
	CapturePortAudio = "portaudio"

	minChunkSize = 256
)

// Config is the root configuration for the bridge.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Google   GoogleConfig   `mapstructure:"google"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Platform PlatformConfig `mapstructure:"platform"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type EngineConfig struct {
	Backend         string        `mapstructure:"backend"`
	Language        string        `mapstructure:"language"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	SpeechTimeout   time.Duration `mapstructure:"speech_timeout"`
	MaxUtterance    time.Duration `mapstructure:"max_utterance"`
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout"`
	CancelGrace     time.Duration `mapstructure:"cancel_grace"`
}

type DeepgramConfig struct {
	APIKey         string `mapstructure:"api_key"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	Model          string `mapstructure:"model"`
	SmartFormat    bool   `mapstructure:"smart_format"`
	UtteranceEndMs int    `mapstructure:"utterance_end_ms"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	Model           string `mapstructure:"model"`
	Punctuation     bool   `mapstructure:"punctuation"`
}

type AudioConfig struct {
	Capture         string `mapstructure:"capture"`
	RecorderCommand string `mapstructure:"recorder_command"`
	InputFormat     string `mapstructure:"input_format"`
	InputDevice     string `mapstructure:"input_device"`
	SampleRate      int    `mapstructure:"sample_rate"`
	Channels        int    `mapstructure:"channels"`
	FramesPerBuffer int    `mapstructure:"frames_per_buffer"`
}

// PlatformConfig configures the desktop collaborators. An empty VolumeCommand
// disables stream muting.
type PlatformConfig struct {
	PermissionFile string `mapstructure:"permission_file"`
	NotifyOnDenied bool   `mapstructure:"notify_on_denied"`
	VolumeCommand  string `mapstructure:"volume_command"`
}

// ServerConfig configures the headless websocket bridge.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads configuration. When configFile is empty LIMETUNA_CONFIG is
// consulted, then limetuna.yaml is searched in ., ./configs and the user
// config directory.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile == "" {
		configFile = strings.TrimSpace(os.Getenv("LIMETUNA_CONFIG"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("limetuna")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "limetuna"))
		}
	}

	v.SetEnvPrefix("LIMETUNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("deepgram.api_key", "LIMETUNA_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("binding deepgram key: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Deepgram.APIKey = resolveEnvRef(strings.TrimSpace(cfg.Deepgram.APIKey))
	cfg.Google.CredentialsFile = resolveEnvRef(strings.TrimSpace(cfg.Google.CredentialsFile))

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.backend", BackendDeepgram)
	v.SetDefault("engine.language", "en-US")
	v.SetDefault("engine.chunk_size", 3200)
	v.SetDefault("engine.speech_timeout", 5*time.Second)
	v.SetDefault("engine.max_utterance", 10*time.Second)
	v.SetDefault("engine.finalize_timeout", 2*time.Second)
	v.SetDefault("engine.cancel_grace", time.Second)

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.api_base_url", "https://api.deepgram.com/v1")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.smart_format", false)
	v.SetDefault("deepgram.utterance_end_ms", 1000)

	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.endpoint", "")
	v.SetDefault("google.model", "latest_short")
	v.SetDefault("google.punctuation", false)

	v.SetDefault("audio.capture", CaptureFFMPEG)
	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frames_per_buffer", 1024)

	v.SetDefault("platform.permission_file", "")
	v.SetDefault("platform.notify_on_denied", true)
	v.SetDefault("platform.volume_command", "")

	v.SetDefault("server.addr", "127.0.0.1:8765")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func normalize(cfg *Config) {
	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))
	cfg.Audio.Capture = strings.ToLower(strings.TrimSpace(cfg.Audio.Capture))
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Engine.ChunkSize < minChunkSize {
		cfg.Engine.ChunkSize = 3200
	}
	if strings.TrimSpace(cfg.Engine.Language) == "" {
		cfg.Engine.Language = "en-US"
	}
}

// Validate rejects unknown backend and capture selections.
func (c Config) Validate() error {
	switch c.Engine.Backend {
	case BackendDeepgram, BackendGoogle:
	default:
		return fmt.Errorf("unknown engine backend %q", c.Engine.Backend)
	}
	switch c.Audio.Capture {
	case CaptureFFMPEG, CapturePortAudio:
	default:
		return fmt.Errorf("unknown audio capture %q", c.Audio.Capture)
	}
	return nil
}

// resolveEnvRef replaces a "${VAR_NAME}" value with the named env var.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging installs and returns the process logger.
func SetupLogging(cfg LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
