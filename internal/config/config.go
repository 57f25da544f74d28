package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAPIBase = "http://localhost:8000"

// Config stores runtime configuration for the website generator client.
type Config struct {
	API        APIConfig
	Transcribe TranscribeConfig
	Audio      AudioConfig
	Rules      RulesConfig
	Preview    PreviewConfig
	LogLevel   string
}

type APIConfig struct {
	BaseURL      string
	PublicOrigin string
	Timeout      time.Duration
}

type TranscribeConfig struct {
	URL string
}

type AudioConfig struct {
	RecorderCommand  string
	InputFormat      string
	InputDevice      string
	SampleRate       int
	Channels         int
	Bitrate          int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	FrameInterval    time.Duration
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type PreviewConfig struct {
	Addr string
}

// Load reads an optional .env file from the working directory, then resolves
// configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	return load(".env")
}

func load(envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	apiBase := strings.TrimRight(envOrDefault("SITEGEN_API_BASE", defaultAPIBase), "/")

	cfg := Config{
		API: APIConfig{
			BaseURL:      apiBase,
			PublicOrigin: strings.TrimRight(envOrDefault("SITEGEN_PUBLIC_ORIGIN", apiBase), "/"),
			Timeout:      time.Duration(envOrDefaultInt("SITEGEN_HTTP_TIMEOUT_MS", 120000)) * time.Millisecond,
		},
		Transcribe: TranscribeConfig{
			URL: envOrDefault("SITEGEN_TRANSCRIBE_URL", "ws://localhost:8000/ws"),
		},
		Audio: AudioConfig{
			RecorderCommand:  envOrDefault("SITEGEN_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:      envOrDefault("SITEGEN_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:      envOrDefault("SITEGEN_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:       envOrDefaultInt("SITEGEN_SAMPLE_RATE", 16000),
			Channels:         envOrDefaultInt("SITEGEN_CHANNELS", 1),
			Bitrate:          envOrDefaultInt("SITEGEN_AUDIO_BITRATE", 128000),
			EchoCancellation: envOrDefaultBool("SITEGEN_ECHO_CANCELLATION", true),
			NoiseSuppression: envOrDefaultBool("SITEGEN_NOISE_SUPPRESSION", true),
			AutoGainControl:  envOrDefaultBool("SITEGEN_AUTO_GAIN", true),
			FrameInterval:    time.Duration(envOrDefaultInt("SITEGEN_FRAME_INTERVAL_MS", 5000)) * time.Millisecond,
		},
		Rules: RulesConfig{
			Path:           envOrDefault("SITEGEN_RULES_FILE", filepath.Join(home, ".config", "sitegen", "dictation.yaml")),
			IterationLimit: envOrDefaultInt("SITEGEN_RULE_ITERATION_LIMIT", 30),
		},
		Preview: PreviewConfig{
			Addr: envOrDefault("SITEGEN_PREVIEW_ADDR", "127.0.0.1:0"),
		},
		LogLevel: envOrDefault("SITEGEN_LOG_LEVEL", "info"),
	}

	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 120 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.Bitrate <= 0 {
		cfg.Audio.Bitrate = 128000
	}
	if cfg.Audio.FrameInterval <= 0 {
		cfg.Audio.FrameInterval = 5 * time.Second
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
