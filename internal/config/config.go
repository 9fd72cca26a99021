// Package config resolves runtime configuration from the environment.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the assistant.
type Config struct {
	Chat       ChatConfig
	Medication MedicationConfig
	Deepgram   DeepgramConfig
	Audio      AudioConfig
	Azure      AzureConfig
	Voice      VoiceConfig
	Storage    StorageConfig
	Rules      RulesConfig
	Log        LogConfig
}

type ChatConfig struct {
	Endpoint      string
	Model         string
	Category      string
	StreamTimeout time.Duration
	OnceTimeout   time.Duration
	HealthTimeout time.Duration
	MinCharDelay  time.Duration
	MaxCharDelay  time.Duration
	// OfflineOnly answers every question with the local responder.
	OfflineOnly bool
}

type MedicationConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type AzureConfig struct {
	SpeechKey    string
	SpeechRegion string
	DefaultVoice string
}

type VoiceConfig struct {
	// Platform is desktop, ios, android or mobile.
	Platform          string
	Lang              string
	GestureWindow     time.Duration
	ActivationTimeout time.Duration
	StartTimeout      time.Duration
	FinalizeTimeout   time.Duration
}

type StorageConfig struct {
	Path string
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type LogConfig struct {
	Level string
	File  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "koihealth")

	cfg := Config{
		Chat: ChatConfig{
			Endpoint:      envOrDefault("KOI_CHAT_ENDPOINT", "https://ai.koihealth-live.com/text"),
			Model:         envOrDefault("KOI_CHAT_MODEL", "gpt-4o-mini"),
			Category:      envOrDefault("KOI_CHAT_CATEGORY", "A"),
			StreamTimeout: envOrDefaultDuration("KOI_CHAT_STREAM_TIMEOUT_MS", 60*time.Second),
			OnceTimeout:   envOrDefaultDuration("KOI_CHAT_ONCE_TIMEOUT_MS", 30*time.Second),
			HealthTimeout: envOrDefaultDuration("KOI_CHAT_HEALTH_TIMEOUT_MS", 5*time.Second),
			MinCharDelay:  envOrDefaultDuration("KOI_OFFLINE_MIN_DELAY_MS", 20*time.Millisecond),
			MaxCharDelay:  envOrDefaultDuration("KOI_OFFLINE_MAX_DELAY_MS", 50*time.Millisecond),
			OfflineOnly:   envOrDefaultBool("KOI_OFFLINE_ONLY", false),
		},
		Medication: MedicationConfig{
			Endpoint: envOrDefault("KOI_MEDICATION_ENDPOINT", "https://ai.koihealth-live.com/image"),
			Timeout:  envOrDefaultDuration("KOI_MEDICATION_TIMEOUT_MS", 60*time.Second),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    envOrDefault("DEEPGRAM_LANGUAGE", "ko"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("KOI_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("KOI_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("KOI_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("KOI_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("KOI_CHANNELS", 1),
			ChunkSize:  envOrDefaultInt("KOI_AUDIO_CHUNK_SIZE", 4096),
		},
		Azure: AzureConfig{
			SpeechKey:    strings.TrimSpace(os.Getenv("AZURE_SPEECH_KEY")),
			SpeechRegion: envOrDefault("AZURE_SPEECH_REGION", "koreacentral"),
			DefaultVoice: envOrDefault("AZURE_SPEECH_VOICE", "ko-KR-SunHiNeural"),
		},
		Voice: VoiceConfig{
			Platform:          envOrDefault("KOI_PLATFORM", "desktop"),
			Lang:              envOrDefault("KOI_VOICE_LANG", "ko-KR"),
			GestureWindow:     envOrDefaultDuration("KOI_GESTURE_WINDOW_MS", 30*time.Second),
			ActivationTimeout: envOrDefaultDuration("KOI_ACTIVATION_TIMEOUT_MS", 2*time.Second),
			StartTimeout:      envOrDefaultDuration("KOI_PLAYBACK_START_TIMEOUT_MS", 2*time.Second),
			FinalizeTimeout:   envOrDefaultDuration("KOI_FINALIZE_TIMEOUT_MS", 4*time.Second),
		},
		Storage: StorageConfig{
			Path: envOrDefault("KOI_STORAGE_PATH", filepath.Join(configDir, "state.sqlite")),
		},
		Rules: RulesConfig{
			Path:           envOrDefault("KOI_RULES_FILE", filepath.Join(configDir, "corrections.rules")),
			IterationLimit: envOrDefaultInt("KOI_RULE_ITERATION_LIMIT", 30),
		},
		Log: LogConfig{
			Level: envOrDefault("KOI_LOG_LEVEL", "normal"),
			File:  strings.TrimSpace(os.Getenv("KOI_LOG_FILE")),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Chat.MaxCharDelay < cfg.Chat.MinCharDelay {
		cfg.Chat.MaxCharDelay = cfg.Chat.MinCharDelay
	}

	return cfg, nil
}

// SpeechInputAvailable reports whether push-to-talk can transcribe.
func (c Config) SpeechInputAvailable() bool {
	return c.Deepgram.APIKey != ""
}

// SpeechOutputAvailable reports whether answers can be spoken.
func (c Config) SpeechOutputAvailable() bool {
	return c.Azure.SpeechKey != "" && c.Azure.SpeechRegion != ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
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

// envOrDefaultDuration reads a millisecond count. Negative or malformed
// values fall back.
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
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
