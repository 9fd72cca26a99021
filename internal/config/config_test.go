package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"KOI_CHAT_ENDPOINT", "KOI_OFFLINE_ONLY", "DEEPGRAM_API_KEY", "DEEPGRAM_LANGUAGE",
		"AZURE_SPEECH_KEY", "AZURE_SPEECH_REGION", "KOI_PLATFORM", "KOI_STORAGE_PATH",
		"KOI_RULES_FILE", "KOI_LOG_LEVEL", "KOI_AUDIO_INPUT_DEVICE", "DEEPGRAM_PULSE_SOURCE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Chat.Endpoint != "https://ai.koihealth-live.com/text" || cfg.Chat.Model != "gpt-4o-mini" || cfg.Chat.Category != "A" {
		t.Fatalf("unexpected chat defaults: %+v", cfg.Chat)
	}
	if cfg.Chat.StreamTimeout != 60*time.Second || cfg.Chat.OnceTimeout != 30*time.Second || cfg.Chat.HealthTimeout != 5*time.Second {
		t.Fatalf("unexpected chat timeouts: %+v", cfg.Chat)
	}
	if cfg.Chat.MinCharDelay != 20*time.Millisecond || cfg.Chat.MaxCharDelay != 50*time.Millisecond || cfg.Chat.OfflineOnly {
		t.Fatalf("unexpected offline settings: %+v", cfg.Chat)
	}
	if cfg.Medication.Endpoint != "https://ai.koihealth-live.com/image" {
		t.Fatalf("unexpected medication endpoint: %q", cfg.Medication.Endpoint)
	}
	if cfg.Deepgram.Language != "ko" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram defaults: %+v", cfg.Deepgram)
	}
	if cfg.Audio.InputDevice != "default" || cfg.Audio.SampleRate != 16000 || cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Voice.Platform != "desktop" || cfg.Voice.GestureWindow != 30*time.Second || cfg.Voice.StartTimeout != 2*time.Second {
		t.Fatalf("unexpected voice defaults: %+v", cfg.Voice)
	}
	if want := filepath.Join(home, ".config", "koihealth", "state.sqlite"); cfg.Storage.Path != want {
		t.Fatalf("expected storage path %q, got %q", want, cfg.Storage.Path)
	}
	if want := filepath.Join(home, ".config", "koihealth", "corrections.rules"); cfg.Rules.Path != want {
		t.Fatalf("expected rules path %q, got %q", want, cfg.Rules.Path)
	}
	if cfg.SpeechInputAvailable() {
		t.Fatalf("expected speech input to be unavailable without a Deepgram key")
	}
	if cfg.SpeechOutputAvailable() {
		t.Fatalf("expected speech output to be unavailable without an Azure key")
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KOI_CHAT_ENDPOINT", "https://chat.example.com/text")
	t.Setenv("KOI_CHAT_STREAM_TIMEOUT_MS", "1500")
	t.Setenv("KOI_OFFLINE_ONLY", "true")
	t.Setenv("KOI_MEDICATION_ENDPOINT", "https://chat.example.com/image")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("DEEPGRAM_LANGUAGE", "en")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("KOI_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("KOI_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("KOI_SAMPLE_RATE", "22050")
	t.Setenv("AZURE_SPEECH_KEY", "az-key")
	t.Setenv("AZURE_SPEECH_REGION", "eastus")
	t.Setenv("KOI_PLATFORM", "ios")
	t.Setenv("KOI_GESTURE_WINDOW_MS", "5000")
	t.Setenv("KOI_STORAGE_PATH", filepath.Join(home, "db.sqlite"))
	t.Setenv("KOI_RULES_FILE", filepath.Join(home, "my.rules"))
	t.Setenv("KOI_RULE_ITERATION_LIMIT", "42")
	t.Setenv("KOI_LOG_LEVEL", "verbose")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Chat.Endpoint != "https://chat.example.com/text" || cfg.Chat.StreamTimeout != 1500*time.Millisecond || !cfg.Chat.OfflineOnly {
		t.Fatalf("unexpected chat config: %+v", cfg.Chat)
	}
	if cfg.Medication.Endpoint != "https://chat.example.com/image" {
		t.Fatalf("unexpected medication config: %+v", cfg.Medication)
	}
	if cfg.Deepgram.APIKey != "dg-key" || cfg.Deepgram.Language != "en" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputDevice != "mic0" || cfg.Audio.SampleRate != 22050 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Azure.SpeechKey != "az-key" || cfg.Azure.SpeechRegion != "eastus" {
		t.Fatalf("unexpected azure config: %+v", cfg.Azure)
	}
	if cfg.Voice.Platform != "ios" || cfg.Voice.GestureWindow != 5*time.Second {
		t.Fatalf("unexpected voice config: %+v", cfg.Voice)
	}
	if cfg.Storage.Path != filepath.Join(home, "db.sqlite") || cfg.Rules.Path != filepath.Join(home, "my.rules") || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected storage/rules config: %+v %+v", cfg.Storage, cfg.Rules)
	}
	if cfg.Log.Level != "verbose" {
		t.Fatalf("unexpected log level %q", cfg.Log.Level)
	}
	if !cfg.SpeechInputAvailable() || !cfg.SpeechOutputAvailable() {
		t.Fatalf("expected both speech directions to be available")
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KOI_SAMPLE_RATE", "bad")
	t.Setenv("KOI_CHANNELS", "-1")
	t.Setenv("KOI_RULE_ITERATION_LIMIT", "0")
	t.Setenv("KOI_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("KOI_CHAT_ONCE_TIMEOUT_MS", "soon")
	t.Setenv("KOI_OFFLINE_MIN_DELAY_MS", "80")
	t.Setenv("KOI_OFFLINE_MAX_DELAY_MS", "10")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("expected audio fallbacks, got %+v", cfg.Audio)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Chat.OnceTimeout != 30*time.Second {
		t.Fatalf("expected default once timeout, got %s", cfg.Chat.OnceTimeout)
	}
	if cfg.Chat.MaxCharDelay != 80*time.Millisecond {
		t.Fatalf("expected max delay to be raised to the minimum, got %s", cfg.Chat.MaxCharDelay)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}
