package prefs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("key %q: %w", key, domain.ErrNotFound)
	}
	return value, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(newMemoryKV(), logger.Nop())
	voice, err := store.LoadVoice(context.Background())
	if err != nil {
		t.Fatalf("load voice: %v", err)
	}
	if voice != domain.DefaultVoicePreferences() {
		t.Fatalf("expected voice defaults, got %+v", voice)
	}

	tts, err := store.LoadTTS(context.Background())
	if err != nil {
		t.Fatalf("load tts: %v", err)
	}
	if !tts.Enabled || !tts.AutoPlay || tts.Volume != 0.8 || tts.Rate != 0.9 {
		t.Fatalf("unexpected tts defaults %+v", tts)
	}
}

func TestLoadMergesStoredFieldsOverDefaults(t *testing.T) {
	t.Parallel()

	kv := newMemoryKV()
	kv.values[VoiceKey] = `{"selectedVoice":"Yuna","rate":1.4}`
	store := NewStore(kv, logger.Nop())

	voice, err := store.LoadVoice(context.Background())
	if err != nil {
		t.Fatalf("load voice: %v", err)
	}
	if voice.SelectedVoice != "Yuna" || voice.Rate != 1.4 {
		t.Fatalf("stored fields not applied: %+v", voice)
	}
	if voice.Lang != "ko-KR" || voice.Pitch != 1.0 || voice.Volume != 1.0 {
		t.Fatalf("defaults not kept for missing fields: %+v", voice)
	}
}

func TestLoadResetsUnreadableDocument(t *testing.T) {
	t.Parallel()

	kv := newMemoryKV()
	kv.values[TTSKey] = `{"enabled":false, "rate": "fast"`
	store := NewStore(kv, logger.Nop())

	tts, err := store.LoadTTS(context.Background())
	if err != nil {
		t.Fatalf("load tts: %v", err)
	}
	if tts != domain.DefaultTTSPreferences() {
		t.Fatalf("expected defaults for unreadable document, got %+v", tts)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(newMemoryKV(), logger.Nop())
	want := domain.TTSPreferences{Enabled: true, AutoPlay: false, Rate: 1.2, Pitch: 0.8, Volume: 0.5, Voice: "ko-KR-SunHiNeural"}
	if err := store.SaveTTS(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadTTS(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
