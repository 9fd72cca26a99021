// Package prefs loads and saves the voice and read-aloud preferences.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

var errUnreadable = errors.New("unreadable preferences")

const (
	VoiceKey = "voice-question-settings"
	TTSKey   = "tts-settings"
)

// Store reads preferences through a key-value port. Stored documents are
// merged over the defaults, so older documents missing a field keep working.
type Store struct {
	kv  ports.KeyValueStore
	log *logger.Logger
}

func NewStore(kv ports.KeyValueStore, log *logger.Logger) *Store {
	return &Store{kv: kv, log: log}
}

// LoadVoice returns the saved voice preferences or the defaults.
func (s *Store) LoadVoice(ctx context.Context) (domain.VoicePreferences, error) {
	prefs := domain.DefaultVoicePreferences()
	if err := s.load(ctx, VoiceKey, &prefs); err != nil {
		if errors.Is(err, errUnreadable) {
			return domain.DefaultVoicePreferences(), nil
		}
		return domain.DefaultVoicePreferences(), err
	}
	return prefs, nil
}

func (s *Store) SaveVoice(ctx context.Context, prefs domain.VoicePreferences) error {
	return s.save(ctx, VoiceKey, prefs)
}

// LoadTTS returns the saved read-aloud preferences or the defaults.
func (s *Store) LoadTTS(ctx context.Context) (domain.TTSPreferences, error) {
	prefs := domain.DefaultTTSPreferences()
	if err := s.load(ctx, TTSKey, &prefs); err != nil {
		if errors.Is(err, errUnreadable) {
			return domain.DefaultTTSPreferences(), nil
		}
		return domain.DefaultTTSPreferences(), err
	}
	return prefs, nil
}

func (s *Store) SaveTTS(ctx context.Context, prefs domain.TTSPreferences) error {
	return s.save(ctx, TTSKey, prefs)
}

func (s *Store) load(ctx context.Context, key string, into any) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		s.log.Warn("prefs: discarding unreadable %s: %v", key, err)
		return errUnreadable
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
