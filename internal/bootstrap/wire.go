// Package bootstrap assembles the runtime graph from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"koihealth/internal/audio"
	"koihealth/internal/chat"
	"koihealth/internal/config"
	"koihealth/internal/conversation"
	"koihealth/internal/logger"
	"koihealth/internal/medication"
	"koihealth/internal/ports"
	"koihealth/internal/prefs"
	"koihealth/internal/providers/deepgram"
	"koihealth/internal/recognition"
	"koihealth/internal/rules"
	"koihealth/internal/speech"
	"koihealth/internal/store"
	"koihealth/internal/voice"
)

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Log          *logger.Logger
	Store        *store.Store
	Prefs        *prefs.Store
	Chat         *chat.Client
	Conversation *conversation.Session
	Voice        *voice.Controller
	Medication   *medication.Client

	closers []io.Closer
}

// Close stops speech and releases the database and log file.
func (s *Services) Close() error {
	if s.Voice != nil {
		s.Voice.Close()
	}
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build loads the configuration and wires every backend dependency.
func Build(ctx context.Context, eventSink ports.EventSink) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, logFile, err := openLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	services, err := BuildWith(ctx, cfg, eventSink, log)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	if logFile != nil {
		services.closers = append([]io.Closer{logFile}, services.closers...)
	}
	return services, nil
}

// BuildWith wires the graph for an already loaded configuration.
func BuildWith(ctx context.Context, cfg config.Config, eventSink ports.EventSink, log *logger.Logger) (*Services, error) {
	if log == nil {
		log = logger.Nop()
	}

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	services := &Services{Config: cfg, Log: log, Store: db, closers: []io.Closer{db}}

	prefStore := prefs.NewStore(db, log)
	services.Prefs = prefStore

	pacing := chat.DefaultPacing()
	pacing.MinDelay = cfg.Chat.MinCharDelay
	pacing.MaxDelay = cfg.Chat.MaxCharDelay
	services.Chat = chat.NewClient(chat.Config{
		Endpoint:      cfg.Chat.Endpoint,
		Model:         cfg.Chat.Model,
		Category:      cfg.Chat.Category,
		StreamTimeout: cfg.Chat.StreamTimeout,
		OnceTimeout:   cfg.Chat.OnceTimeout,
		HealthTimeout: cfg.Chat.HealthTimeout,
		Offline:       cfg.Chat.OfflineOnly,
	}, log, chat.WithPacing(pacing))

	services.Medication = medication.NewClient(medication.Config{
		Endpoint: cfg.Medication.Endpoint,
		Timeout:  cfg.Medication.Timeout,
		Offline:  cfg.Chat.OfflineOnly,
	}, nil, log)

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	recognizer := recognition.NewRecognizer(
		capture,
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		recognition.Config{
			Audio: audioCfg,
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
				Language:       cfg.Deepgram.Language,
			},
			ChunkSize: cfg.Audio.ChunkSize,
			Disabled:  !cfg.SpeechInputAvailable(),
		},
		log,
	)

	services.Voice = voice.NewController(voice.Deps{
		Permission: audio.NewGate(capture, audioCfg),
		Input:      recognizer,
		Output:     speechOutput(cfg, log),
		Answers:    services.Chat,
		Rules:      rulesEngine,
		Prefs:      prefStore,
		Events:     eventSink,
		Log:        log,
	}, voice.Config{
		Profile: voice.ProfileFor(voice.ParsePlatform(cfg.Voice.Platform)),
		Recognition: ports.RecognitionConfig{
			Lang:           cfg.Voice.Lang,
			InterimResults: true,
			Continuous:     true,
		},
		Output: voice.OutputTiming{
			ActivationTimeout: cfg.Voice.ActivationTimeout,
			StartTimeout:      cfg.Voice.StartTimeout,
		},
		GestureWindow:   cfg.Voice.GestureWindow,
		FinalizeTimeout: cfg.Voice.FinalizeTimeout,
	})

	history := conversation.NewHistory(db, log)
	if err := history.Load(ctx); err != nil {
		log.Warn("bootstrap: chat history unavailable: %v", err)
	}
	services.Conversation = conversation.NewSession(history, services.Chat, services.Voice, prefStore, log)

	log.Info("bootstrap: ready (platform=%s, speech input=%t, speech output=%t, offline=%t)",
		cfg.Voice.Platform, cfg.SpeechInputAvailable(), cfg.SpeechOutputAvailable(), cfg.Chat.OfflineOnly)
	return services, nil
}

// speechOutput returns the Azure engine, or the unsupported engine when
// credentials or the audio device are missing.
func speechOutput(cfg config.Config, log *logger.Logger) ports.SpeechOutput {
	if !cfg.SpeechOutputAvailable() {
		log.Info("bootstrap: speech output disabled (no Azure credentials)")
		return speech.NoOp{}
	}
	player, err := speech.NewPlayer(log)
	if err != nil {
		log.Warn("bootstrap: audio output unavailable: %v", err)
		return speech.NoOp{}
	}
	client := speech.NewAzureClient(cfg.Azure.SpeechKey, cfg.Azure.SpeechRegion, log, speech.WithVoice(cfg.Azure.DefaultVoice))
	return speech.NewEngine(client, player, log)
}

func openLogger(cfg config.LogConfig) (*logger.Logger, *os.File, error) {
	level := logger.ParseLevel(cfg.Level)
	if cfg.File == "" {
		return logger.New(level, os.Stderr), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.New(level, file), file, nil
}
