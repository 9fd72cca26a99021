// Package recognition turns microphone audio into transcript events by
// pumping captured PCM into a streaming transcription provider.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

// Config controls capture and streaming.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	// Disabled reports speech input as unsupported, for example when no
	// transcription credentials are configured.
	Disabled bool
}

// Recognizer implements ports.SpeechInput.
type Recognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	log      *logger.Logger
}

func NewRecognizer(audio ports.AudioCapture, provider ports.TranscriptionProvider, cfg Config, log *logger.Logger) *Recognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Recognizer{audio: audio, provider: provider, cfg: cfg, log: log}
}

func (r *Recognizer) Supported() bool {
	return !r.cfg.Disabled && r.audio != nil && r.provider != nil
}

// Start opens the provider stream first and then the microphone, so no
// audio is captured without somewhere to send it. Failures are
// *domain.RecognitionError values.
func (r *Recognizer) Start(ctx context.Context, cfg ports.RecognitionConfig) (ports.RecognitionSession, error) {
	streaming := r.cfg.Streaming
	streaming.InterimResults = cfg.InterimResults
	if cfg.Lang != "" {
		streaming.Language = cfg.Lang
	}

	stream, err := r.provider.StartStreaming(ctx, streaming)
	if err != nil {
		return nil, &domain.RecognitionError{Code: domain.RecognitionNetwork, Err: err}
	}

	audio, err := r.audio.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		code := domain.RecognitionAudioCapture
		if errors.Is(err, domain.ErrPermissionDenied) {
			code = domain.RecognitionNotAllowed
		}
		return nil, &domain.RecognitionError{Code: code, Err: err}
	}

	s := &session{
		audio:    audio,
		stream:   stream,
		log:      r.log,
		pumpDone: make(chan struct{}),
	}
	go s.pump(r.cfg.ChunkSize)
	return s, nil
}

type session struct {
	audio    ports.AudioSession
	stream   ports.StreamingSession
	log      *logger.Logger
	pumpDone chan struct{}

	mu      sync.Mutex
	pumpErr error
	sent    int
	aborted bool
	stopped bool
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.stream.Events()
}

// pump forwards audio until the capture ends, then lets the provider
// finalize.
func (s *session) pump(chunkSize int) {
	defer close(s.pumpDone)

	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if sendErr := s.stream.SendAudio(buf[:n]); sendErr != nil {
				s.fail(fmt.Errorf("failed to stream audio: %w", sendErr))
				break
			}
			s.mu.Lock()
			s.sent += n
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isStopped() {
				s.fail(fmt.Errorf("audio capture error: %w", err))
			}
			break
		}
	}
	_ = s.stream.CloseSend()
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pumpErr == nil {
		s.pumpErr = err
	}
}

func (s *session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.aborted
}

// Stop ends the capture and waits for the remaining audio to be handed to
// the provider. Results keep arriving until Events closes.
func (s *session) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	err := s.audio.Stop()
	<-s.pumpDone
	if err != nil {
		s.log.Warn("recognition: audio stop failed: %v", err)
	}
	return nil
}

// Abort drops the session without waiting for results.
func (s *session) Abort() error {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()

	_ = s.audio.Stop()
	return s.stream.Close()
}

// Wait blocks until the provider session ended and classifies how.
func (s *session) Wait() error {
	streamErr := s.stream.Wait()
	<-s.pumpDone

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.aborted:
		return &domain.RecognitionError{Code: domain.RecognitionAborted}
	case s.pumpErr != nil:
		return &domain.RecognitionError{Code: domain.RecognitionAudioCapture, Err: s.pumpErr}
	case streamErr != nil:
		return &domain.RecognitionError{Code: domain.RecognitionNetwork, Err: streamErr}
	case s.sent == 0:
		return &domain.RecognitionError{Code: domain.RecognitionNoSpeech, Err: errors.New("no audio was captured")}
	default:
		return nil
	}
}
