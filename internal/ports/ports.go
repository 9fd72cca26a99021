package ports

import (
	"context"
	"io"

	"koihealth/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// DeviceTrack is an open microphone handle obtained through a PermissionGate.
type DeviceTrack interface {
	Stop() error
}

// PermissionGate reports and requests microphone access.
//
// Query returns domain.ErrPermissionQueryUnsupported when the platform has no
// silent way to read the permission. Acquire wraps domain.ErrPermissionDenied
// when the user or the OS rejected access.
type PermissionGate interface {
	Query(ctx context.Context) (domain.PermissionState, error)
	Acquire(ctx context.Context) (DeviceTrack, error)
}

// RecognitionConfig describes a speech recognition session.
type RecognitionConfig struct {
	Lang           string
	InterimResults bool
	Continuous     bool
}

// RecognitionSession is a live speech-to-text session.
//
// Events is closed once the session ended. Wait then reports how it ended;
// failures are *domain.RecognitionError values.
type RecognitionSession interface {
	Events() <-chan domain.TranscriptEvent
	Stop() error
	Abort() error
	Wait() error
}

// SpeechInput starts speech recognition sessions.
type SpeechInput interface {
	Supported() bool
	Start(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, error)
}

// Utterance is one request to the synthesis engine.
type Utterance struct {
	Text   string
	Voice  string
	Lang   string
	Rate   float64
	Pitch  float64
	Volume float64
}

// UtteranceEventKind identifies an utterance lifecycle event.
type UtteranceEventKind string

const (
	UtteranceStart       UtteranceEventKind = "start"
	UtteranceEnd         UtteranceEventKind = "end"
	UtteranceError       UtteranceEventKind = "error"
	UtteranceInterrupted UtteranceEventKind = "interrupted"
)

// UtteranceEvent reports progress of one spoken utterance.
type UtteranceEvent struct {
	Kind UtteranceEventKind
	Err  error
}

// SpeechOutput is the shared speech synthesis engine.
//
// The channel returned by Speak is buffered. It delivers at most one start
// event followed by exactly one terminal event (end, error or interrupted),
// then closes, whether or not anyone reads it.
type SpeechOutput interface {
	Supported() bool
	Voices(ctx context.Context) ([]domain.Voice, error)
	Speak(u Utterance) (<-chan UtteranceEvent, error)
	Cancel()
	Pause()
	Resume()
	Speaking() bool
	Paused() bool
}

// AnswerFetcher resolves a spoken question into an answer text.
type AnswerFetcher interface {
	Ask(ctx context.Context, question string) (string, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// KeyValueStore persists small documents. Get wraps domain.ErrNotFound for
// missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// EventSink emits voice state and results to the UI.
type EventSink interface {
	VoiceStateChanged(status domain.VoiceStatus, reason domain.VoiceStateReason)
	PartialTranscript(text string)
	QuestionRecognized(question string)
	AnswerReady(answer string, spoken bool)
	VoiceError(code domain.ErrorCode, detail string)
}
