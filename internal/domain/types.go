package domain

import "fmt"

// PermissionState is the last known microphone permission.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// CaptureStatus models the push-to-talk lifecycle.
type CaptureStatus string

const (
	CaptureIdle       CaptureStatus = "idle"
	CaptureListening  CaptureStatus = "listening"
	CaptureFinalizing CaptureStatus = "finalizing"
)

// OutputStatus models the speech output lifecycle.
type OutputStatus string

const (
	OutputIdle     OutputStatus = "idle"
	OutputSpeaking OutputStatus = "speaking"
	OutputPaused   OutputStatus = "paused"
)

// VoiceStateReason provides a structured reason for voice state transitions.
type VoiceStateReason string

const (
	ReasonReady              VoiceStateReason = "ready"
	ReasonListening          VoiceStateReason = "listening"
	ReasonPressCancelled     VoiceStateReason = "press_cancelled"
	ReasonFinalizing         VoiceStateReason = "finalizing"
	ReasonNothingUnderstood  VoiceStateReason = "nothing_understood"
	ReasonCaptureFailed      VoiceStateReason = "capture_failed"
	ReasonRecognizerEnded    VoiceStateReason = "recognizer_ended"
	ReasonFetchingAnswer     VoiceStateReason = "fetching_answer"
	ReasonAnswerReady        VoiceStateReason = "answer_ready"
	ReasonSpeaking           VoiceStateReason = "speaking"
	ReasonSpeechPaused       VoiceStateReason = "speech_paused"
	ReasonSpeechResumed      VoiceStateReason = "speech_resumed"
	ReasonSpeechEnded        VoiceStateReason = "speech_ended"
	ReasonSpeechStopped      VoiceStateReason = "speech_stopped"
	ReasonManualPlayback     VoiceStateReason = "manual_playback"
	ReasonPermissionChanged  VoiceStateReason = "permission_changed"
	ReasonEngineActivated    VoiceStateReason = "engine_activated"
	ReasonActivationFailed   VoiceStateReason = "activation_failed"
	ReasonSpeechInputMissing VoiceStateReason = "speech_input_missing"
)

// ErrorCode identifies the class of a user-visible error.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeServer      ErrorCode = "server"
	ErrorCodePermission  ErrorCode = "permission"
	ErrorCodeCapture     ErrorCode = "capture"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodeSynthesis   ErrorCode = "synthesis"
	ErrorCodeStorage     ErrorCode = "storage"
	ErrorCodeRules       ErrorCode = "rules"
)

// TranscriptKind identifies whether a recognition event is interim or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental recognition output.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// RecognitionErrorCode mirrors the error vocabulary of speech recognizers.
type RecognitionErrorCode string

const (
	RecognitionNoSpeech     RecognitionErrorCode = "no-speech"
	RecognitionAudioCapture RecognitionErrorCode = "audio-capture"
	RecognitionNotAllowed   RecognitionErrorCode = "not-allowed"
	RecognitionNetwork      RecognitionErrorCode = "network"
	RecognitionAborted      RecognitionErrorCode = "aborted"
)

// RecognitionError is reported by a recognition session that failed.
type RecognitionError struct {
	Code RecognitionErrorCode
	Err  error
}

func (e *RecognitionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("speech recognition error: %s", e.Code)
	}
	return fmt.Sprintf("speech recognition error: %s: %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Platform identifies the device family the voice profile is tuned for.
type Platform string

const (
	PlatformDesktop Platform = "desktop"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformMobile  Platform = "mobile"
)

// Voice is one entry of the synthesis engine's voice catalog.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	URI     string `json:"voiceURI,omitempty"`
	Default bool   `json:"default"`
}

// CaptureOutcome summarizes how a released capture was processed.
type CaptureOutcome string

const (
	OutcomeCancelled         CaptureOutcome = "cancelled"
	OutcomeNothingUnderstood CaptureOutcome = "nothing_understood"
	OutcomeAnswered          CaptureOutcome = "answered"
	OutcomeFailed            CaptureOutcome = "failed"
)

// CaptureResult is returned once a capture is released and processed.
type CaptureResult struct {
	Outcome        CaptureOutcome `json:"outcome"`
	Question       string         `json:"question,omitempty"`
	Answer         string         `json:"answer,omitempty"`
	Spoken         bool           `json:"spoken"`
	ManualPlayback bool           `json:"manualPlayback"`
}

// VoiceStatus summarizes the voice controller state.
type VoiceStatus struct {
	Platform       Platform        `json:"platform"`
	Permission     PermissionState `json:"permission"`
	Capture        CaptureStatus   `json:"capture"`
	Output         OutputStatus    `json:"output"`
	Activated      bool            `json:"activated"`
	ManualPlayback bool            `json:"manualPlayback"`
	InterimText    string          `json:"interimText,omitempty"`
	Message        string          `json:"message,omitempty"`
}
