package domain

import "errors"

var (
	ErrEmptyQuestion              = errors.New("question is empty")
	ErrNoAnswer                   = errors.New("no answer received")
	ErrCaptureActive              = errors.New("a capture session is already active")
	ErrNoActiveCapture            = errors.New("no active capture session")
	ErrPermissionRequired         = errors.New("microphone permission is not granted")
	ErrPermissionDenied           = errors.New("microphone access was denied")
	ErrPermissionQueryUnsupported = errors.New("permission query is not supported")
	ErrSpeechInputUnsupported     = errors.New("speech recognition is not supported on this platform")
	ErrSpeechOutputUnsupported    = errors.New("speech synthesis is not supported on this platform")
	ErrNothingUnderstood          = errors.New("nothing was understood")
	ErrNotFound                   = errors.New("not found")
)
