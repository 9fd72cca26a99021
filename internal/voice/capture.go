package voice

import (
	"context"
	"strings"
	"sync"

	"koihealth/internal/domain"
	"koihealth/internal/ports"
)

type captureEvent string

const (
	capturePress   captureEvent = "press"
	captureRelease captureEvent = "release"
	captureSettle  captureEvent = "settle"
	captureFail    captureEvent = "fail"
	captureCancel  captureEvent = "cancel"
)

type captureEdge struct {
	from  domain.CaptureStatus
	event captureEvent
}

var captureTransitions = map[captureEdge]domain.CaptureStatus{
	{domain.CaptureIdle, capturePress}:        domain.CaptureListening,
	{domain.CaptureListening, captureRelease}: domain.CaptureFinalizing,
	{domain.CaptureListening, captureCancel}:  domain.CaptureIdle,
	{domain.CaptureListening, captureFail}:    domain.CaptureIdle,
	{domain.CaptureFinalizing, captureSettle}: domain.CaptureIdle,
	{domain.CaptureFinalizing, captureFail}:   domain.CaptureIdle,
	{domain.CaptureFinalizing, captureCancel}: domain.CaptureIdle,
}

// captureMachine is the push-to-talk state. Callers serialize access.
type captureMachine struct {
	status domain.CaptureStatus
}

func newCaptureMachine() captureMachine {
	return captureMachine{status: domain.CaptureIdle}
}

// fire applies event and reports whether it was a legal transition.
func (m *captureMachine) fire(event captureEvent) bool {
	next, ok := captureTransitions[captureEdge{from: m.status, event: event}]
	if !ok {
		return false
	}
	m.status = next
	return true
}

// captureSession is one live recognition run.
type captureSession struct {
	cancel context.CancelFunc
	acc    *transcriptAccumulator

	// rec and startErr are written once before ready is closed.
	ready    chan struct{}
	rec      ports.RecognitionSession
	startErr error

	eventsDone chan struct{}

	// released is guarded by the controller mutex.
	released bool
}

func newCaptureSession(cancel context.CancelFunc) *captureSession {
	return &captureSession{
		cancel:     cancel,
		acc:        newTranscriptAccumulator(),
		ready:      make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
}

// transcriptAccumulator keeps final fragments in arrival order and the latest
// interim fragment.
type transcriptAccumulator struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

func newTranscriptAccumulator() *transcriptAccumulator {
	return &transcriptAccumulator{}
}

func (a *transcriptAccumulator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if event.Kind == domain.TranscriptKindFinal {
		if text != "" {
			a.finals = append(a.finals, text)
		}
		a.interim = ""
		return
	}
	a.interim = text
}

func (a *transcriptAccumulator) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// Transcript returns the finals joined by spaces, else the interim text,
// else "".
func (a *transcriptAccumulator) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if joined := strings.TrimSpace(strings.Join(a.finals, " ")); joined != "" {
		return joined
	}
	return a.interim
}

func consumeRecognitionEvents(
	rec ports.RecognitionSession,
	acc *transcriptAccumulator,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	for event := range rec.Events() {
		acc.Add(event)
		if event.Kind == domain.TranscriptKindPartial {
			if text := strings.TrimSpace(event.Text); text != "" {
				events.PartialTranscript(text)
			}
		}
	}
}
