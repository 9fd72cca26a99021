package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/ports"
)

type fakeGate struct {
	mu         sync.Mutex
	state      domain.PermissionState
	queryErr   error
	acquireErr error
	acquired   int
	open       int
}

func (f *fakeGate) Query(_ context.Context) (domain.PermissionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return domain.PermissionUnknown, f.queryErr
	}
	return f.state, nil
}

func (f *fakeGate) Acquire(_ context.Context) (ports.DeviceTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	f.open++
	return &fakeTrack{gate: f}, nil
}

func (f *fakeGate) openTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type fakeTrack struct {
	gate    *fakeGate
	stopped bool
}

func (t *fakeTrack) Stop() error {
	t.gate.mu.Lock()
	defer t.gate.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		t.gate.open--
	}
	return nil
}

type fakeInput struct {
	mu        sync.Mutex
	supported bool
	sessions  []*fakeRecognition
	startErr  error
	calls     int
	configs   []ports.RecognitionConfig
}

func (f *fakeInput) Supported() bool { return f.supported }

func (f *fakeInput) Start(_ context.Context, cfg ports.RecognitionConfig) (ports.RecognitionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.configs = append(f.configs, cfg)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no recognition session configured")
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

func (f *fakeInput) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecognition struct {
	mu      sync.Mutex
	events  chan domain.TranscriptEvent
	closed  bool
	waitErr error
	stops   int
	aborts  int
}

func newFakeRecognition() *fakeRecognition {
	return &fakeRecognition{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeRecognition) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeRecognition) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.closeLocked()
	return nil
}

func (f *fakeRecognition) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.closeLocked()
	return nil
}

func (f *fakeRecognition) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

// end simulates the recognizer ending on its own.
func (f *fakeRecognition) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	f.closeLocked()
}

func (f *fakeRecognition) closeLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

type fakeSpeech struct {
	mu          sync.Mutex
	unsupported bool
	silent      bool
	voices      []domain.Voice
	spoken      []ports.Utterance
	active      chan ports.UtteranceEvent
	interrupted int
	cancels     int
	speaking    bool
	paused      bool
}

func (f *fakeSpeech) Supported() bool { return !f.unsupported }

func (f *fakeSpeech) Voices(_ context.Context) ([]domain.Voice, error) {
	return f.voices, nil
}

func (f *fakeSpeech) Speak(u ports.Utterance) (<-chan ports.UtteranceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, u)
	events := make(chan ports.UtteranceEvent, 2)
	f.active = events
	if !f.silent {
		events <- ports.UtteranceEvent{Kind: ports.UtteranceStart}
		f.speaking = true
	}
	return events, nil
}

func (f *fakeSpeech) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.active != nil {
		f.active <- ports.UtteranceEvent{Kind: ports.UtteranceInterrupted}
		close(f.active)
		f.active = nil
		f.interrupted++
	}
	f.speaking = false
	f.paused = false
}

// finish ends the current utterance normally.
func (f *fakeSpeech) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		f.active <- ports.UtteranceEvent{Kind: ports.UtteranceEnd}
		close(f.active)
		f.active = nil
	}
	f.speaking = false
	f.paused = false
}

func (f *fakeSpeech) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speaking {
		f.paused = true
	}
}

func (f *fakeSpeech) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakeSpeech) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

func (f *fakeSpeech) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSpeech) snapshotSpoken() []ports.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.Utterance, len(f.spoken))
	copy(out, f.spoken)
	return out
}

type fakeAnswers struct {
	mu        sync.Mutex
	answer    string
	err       error
	questions []string
	onAsk     func()
}

func (f *fakeAnswers) Ask(_ context.Context, question string) (string, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	onAsk := f.onAsk
	f.mu.Unlock()
	if onAsk != nil {
		onAsk()
	}
	return f.answer, f.err
}

func (f *fakeAnswers) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.questions))
	copy(out, f.questions)
	return out
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type fakePrefs struct {
	mu    sync.Mutex
	prefs domain.VoicePreferences
	saves int
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{prefs: domain.DefaultVoicePreferences()}
}

func (f *fakePrefs) LoadVoice(_ context.Context) (domain.VoicePreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs, nil
}

func (f *fakePrefs) SaveVoice(_ context.Context, prefs domain.VoicePreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = prefs
	f.saves++
	return nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states    []stateEvent
	partials  []string
	questions []string
	answers   []answerEvent
	errors    []errEvent
}

type stateEvent struct {
	status domain.VoiceStatus
	reason domain.VoiceStateReason
}

type answerEvent struct {
	text   string
	spoken bool
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) VoiceStateChanged(status domain.VoiceStatus, reason domain.VoiceStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) QuestionRecognized(question string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
}

func (f *fakeEventSink) AnswerReady(answer string, spoken bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answerEvent{text: answer, spoken: spoken})
}

func (f *fakeEventSink) VoiceError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) hasReason(reason domain.VoiceStateReason) bool {
	for _, state := range f.snapshotStates() {
		if state.reason == reason {
			return true
		}
	}
	return false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
