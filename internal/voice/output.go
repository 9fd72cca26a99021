package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

var (
	errPlaybackNotStarted = errors.New("speech playback did not start")
	errPlaybackCancelled  = errors.New("speech playback was interrupted")
)

type outputEvent string

const (
	outputSpeak  outputEvent = "speak"
	outputPause  outputEvent = "pause"
	outputResume outputEvent = "resume"
	outputEnd    outputEvent = "end"
	outputStop   outputEvent = "stop"
)

type outputEdge struct {
	from  domain.OutputStatus
	event outputEvent
}

var outputTransitions = map[outputEdge]domain.OutputStatus{
	{domain.OutputIdle, outputSpeak}:     domain.OutputSpeaking,
	{domain.OutputSpeaking, outputSpeak}: domain.OutputSpeaking,
	{domain.OutputPaused, outputSpeak}:   domain.OutputSpeaking,
	{domain.OutputSpeaking, outputPause}: domain.OutputPaused,
	{domain.OutputPaused, outputResume}:  domain.OutputSpeaking,
	{domain.OutputSpeaking, outputEnd}:   domain.OutputIdle,
	{domain.OutputPaused, outputEnd}:     domain.OutputIdle,
	{domain.OutputIdle, outputStop}:      domain.OutputIdle,
	{domain.OutputSpeaking, outputStop}:  domain.OutputIdle,
	{domain.OutputPaused, outputStop}:    domain.OutputIdle,
}

// OutputTiming bounds activation and playback start.
type OutputTiming struct {
	// ActivationTimeout bounds the whole two-phase activation.
	ActivationTimeout time.Duration
	// ActivationGap separates the silent first phase from the test phase.
	ActivationGap time.Duration
	// ActivationHold is how long the confirmed test utterance runs before it is cancelled.
	ActivationHold time.Duration
	// StartTimeout is how long a spoken answer may take to report its start.
	StartTimeout time.Duration
}

func (t OutputTiming) withDefaults() OutputTiming {
	if t.ActivationTimeout <= 0 {
		t.ActivationTimeout = 2 * time.Second
	}
	if t.ActivationGap <= 0 {
		t.ActivationGap = 50 * time.Millisecond
	}
	if t.ActivationHold <= 0 {
		t.ActivationHold = 100 * time.Millisecond
	}
	if t.StartTimeout <= 0 {
		t.StartTimeout = 2 * time.Second
	}
	return t
}

// outputMachine owns the shared synthesis engine. Every utterance gets a
// generation number; events of superseded generations are ignored.
type outputMachine struct {
	engine ports.SpeechOutput
	timing OutputTiming
	log    *logger.Logger
	notify func(reason domain.VoiceStateReason)

	// handoff orders engine hand-overs so generations follow the engine.
	handoff sync.Mutex

	mu         sync.Mutex
	status     domain.OutputStatus
	generation uint64
	source     string
	activated  bool
	activating chan struct{}
}

func newOutputMachine(engine ports.SpeechOutput, timing OutputTiming, log *logger.Logger, notify func(domain.VoiceStateReason)) *outputMachine {
	if notify == nil {
		notify = func(domain.VoiceStateReason) {}
	}
	return &outputMachine{
		engine: engine,
		timing: timing.withDefaults(),
		log:    log,
		notify: notify,
		status: domain.OutputIdle,
	}
}

func (m *outputMachine) fire(event outputEvent) bool {
	next, ok := outputTransitions[outputEdge{from: m.status, event: event}]
	if !ok {
		return false
	}
	m.status = next
	return true
}

func (m *outputMachine) Status() domain.OutputStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *outputMachine) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *outputMachine) Activated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activated
}

// speak cancels whatever the engine is doing and starts u. It reports
// whether the engine confirmed the start within the start timeout.
func (m *outputMachine) speak(ctx context.Context, u ports.Utterance) (bool, error) {
	if !m.engine.Supported() {
		return false, domain.ErrSpeechOutputUnsupported
	}
	if u.Text == "" {
		return false, domain.ErrNoAnswer
	}

	m.handoff.Lock()
	m.engine.Cancel()

	m.mu.Lock()
	m.generation++
	generation := m.generation
	m.fire(outputSpeak)
	m.source = u.Text
	m.mu.Unlock()

	events, err := m.engine.Speak(u)
	m.handoff.Unlock()
	m.notify(domain.ReasonSpeaking)
	if err != nil {
		m.finish(generation, domain.ReasonSpeechEnded)
		return false, err
	}

	timer := time.NewTimer(m.timing.StartTimeout)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				m.finish(generation, domain.ReasonSpeechEnded)
				return false, errPlaybackNotStarted
			}
			switch event.Kind {
			case ports.UtteranceStart:
				go m.watch(generation, events)
				return true, nil
			case ports.UtteranceEnd:
				m.finish(generation, domain.ReasonSpeechEnded)
				return true, nil
			case ports.UtteranceInterrupted:
				m.finish(generation, domain.ReasonSpeechStopped)
				return false, errPlaybackCancelled
			case ports.UtteranceError:
				m.finish(generation, domain.ReasonSpeechEnded)
				if event.Err != nil {
					return false, event.Err
				}
				return false, errPlaybackNotStarted
			}
		case <-timer.C:
			m.cancelGeneration(generation)
			return false, errPlaybackNotStarted
		case <-ctx.Done():
			m.cancelGeneration(generation)
			return false, ctx.Err()
		}
	}
}

func (m *outputMachine) watch(generation uint64, events <-chan ports.UtteranceEvent) {
	for event := range events {
		switch event.Kind {
		case ports.UtteranceEnd:
			m.finish(generation, domain.ReasonSpeechEnded)
		case ports.UtteranceError:
			m.log.Warn("voice: utterance failed: %v", event.Err)
			m.finish(generation, domain.ReasonSpeechEnded)
		case ports.UtteranceInterrupted:
			m.finish(generation, domain.ReasonSpeechStopped)
		}
	}
}

func (m *outputMachine) finish(generation uint64, reason domain.VoiceStateReason) {
	m.mu.Lock()
	if generation != m.generation || !m.fire(outputEnd) {
		m.mu.Unlock()
		return
	}
	m.source = ""
	m.mu.Unlock()
	m.notify(reason)
}

func (m *outputMachine) cancelGeneration(generation uint64) {
	m.handoff.Lock()
	m.mu.Lock()
	current := generation == m.generation
	m.mu.Unlock()
	if current {
		m.engine.Cancel()
	}
	m.handoff.Unlock()
	if current {
		m.finish(generation, domain.ReasonSpeechStopped)
	}
}

// pause acts only when both the local state and the engine are speaking.
func (m *outputMachine) pause() bool {
	m.mu.Lock()
	if m.status != domain.OutputSpeaking || !m.engine.Speaking() || m.engine.Paused() {
		m.mu.Unlock()
		return false
	}
	m.engine.Pause()
	m.fire(outputPause)
	m.mu.Unlock()
	m.notify(domain.ReasonSpeechPaused)
	return true
}

// resume acts only when both the local state and the engine are paused.
func (m *outputMachine) resume() bool {
	m.mu.Lock()
	if m.status != domain.OutputPaused || !m.engine.Paused() {
		m.mu.Unlock()
		return false
	}
	m.engine.Resume()
	m.fire(outputResume)
	m.mu.Unlock()
	m.notify(domain.ReasonSpeechResumed)
	return true
}

// stop is always safe. It cancels the engine and resets the local state.
func (m *outputMachine) stop() {
	m.handoff.Lock()
	m.engine.Cancel()

	m.mu.Lock()
	wasActive := m.status != domain.OutputIdle
	m.generation++
	m.fire(outputStop)
	m.source = ""
	m.mu.Unlock()
	m.handoff.Unlock()

	if wasActive {
		m.notify(domain.ReasonSpeechStopped)
	}
}

// activate unlocks the engine with the two-phase silent activation. Only
// one activation runs at a time; concurrent callers wait for its outcome.
func (m *outputMachine) activate(ctx context.Context, voice string) bool {
	m.mu.Lock()
	if m.activated {
		m.mu.Unlock()
		return true
	}
	if running := m.activating; running != nil {
		m.mu.Unlock()
		select {
		case <-running:
		case <-ctx.Done():
		}
		return m.Activated()
	}
	done := make(chan struct{})
	m.activating = done
	m.mu.Unlock()

	ok := m.runActivation(ctx, voice)

	m.mu.Lock()
	if ok {
		m.activated = true
	}
	m.activating = nil
	close(done)
	m.mu.Unlock()

	if ok {
		m.log.Debug("voice: speech engine activated")
		m.notify(domain.ReasonEngineActivated)
	} else {
		m.log.Warn("voice: speech engine activation failed")
		m.notify(domain.ReasonActivationFailed)
	}
	return ok
}

func (m *outputMachine) runActivation(ctx context.Context, voice string) bool {
	if !m.engine.Supported() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.timing.ActivationTimeout)
	defer cancel()

	m.engine.Cancel()
	if events, err := m.engine.Speak(ports.Utterance{Text: "", Volume: 0.01, Rate: 3.0, Pitch: 0.5}); err == nil {
		waitForStart(ctx, events, m.timing.ActivationGap)
	}
	m.engine.Cancel()

	if !sleepFor(ctx, m.timing.ActivationGap) {
		return false
	}

	events, err := m.engine.Speak(ports.Utterance{
		Text:   "테스트",
		Voice:  voice,
		Lang:   domain.DefaultVoicePreferences().Lang,
		Volume: 0.01,
		Rate:   2.0,
		Pitch:  1.0,
	})
	if err != nil {
		m.log.Debug("voice: activation test utterance rejected: %v", err)
		return false
	}
	if !waitForStart(ctx, events, 0) {
		m.engine.Cancel()
		return false
	}
	time.Sleep(m.timing.ActivationHold)
	m.engine.Cancel()
	return true
}

// waitForStart waits for a start event. A positive limit bounds the wait in
// addition to ctx.
func waitForStart(ctx context.Context, events <-chan ports.UtteranceEvent, limit time.Duration) bool {
	var expired <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case event, ok := <-events:
		return ok && event.Kind == ports.UtteranceStart
	case <-expired:
		return false
	case <-ctx.Done():
		return false
	}
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
