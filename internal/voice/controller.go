// Package voice implements the push-to-talk voice question flow: microphone
// permission, capture, answer fetch and spoken playback.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

const (
	messageNothingUnderstood = "음성이 인식되지 않았습니다. 더 명확하게 말씀해 주세요."
	messageInputUnsupported  = "이 브라우저는 음성 인식을 지원하지 않습니다."
	messageCaptureStartFail  = "음성 인식을 시작할 수 없습니다."
	messagePlaybackFailed    = "음성 재생을 시작할 수 없습니다."
	messagePermissionDenied  = "마이크 권한이 거부되었습니다. 설정에서 허용해주세요."
	messagePermissionMissing = "마이크 권한이 필요합니다. 먼저 권한을 허용해주세요."
)

// PreferenceStore loads and saves the voice preferences.
type PreferenceStore interface {
	LoadVoice(ctx context.Context) (domain.VoicePreferences, error)
	SaveVoice(ctx context.Context, prefs domain.VoicePreferences) error
}

// Config controls the controller behavior.
type Config struct {
	Profile     Profile
	Recognition ports.RecognitionConfig
	Output      OutputTiming
	// GestureWindow is the lifetime of a gesture lease.
	GestureWindow time.Duration
	// FinalizeTimeout bounds how long a released capture waits for the
	// recognizer to flush its last results.
	FinalizeTimeout time.Duration
	Now             func() time.Time
}

// Deps are the capabilities the controller drives.
type Deps struct {
	Permission ports.PermissionGate
	Input      ports.SpeechInput
	Output     ports.SpeechOutput
	Answers    ports.AnswerFetcher
	Rules      ports.RulesEngine
	Prefs      PreferenceStore
	Events     ports.EventSink
	Log        *logger.Logger
}

// Controller coordinates permission, capture and speech output so that a
// captured question results in a spoken answer.
type Controller struct {
	answers ports.AnswerFetcher
	input   ports.SpeechInput
	rules   ports.RulesEngine
	prefs   PreferenceStore
	events  ports.EventSink
	log     *logger.Logger
	cfg     Config

	permission *permissionMachine
	output     *outputMachine
	lease      *GestureLease

	mu           sync.Mutex
	capture      captureMachine
	current      *captureSession
	pending      *time.Timer
	pressID      uint64
	manualText   string
	voices       []domain.Voice
	defaultVoice string
}

func NewController(deps Deps, cfg Config) *Controller {
	if cfg.Profile.Platform == "" {
		cfg.Profile = ProfileFor(domain.PlatformDesktop)
	}
	if cfg.Recognition.Lang == "" {
		cfg.Recognition.Lang = domain.DefaultVoicePreferences().Lang
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 4 * time.Second
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	c := &Controller{
		answers:    deps.Answers,
		input:      deps.Input,
		rules:      deps.Rules,
		prefs:      deps.Prefs,
		events:     deps.Events,
		log:        log,
		cfg:        cfg,
		permission: newPermissionMachine(deps.Permission, log),
		lease:      NewGestureLease(cfg.GestureWindow, cfg.Now),
		capture:    newCaptureMachine(),
	}
	c.output = newOutputMachine(deps.Output, cfg.Output, log, func(reason domain.VoiceStateReason) {
		c.emitState(reason, "")
	})
	return c
}

// Init probes the permission, loads the voice catalog and reports readiness.
// When no voice is selected yet, the platform default is saved.
func (c *Controller) Init(ctx context.Context) domain.VoiceStatus {
	c.permission.probe(ctx)

	if _, err := c.Voices(ctx); err != nil {
		c.log.Warn("voice: could not load voice catalog: %v", err)
	}

	if !c.input.Supported() {
		message := c.cfg.Profile.Notice
		if message == "" {
			message = messageInputUnsupported
		}
		c.events.VoiceError(domain.ErrorCodeCapture, message)
		c.emitState(domain.ReasonSpeechInputMissing, message)
		return c.Status()
	}

	c.emitState(domain.ReasonReady, "")
	return c.Status()
}

// Voices returns the synthesis voice catalog, loading it on first use.
func (c *Controller) Voices(ctx context.Context) ([]domain.Voice, error) {
	c.mu.Lock()
	if c.voices != nil {
		voices := append([]domain.Voice(nil), c.voices...)
		c.mu.Unlock()
		return voices, nil
	}
	c.mu.Unlock()

	voices, err := c.output.engine.Voices(ctx)
	if err != nil {
		return nil, err
	}

	var defaultName string
	if voice, ok := c.cfg.Profile.DefaultVoice(voices); ok {
		defaultName = voice.Name
	}

	c.mu.Lock()
	c.voices = voices
	c.defaultVoice = defaultName
	c.mu.Unlock()

	if defaultName != "" && c.prefs != nil {
		prefs, err := c.prefs.LoadVoice(ctx)
		if err == nil && prefs.SelectedVoice == "" {
			prefs.SelectedVoice = defaultName
			if err := c.prefs.SaveVoice(ctx, prefs); err != nil {
				c.log.Warn("voice: could not save default voice: %v", err)
			}
		}
	}
	return append([]domain.Voice(nil), voices...), nil
}

// ProbePermission silently refreshes the microphone permission.
func (c *Controller) ProbePermission(ctx context.Context) domain.PermissionState {
	state := c.permission.probe(ctx)
	c.emitState(domain.ReasonPermissionChanged, "")
	return state
}

// RequestPermission asks for microphone access.
func (c *Controller) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	state, err := c.permission.request(ctx)
	switch {
	case state == domain.PermissionDenied:
		c.events.VoiceError(domain.ErrorCodePermission, messagePermissionDenied)
	case err != nil:
		c.events.VoiceError(domain.ErrorCodePermission, err.Error())
	}
	c.emitState(domain.ReasonPermissionChanged, "")
	return state, err
}

// Press is the start of a push-to-talk gesture. Listening begins once the
// control is held for the platform's long-press threshold.
func (c *Controller) Press(ctx context.Context) error {
	c.lease.Acquire()

	if !c.input.Supported() {
		c.events.VoiceError(domain.ErrorCodeCapture, messageInputUnsupported)
		return domain.ErrSpeechInputUnsupported
	}
	if c.permission.State() != domain.PermissionGranted {
		c.events.VoiceError(domain.ErrorCodePermission, messagePermissionMissing)
		return domain.ErrPermissionRequired
	}

	c.mu.Lock()
	if c.capture.status != domain.CaptureIdle || c.pending != nil {
		c.mu.Unlock()
		return domain.ErrCaptureActive
	}
	c.pressID++
	id := c.pressID
	c.pending = time.AfterFunc(c.cfg.Profile.LongPress, func() {
		c.beginCapture(ctx, id)
	})
	c.mu.Unlock()

	c.output.stop()

	if c.cfg.Profile.RequiresActivation && !c.output.Activated() {
		voice := c.voiceName(c.voicePreferences(ctx).SelectedVoice)
		go c.output.activate(context.WithoutCancel(ctx), voice)
	}
	return nil
}

func (c *Controller) beginCapture(ctx context.Context, id uint64) {
	c.mu.Lock()
	if id != c.pressID || c.pending == nil {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	if !c.capture.fire(capturePress) {
		c.mu.Unlock()
		return
	}
	captureCtx, cancel := context.WithCancel(ctx)
	session := newCaptureSession(cancel)
	c.current = session
	c.mu.Unlock()

	c.emitState(domain.ReasonListening, "")

	rec, err := c.input.Start(captureCtx, c.cfg.Recognition)
	if err != nil {
		session.startErr = err
		close(session.ready)
		c.log.Warn("voice: could not start recognition: %v", err)
		if c.endCapture(session, captureFail, false) {
			c.reportCaptureFailure(err, messageCaptureStartFail)
		}
		return
	}
	session.rec = rec
	close(session.ready)

	go c.watchCapture(session)
}

// watchCapture drains recognition events. A session that ends before the
// control was released goes back to idle without processing.
func (c *Controller) watchCapture(session *captureSession) {
	consumeRecognitionEvents(session.rec, session.acc, c.events, session.eventsDone)

	err := session.rec.Wait()
	if err != nil {
		if c.endCapture(session, captureFail, true) {
			c.reportCaptureFailure(err, "")
		}
		return
	}
	if c.endCapture(session, captureCancel, true) {
		c.emitState(domain.ReasonRecognizerEnded, "")
	}
}

// Release ends the push-to-talk gesture. Released before the long-press
// threshold, nothing starts. Otherwise the transcript is finalized, sent for
// an answer and the answer is spoken when the platform allows it. Releasing
// while not listening is a no-op.
func (c *Controller) Release(ctx context.Context) (domain.CaptureResult, error) {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
		c.pressID++
		c.mu.Unlock()
		c.emitState(domain.ReasonPressCancelled, "")
		return domain.CaptureResult{Outcome: domain.OutcomeCancelled}, nil
	}
	session := c.current
	if session == nil || session.released || !c.capture.fire(captureRelease) {
		c.mu.Unlock()
		return domain.CaptureResult{Outcome: domain.OutcomeCancelled}, nil
	}
	session.released = true
	c.mu.Unlock()

	c.emitState(domain.ReasonFinalizing, "")

	<-session.ready
	if session.startErr != nil {
		return domain.CaptureResult{Outcome: domain.OutcomeFailed}, session.startErr
	}

	if err := session.rec.Stop(); err != nil {
		c.log.Warn("voice: recognizer stop failed: %v", err)
	}
	timer := time.NewTimer(c.cfg.FinalizeTimeout)
	select {
	case <-session.eventsDone:
		timer.Stop()
	case <-timer.C:
		c.log.Warn("voice: recognizer did not finish in %s, aborting", c.cfg.FinalizeTimeout)
		_ = session.rec.Abort()
		<-session.eventsDone
	}
	recErr := session.rec.Wait()

	cancelled := domain.CaptureResult{Outcome: domain.OutcomeCancelled}
	text := session.acc.Transcript()
	if text == "" {
		if recErr != nil && recognitionCode(recErr) != domain.RecognitionAborted {
			if !c.endCapture(session, captureFail, false) {
				return cancelled, nil
			}
			c.reportCaptureFailure(recErr, "")
			return domain.CaptureResult{Outcome: domain.OutcomeFailed}, recErr
		}
		if !c.endCapture(session, captureSettle, false) {
			return cancelled, nil
		}
		c.emitState(domain.ReasonNothingUnderstood, messageNothingUnderstood)
		return domain.CaptureResult{Outcome: domain.OutcomeNothingUnderstood}, nil
	}
	if recErr != nil {
		c.log.Debug("voice: recognizer ended with %v after producing text", recErr)
		if recognitionCode(recErr) == domain.RecognitionNotAllowed {
			c.permission.demote()
		}
	}

	if !c.endCapture(session, captureSettle, false) {
		return cancelled, nil
	}
	question := c.applyRules(text)
	c.events.QuestionRecognized(question)

	return c.answer(ctx, question)
}

// Cancel discards a pending press or an active capture without processing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
		c.pressID++
		c.mu.Unlock()
		c.emitState(domain.ReasonPressCancelled, "")
		return
	}
	session := c.current
	c.mu.Unlock()
	if session == nil {
		return
	}

	<-session.ready
	if session.rec != nil {
		_ = session.rec.Abort()
	}
	if c.endCapture(session, captureCancel, false) {
		c.emitState(domain.ReasonPressCancelled, "")
	}
}

func (c *Controller) endCapture(session *captureSession, event captureEvent, onlyUnreleased bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != session || (onlyUnreleased && session.released) {
		return false
	}
	c.capture.fire(event)
	c.current = nil
	session.cancel()
	return true
}

func (c *Controller) reportCaptureFailure(err error, fallback string) {
	code := recognitionCode(err)
	if code == domain.RecognitionNotAllowed {
		c.permission.demote()
	}
	message := c.cfg.Profile.CaptureErrorMessage(code)
	if code == "" && fallback != "" {
		message = fallback
	}
	c.emitState(domain.ReasonCaptureFailed, message)
	if message == "" {
		return
	}
	errCode := domain.ErrorCodeCapture
	if code == domain.RecognitionNotAllowed {
		errCode = domain.ErrorCodePermission
	}
	c.events.VoiceError(errCode, message)
}

func recognitionCode(err error) domain.RecognitionErrorCode {
	var recErr *domain.RecognitionError
	switch {
	case errors.As(err, &recErr):
		return recErr.Code
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.RecognitionNotAllowed
	case errors.Is(err, context.Canceled):
		return domain.RecognitionAborted
	default:
		return ""
	}
}

func (c *Controller) applyRules(text string) string {
	if c.rules == nil {
		return text
	}
	corrected, err := c.rules.Apply(text)
	if err != nil {
		c.events.VoiceError(domain.ErrorCodeRules, err.Error())
		return text
	}
	return corrected
}

func (c *Controller) answer(ctx context.Context, question string) (domain.CaptureResult, error) {
	c.emitState(domain.ReasonFetchingAnswer, "")

	pinned := c.lease.Pin()
	answer, err := c.answers.Ask(ctx, question)
	if pinned {
		c.lease.Unpin()
	}

	if err != nil {
		c.log.Warn("voice: answer fetch failed: %v", err)
		c.events.VoiceError(domain.ErrorCodeServer, fmt.Sprintf("음성 응답 오류: %v", err))
		if answer == "" {
			c.emitState(domain.ReasonReady, "")
			return domain.CaptureResult{Outcome: domain.OutcomeFailed, Question: question}, err
		}
	}

	c.emitState(domain.ReasonAnswerReady, "")
	spoken, manual := c.deliver(ctx, answer)
	c.events.AnswerReady(answer, spoken)
	return domain.CaptureResult{
		Outcome:        domain.OutcomeAnswered,
		Question:       question,
		Answer:         answer,
		Spoken:         spoken,
		ManualPlayback: manual,
	}, nil
}

// deliver speaks an answer automatically when the platform allows it and
// otherwise offers manual playback.
func (c *Controller) deliver(ctx context.Context, text string) (spoken bool, manual bool) {
	prefs := c.voicePreferences(ctx)
	u := utteranceFor(text, c.voiceName(prefs.SelectedVoice), prefs.Lang, prefs.Rate, prefs.Pitch, prefs.Volume)

	if c.cfg.Profile.RequiresGesture && !c.lease.Live() {
		c.log.Info("voice: gesture expired before the answer arrived")
		c.offerManual(text)
		return false, true
	}
	if c.cfg.Profile.RequiresActivation && !c.output.activate(ctx, u.Voice) {
		c.log.Warn("voice: speaking without a confirmed activation")
	}

	started, err := c.output.speak(ctx, u)
	if !started {
		c.log.Warn("voice: autoplay failed: %v", err)
		c.offerManual(text)
		return false, true
	}
	c.clearManual()
	return true, false
}

func (c *Controller) offerManual(text string) {
	c.mu.Lock()
	c.manualText = text
	c.mu.Unlock()
	c.emitState(domain.ReasonManualPlayback, "")
}

func (c *Controller) clearManual() {
	c.mu.Lock()
	c.manualText = ""
	c.mu.Unlock()
}

// PlayManually plays the answer whose autoplay failed. The tap counts as a
// new gesture; the engine stays activated afterwards so later answers
// autoplay.
func (c *Controller) PlayManually(ctx context.Context) error {
	c.lease.Acquire()

	c.mu.Lock()
	text := c.manualText
	c.mu.Unlock()
	if text == "" {
		return domain.ErrNoAnswer
	}

	prefs := c.voicePreferences(ctx)
	u := utteranceFor(text, c.voiceName(prefs.SelectedVoice), prefs.Lang, prefs.Rate, prefs.Pitch, prefs.Volume)
	if c.cfg.Profile.RequiresActivation {
		c.output.activate(ctx, u.Voice)
	}

	started, err := c.output.speak(ctx, u)
	if !started {
		c.events.VoiceError(domain.ErrorCodeSynthesis, messagePlaybackFailed)
		if err == nil {
			err = errPlaybackNotStarted
		}
		return err
	}
	c.clearManual()
	c.emitState(domain.ReasonSpeaking, "")
	return nil
}

// Speak reads text aloud with the voice preferences.
func (c *Controller) Speak(ctx context.Context, text string) error {
	prefs := c.voicePreferences(ctx)
	return c.speakUtterance(ctx, utteranceFor(text, c.voiceName(prefs.SelectedVoice), prefs.Lang, prefs.Rate, prefs.Pitch, prefs.Volume))
}

// ReadAloud reads a chat answer with the read-aloud preferences.
func (c *Controller) ReadAloud(ctx context.Context, text string, prefs domain.TTSPreferences) error {
	return c.speakUtterance(ctx, utteranceFor(text, c.voiceName(prefs.Voice), "", prefs.Rate, prefs.Pitch, prefs.Volume))
}

func (c *Controller) speakUtterance(ctx context.Context, u ports.Utterance) error {
	if c.cfg.Profile.RequiresActivation {
		c.output.activate(ctx, u.Voice)
	}
	started, err := c.output.speak(ctx, u)
	if !started {
		if err == nil {
			err = errPlaybackNotStarted
		}
		c.events.VoiceError(domain.ErrorCodeSynthesis, messagePlaybackFailed)
		return err
	}
	return nil
}

// Pause pauses speech if it is playing. Otherwise it does nothing.
func (c *Controller) Pause() bool { return c.output.pause() }

// Resume resumes paused speech. Otherwise it does nothing.
func (c *Controller) Resume() bool { return c.output.resume() }

// StopSpeech cancels any speech. Always safe.
func (c *Controller) StopSpeech() { c.output.stop() }

// Close releases the microphone and cancels speech.
func (c *Controller) Close() {
	c.Cancel()
	c.output.stop()
	c.lease.Release()
}

// Status returns the current voice status.
func (c *Controller) Status() domain.VoiceStatus {
	c.mu.Lock()
	status := domain.VoiceStatus{
		Platform:       c.cfg.Profile.Platform,
		Capture:        c.capture.status,
		ManualPlayback: c.manualText != "",
	}
	if c.current != nil {
		status.InterimText = c.current.acc.Interim()
	}
	c.mu.Unlock()

	status.Permission = c.permission.State()
	status.Output = c.output.Status()
	status.Activated = !c.cfg.Profile.RequiresActivation || c.output.Activated()
	return status
}

func (c *Controller) emitState(reason domain.VoiceStateReason, message string) {
	status := c.Status()
	status.Message = message
	c.events.VoiceStateChanged(status, reason)
}

func (c *Controller) voicePreferences(ctx context.Context) domain.VoicePreferences {
	if c.prefs == nil {
		return domain.DefaultVoicePreferences()
	}
	prefs, err := c.prefs.LoadVoice(ctx)
	if err != nil {
		c.log.Warn("voice: could not load preferences: %v", err)
		return domain.DefaultVoicePreferences()
	}
	return prefs
}

// voiceName returns selected, or the platform default when nothing is selected.
func (c *Controller) voiceName(selected string) string {
	if selected != "" {
		return selected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultVoice
}
