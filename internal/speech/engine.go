// Package speech provides the speech-output engine: Azure neural
// text-to-speech played through the system audio device.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

var _ ports.SpeechOutput = (*Engine)(nil)

var errNoAudio = errors.New("synthesizer returned no audio")

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, r Request) ([]byte, error)
	Voices(ctx context.Context) ([]domain.Voice, error)
}

// AudioPlayer plays WAV audio until it ends or ctx is done.
type AudioPlayer interface {
	Play(ctx context.Context, wav []byte) error
	Pause()
	Resume()
}

// Engine implements ports.SpeechOutput. One utterance plays at a time; a
// new Speak interrupts the current one.
type Engine struct {
	synth  Synthesizer
	player AudioPlayer
	cache  *audioCache
	log    *logger.Logger

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	paused  bool
}

func NewEngine(synth Synthesizer, player AudioPlayer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{synth: synth, player: player, cache: newAudioCache(32), log: log}
}

func (e *Engine) Supported() bool {
	return e.synth != nil && e.player != nil
}

func (e *Engine) Voices(ctx context.Context) ([]domain.Voice, error) {
	if e.synth == nil {
		return nil, domain.ErrSpeechOutputUnsupported
	}
	return e.synth.Voices(ctx)
}

// Speak interrupts the current utterance and starts u. Empty text is
// reported as a zero-length utterance, which is how the engine is primed.
//
// The new utterance replaces the current one in a single step and runs only
// after the replaced one reported its terminal event.
func (e *Engine) Speak(u ports.Utterance) (<-chan ports.UtteranceEvent, error) {
	if !e.Supported() {
		return nil, domain.ErrSpeechOutputUnsupported
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan ports.UtteranceEvent, 2)
	current := &utterance{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	previous := e.current
	e.current = current
	e.mu.Unlock()

	if previous != nil {
		previous.cancel()
		<-previous.done
	}

	go e.run(ctx, current, u, events)
	return events, nil
}

func (e *Engine) run(ctx context.Context, current *utterance, u ports.Utterance, events chan<- ports.UtteranceEvent) {
	defer close(current.done)
	defer close(events)
	defer e.finish(current)

	req := Request{Text: strings.TrimSpace(u.Text), Voice: u.Voice, Lang: u.Lang, Rate: u.Rate, Pitch: u.Pitch, Volume: u.Volume}
	if req.Text == "" {
		events <- ports.UtteranceEvent{Kind: ports.UtteranceStart}
		events <- ports.UtteranceEvent{Kind: ports.UtteranceEnd}
		return
	}

	audio, ok := e.cache.get(req)
	if !ok {
		var err error
		audio, err = e.synth.Synthesize(ctx, req)
		if err == nil && len(audio) == 0 {
			err = errNoAudio
		}
		if err != nil {
			if ctx.Err() != nil {
				events <- ports.UtteranceEvent{Kind: ports.UtteranceInterrupted}
				return
			}
			e.log.Warn("speech: synthesis failed: %v", err)
			events <- ports.UtteranceEvent{Kind: ports.UtteranceError, Err: err}
			return
		}
		e.cache.put(req, audio)
	}

	if !e.markStarted(current) {
		events <- ports.UtteranceEvent{Kind: ports.UtteranceInterrupted}
		return
	}
	events <- ports.UtteranceEvent{Kind: ports.UtteranceStart}

	err := e.player.Play(ctx, audio)
	switch {
	case ctx.Err() != nil:
		events <- ports.UtteranceEvent{Kind: ports.UtteranceInterrupted}
	case err != nil:
		e.log.Warn("speech: playback failed: %v", err)
		events <- ports.UtteranceEvent{Kind: ports.UtteranceError, Err: err}
	default:
		events <- ports.UtteranceEvent{Kind: ports.UtteranceEnd}
	}
}

func (e *Engine) markStarted(current *utterance) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != current {
		return false
	}
	current.started = true
	return true
}

func (e *Engine) finish(current *utterance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == current {
		e.current = nil
	}
	current.cancel()
}

// Cancel interrupts the current utterance and waits until it reported its
// terminal event.
func (e *Engine) Cancel() {
	e.mu.Lock()
	current := e.current
	e.current = nil
	e.mu.Unlock()

	if current == nil {
		return
	}
	current.cancel()
	<-current.done
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || !e.current.started || e.current.paused {
		return
	}
	e.current.paused = true
	e.player.Pause()
}

func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || !e.current.paused {
		return
	}
	e.current.paused = false
	e.player.Resume()
}

func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.started
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.paused
}

// NoOp is a speech output that reports itself unsupported. Used when no
// Azure credentials or audio device are available.
type NoOp struct{}

var _ ports.SpeechOutput = NoOp{}

func (NoOp) Supported() bool { return false }

func (NoOp) Voices(context.Context) ([]domain.Voice, error) { return nil, nil }

func (NoOp) Speak(ports.Utterance) (<-chan ports.UtteranceEvent, error) {
	return nil, domain.ErrSpeechOutputUnsupported
}

func (NoOp) Cancel() {}

func (NoOp) Pause() {}

func (NoOp) Resume() {}

func (NoOp) Speaking() bool { return false }

func (NoOp) Paused() bool { return false }
