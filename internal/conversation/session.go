package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"koihealth/internal/chat"
	"koihealth/internal/domain"
	"koihealth/internal/logger"
)

// ErrBusy is returned when a question is submitted while another one is
// still being answered.
var ErrBusy = errors.New("a question is already being answered")

var errEmptyAnswer = errors.New("the answer stream carried no text")

// Answerer is the chat client as the session uses it.
type Answerer interface {
	SendStreaming(ctx context.Context, history []domain.HistoryItem, question string, h chat.Handlers) <-chan struct{}
	SendOnce(ctx context.Context, history []domain.HistoryItem, question string) (string, error)
}

// Speaker reads finished answers aloud.
type Speaker interface {
	ReadAloud(ctx context.Context, text string, prefs domain.TTSPreferences) error
	StopSpeech()
}

// TTSSource provides the read-aloud preferences.
type TTSSource interface {
	LoadTTS(ctx context.Context) (domain.TTSPreferences, error)
}

// RetryableError reports a question that could not be answered. Question is
// what a retry should submit again.
type RetryableError struct {
	Question string
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("answer %q failed: %v", e.Question, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Reply is the outcome of a submitted question.
type Reply struct {
	Turn domain.ConversationTurn `json:"turn"`
	// Fallback is set when the streamed answer failed and the one-shot
	// request answered instead.
	Fallback bool `json:"fallback"`
}

// Session runs chat questions against the endpoint and records the turns.
type Session struct {
	history *History
	answers Answerer
	speaker Speaker
	tts     TTSSource
	log     *logger.Logger

	mu   sync.Mutex
	busy bool
}

func NewSession(history *History, answers Answerer, speaker Speaker, tts TTSSource, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{history: history, answers: answers, speaker: speaker, tts: tts, log: log}
}

// Submit records question, streams the answer through onChunk and records
// it. A failed stream is retried once as a one-shot request. When that fails
// too, an apology turn is recorded and a *RetryableError is returned along
// with it.
func (s *Session) Submit(ctx context.Context, question string, onChunk func(string)) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, domain.ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Reply{}, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if _, err := s.history.Append(ctx, domain.RoleUser, question); err != nil {
		s.log.Warn("conversation: question not persisted: %v", err)
	}
	history := chat.ConvertToAPIHistory(s.history.Turns())

	answer, streamErr := s.stream(ctx, history, question, onChunk)
	if streamErr == nil {
		return s.record(ctx, answer, false), nil
	}
	if ctx.Err() != nil {
		return Reply{}, ctx.Err()
	}

	s.log.Warn("conversation: streaming failed, retrying once: %v", streamErr)
	answer, err := s.answers.SendOnce(ctx, history, question)
	if err == nil {
		return s.record(ctx, answer, true), nil
	}
	if ctx.Err() != nil {
		return Reply{}, ctx.Err()
	}

	s.log.Error("conversation: answer failed: %v", err)
	apology := fmt.Sprintf("죄송합니다. %s 다시 질문해 주시거나 잠시 후 시도해 주세요.", err.Error())
	turn, saveErr := s.history.Append(ctx, domain.RoleAssistant, apology)
	if saveErr != nil {
		s.log.Warn("conversation: apology not persisted: %v", saveErr)
	}
	return Reply{Turn: turn}, &RetryableError{Question: question, Err: err}
}

func (s *Session) stream(ctx context.Context, history []domain.HistoryItem, question string, onChunk func(string)) (string, error) {
	var (
		answer    strings.Builder
		streamErr error
	)
	done := s.answers.SendStreaming(ctx, history, question, chat.Handlers{
		OnChunk: func(text string) {
			answer.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		},
		OnError: func(err error) {
			streamErr = err
		},
	})
	<-done
	if streamErr == nil && strings.TrimSpace(answer.String()) == "" {
		streamErr = errEmptyAnswer
	}
	return answer.String(), streamErr
}

func (s *Session) record(ctx context.Context, answer string, fallback bool) Reply {
	turn, err := s.history.Append(ctx, domain.RoleAssistant, answer)
	if err != nil {
		s.log.Warn("conversation: answer not persisted: %v", err)
	}
	s.readAloud(ctx, answer)
	return Reply{Turn: turn, Fallback: fallback}
}

func (s *Session) readAloud(ctx context.Context, answer string) {
	if s.speaker == nil || s.tts == nil || strings.TrimSpace(answer) == "" {
		return
	}
	prefs, err := s.tts.LoadTTS(ctx)
	if err != nil {
		s.log.Warn("conversation: could not load read-aloud preferences: %v", err)
		return
	}
	if !prefs.Enabled || !prefs.AutoPlay {
		return
	}
	if err := s.speaker.ReadAloud(ctx, answer, prefs); err != nil {
		s.log.Warn("conversation: read-aloud failed: %v", err)
	}
}

// Retry returns the last question for resubmission.
func (s *Session) Retry() (string, bool) {
	return s.history.LastQuestion()
}

// Turns returns the recorded turns.
func (s *Session) Turns() []domain.ConversationTurn {
	return s.history.Turns()
}

// Clear stops any speech and resets the history to the greeting.
func (s *Session) Clear(ctx context.Context) error {
	if s.speaker != nil {
		s.speaker.StopSpeech()
	}
	return s.history.Clear(ctx)
}
