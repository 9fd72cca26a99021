// Package conversation keeps the persisted chat history and runs the chat
// question flow on top of the chat client.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/ports"
)

const (
	HistoryKey = "ai-health-chat-history"
	Greeting   = "안녕하세요! 저는 AI 건강 상담사입니다. 건강에 관한 질문이나 증상에 대해 문의해 주세요. 어떤 도움이 필요하신가요?"
)

// History is the ordered, append-only turn list. Every change is written
// through to the key-value store.
type History struct {
	kv  ports.KeyValueStore
	log *logger.Logger
	now func() time.Time

	mu    sync.Mutex
	turns []domain.ConversationTurn
}

func NewHistory(kv ports.KeyValueStore, log *logger.Logger) *History {
	if log == nil {
		log = logger.Nop()
	}
	h := &History{kv: kv, log: log, now: time.Now}
	h.turns = []domain.ConversationTurn{h.greeting()}
	return h
}

func (h *History) greeting() domain.ConversationTurn {
	return domain.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Text:      Greeting,
		CreatedAt: h.now(),
	}
}

// Load replaces the in-memory turns with the stored ones. A missing or empty
// document keeps the greeting; an unreadable one is removed and replaced by
// the greeting.
func (h *History) Load(ctx context.Context) error {
	raw, err := h.kv.Get(ctx, HistoryKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	var turns []domain.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		h.log.Warn("conversation: resetting unreadable chat history: %v", err)
		if err := h.kv.Delete(ctx, HistoryKey); err != nil {
			h.log.Warn("conversation: could not delete chat history: %v", err)
		}
		return h.Clear(ctx)
	}
	if len(turns) == 0 {
		return nil
	}

	h.mu.Lock()
	h.turns = turns
	h.mu.Unlock()
	return nil
}

// Turns returns a copy of the turns in order.
func (h *History) Turns() []domain.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Append adds a turn and persists the history. The turn stays in memory when
// persisting fails.
func (h *History) Append(ctx context.Context, role domain.Role, text string) (domain.ConversationTurn, error) {
	turn := domain.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: h.now(),
	}

	h.mu.Lock()
	h.turns = append(h.turns, turn)
	snapshot := make([]domain.ConversationTurn, len(h.turns))
	copy(snapshot, h.turns)
	h.mu.Unlock()

	return turn, h.save(ctx, snapshot)
}

// Clear resets the history to the greeting.
func (h *History) Clear(ctx context.Context) error {
	greeting := h.greeting()

	h.mu.Lock()
	h.turns = []domain.ConversationTurn{greeting}
	h.mu.Unlock()

	return h.save(ctx, []domain.ConversationTurn{greeting})
}

// LastQuestion returns the text of the most recent user turn.
func (h *History) LastQuestion() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == domain.RoleUser {
			return h.turns[i].Text, true
		}
	}
	return "", false
}

func (h *History) save(ctx context.Context, turns []domain.ConversationTurn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	if err := h.kv.Set(ctx, HistoryKey, string(data)); err != nil {
		h.log.Warn("conversation: could not save chat history: %v", err)
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}
