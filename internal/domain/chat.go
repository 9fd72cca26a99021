package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one persisted message of the chat history.
type ConversationTurn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryItem is one question/answer pair as the chat endpoint expects it.
type HistoryItem struct {
	Inputs  string `json:"inputs"`
	Outputs string `json:"outputs"`
}

// StreamEventKind identifies a decoded stream event.
type StreamEventKind string

const (
	StreamEventChunk StreamEventKind = "chunk"
	StreamEventDone  StreamEventKind = "done"
	StreamEventError StreamEventKind = "error"
)

// StreamEvent is one decoded unit of a streaming chat response.
type StreamEvent struct {
	Kind    StreamEventKind `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Message string          `json:"message,omitempty"`
}
