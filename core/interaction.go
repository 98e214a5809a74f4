package core

import "time"

// Tier identifies a memory lifetime.
type Tier int

const (
	TierWorking Tier = iota
	TierEpisodic
	TierLongTerm
)

func (t Tier) String() string {
	switch t {
	case TierWorking:
		return "working"
	case TierEpisodic:
		return "episodic"
	case TierLongTerm:
		return "long_term"
	default:
		return "unknown"
	}
}

// HistoryMessage is one prior turn of the conversation.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Interaction is the single write input of the memory engine: one user
// message and the assistant reply, plus identity.
type Interaction struct {
	SessionID   string           `json:"session_id"`
	ChatID      string           `json:"chat_id"`
	UserID      string           `json:"user_id"`
	UserMessage string           `json:"user_message"`
	AIResponse  string           `json:"ai_response"`
	History     []HistoryMessage `json:"history,omitempty"`

	// Timestamp defaults to the processing time when zero.
	Timestamp time.Time `json:"timestamp,omitempty"`
}
