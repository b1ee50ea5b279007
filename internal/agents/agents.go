// Package agents wraps the LLM capabilities the system depends on:
// judging whether a message deserves a notification, summarizing a
// conversation, and drafting reply options. Callers only see typed
// decisions, never free-form model output.
package agents

import (
	"context"

	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// ChatContext is the structured conversation context handed to every
// capability call.
type ChatContext struct {
	ChatJID     string
	Recent      []whatsapp.ChatMessage
	Preferences *db.Preferences
}

// NotificationDecision is the classifier's verdict for one message.
type NotificationDecision struct {
	ShouldNotify      bool       `json:"should_notify"`
	Urgency           db.Urgency `json:"urgency"`
	Summary           string     `json:"summary"`
	Reason            string     `json:"reason"`
	SuggestedResponse string     `json:"suggested_response,omitempty"`
}

// ConversationSummary is a voice-friendly digest of a conversation.
type ConversationSummary struct {
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	ActionRequired   bool     `json:"action_required"`
	SuggestedActions []string `json:"suggested_actions"`
}

// ReplyOption is one of the three drafted replies.
type ReplyOption struct {
	Text      string `json:"text"`
	Tone      string `json:"tone"`
	Reasoning string `json:"reasoning"`
}

// Capability is the full classification contract. The pipeline only
// needs Judge and Summarize; the dialogue handlers also use
// GenerateReplies.
type Capability interface {
	Judge(ctx context.Context, senderName, content string, cc ChatContext) (*NotificationDecision, error)
	Summarize(ctx context.Context, cc ChatContext) (*ConversationSummary, error)
	GenerateReplies(ctx context.Context, cc ChatContext) ([]ReplyOption, error)
}
