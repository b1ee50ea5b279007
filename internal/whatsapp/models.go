package whatsapp

import (
	"strings"

	"github.com/rx3lixir/eco/internal/db"
)

// MessagePayload is the inner message of a webhook event. Media fields
// carry local file paths inside the shared volume written by the
// WhatsApp container.
type MessagePayload struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	Body      string `json:"body"`
	Audio     string `json:"audio"`
	Image     string `json:"image"`
	Document  string `json:"document"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// WebhookPayload is the envelope the WhatsApp container posts for
// every event. Only event == "message" reaches the pipeline.
type WebhookPayload struct {
	Event    string         `json:"event"`
	DeviceID string         `json:"device_id"`
	Payload  MessagePayload `json:"payload"`
}

const EventMessage = "message"

// IsGroup reports whether the message came from a group chat.
func (m *MessagePayload) IsGroup() bool {
	return strings.HasSuffix(m.ChatID, "@g.us")
}

// MessageType infers the type from whichever media field is populated.
func (m *MessagePayload) MessageType() string {
	switch {
	case m.Audio != "":
		return db.MessageTypeAudio
	case m.Image != "":
		return db.MessageTypeImage
	case m.Document != "":
		return db.MessageTypeDocument
	default:
		return db.MessageTypeText
	}
}

const previewLimit = 500

// ToRecord maps the payload onto a fresh db row. The preview is capped
// by rune count so a multi-byte char at the boundary is dropped whole,
// never split into invalid UTF-8.
func (p *WebhookPayload) ToRecord() *db.Message {
	msg := p.Payload

	preview := msg.Body
	if runes := []rune(preview); len(runes) > previewLimit {
		preview = string(runes[:previewLimit])
	}

	return &db.Message{
		MessageID:      msg.ID,
		ChatJID:        msg.ChatID,
		SenderName:     msg.FromName,
		IsGroup:        msg.IsGroup(),
		MessageType:    msg.MessageType(),
		ContentPreview: preview,
	}
}
