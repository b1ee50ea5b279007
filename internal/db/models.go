package db

import (
	"encoding/json"
	"time"
)

// Urgency is the ordinal severity assigned by the classifier.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// Rank returns the position of the urgency in LOW < MEDIUM < HIGH < CRITICAL.
// Unknown values rank below LOW so they never win a max comparison.
func (u Urgency) Rank() int {
	if r, ok := urgencyRank[u]; ok {
		return r
	}
	return -1
}

// ParseUrgency normalizes a free-form urgency string, falling back to LOW.
func ParseUrgency(s string) Urgency {
	u := Urgency(s)
	if _, ok := urgencyRank[u]; ok {
		return u
	}
	return UrgencyLow
}

const (
	MessageTypeText     = "text"
	MessageTypeAudio    = "audio"
	MessageTypeImage    = "image"
	MessageTypeDocument = "document"
)

// Message is the persisted record of one inbound WhatsApp message
// and how it was handled.
type Message struct {
	ID             int64      `json:"id"`
	MessageID      string     `json:"message_id"`
	ChatJID        string     `json:"chat_jid"`
	SenderName     string     `json:"sender_name"`
	IsGroup        bool       `json:"is_group"`
	MessageType    string     `json:"message_type"`
	ContentPreview string     `json:"content_preview"`
	AudioLocalPath *string    `json:"audio_local_path,omitempty"`
	AudioPublicURL *string    `json:"audio_public_url,omitempty"`
	Transcription  *string    `json:"transcription,omitempty"`
	Summary        *string    `json:"summary,omitempty"`
	Urgency        Urgency    `json:"urgency"`
	Notified       bool       `json:"notified"`
	ReadByUser     bool       `json:"read_by_user"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// ChatSummary is one entry of the unread overview spoken by Alexa.
type ChatSummary struct {
	ChatJID string  `json:"chat_jid"`
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Urgency Urgency `json:"urgency"`
}

// Preferences is the single configuration row of the system.
// List-valued fields are stored as JSON text, same columns the
// original schema used.
type Preferences struct {
	ID                   int        `json:"id"`
	VIPContacts          string     `json:"vip_contacts"`
	UrgentKeywords       string     `json:"urgent_keywords"`
	QuietHoursStart      string     `json:"quiet_hours_start"`
	QuietHoursEnd        string     `json:"quiet_hours_end"`
	QuietHoursAllowVIP   bool       `json:"quiet_hours_allow_vip"`
	NotifyOnGroupMention bool       `json:"notify_on_group_mention"`
	GroupNotifyThreshold int        `json:"group_notify_threshold"`
	ImportantGroups      string     `json:"important_groups"`
	LongMessageThreshold int        `json:"long_message_threshold"`
	Language             string     `json:"language"`
	TranscriptionEnabled bool       `json:"transcription_enabled"`
	ProactiveToken       *string    `json:"proactive_token,omitempty"`
	ProactiveTokenExpiry *time.Time `json:"proactive_token_expiry,omitempty"`
}

// DefaultPreferences returns the row created lazily on first access.
func DefaultPreferences() *Preferences {
	return &Preferences{
		ID:                   1,
		VIPContacts:          "[]",
		UrgentKeywords:       "[]",
		QuietHoursStart:      "22:00",
		QuietHoursEnd:        "07:00",
		QuietHoursAllowVIP:   true,
		NotifyOnGroupMention: true,
		GroupNotifyThreshold: 5,
		ImportantGroups:      "[]",
		LongMessageThreshold: 200,
		Language:             "pt-BR",
		TranscriptionEnabled: true,
	}
}

// VIPContactsList decodes the vip_contacts JSON column.
func (p *Preferences) VIPContactsList() []string {
	return decodeStringList(p.VIPContacts)
}

// UrgentKeywordsList decodes the urgent_keywords JSON column.
func (p *Preferences) UrgentKeywordsList() []string {
	return decodeStringList(p.UrgentKeywords)
}

// ImportantGroupsList decodes the important_groups JSON column.
func (p *Preferences) ImportantGroupsList() []string {
	return decodeStringList(p.ImportantGroups)
}

func decodeStringList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// IsQuietHoursNow reports whether the given instant falls inside the
// configured quiet window. The window may wrap midnight (22:00-07:00).
func (p *Preferences) IsQuietHoursNow(now time.Time) bool {
	cur := now.Format("15:04")
	start := p.QuietHoursStart
	end := p.QuietHoursEnd
	if start <= end {
		return start <= cur && cur < end
	}
	return cur >= start || cur < end
}
