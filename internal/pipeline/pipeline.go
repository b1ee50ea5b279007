// Package pipeline turns one inbound webhook message event into a
// persisted, urgency-scored record and a tiered notification decision.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/audio"
	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/notify"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// How many recent chat messages feed the classifier as context.
const contextLimit = 10

// Each run is bounded so an abandoned goroutine cannot linger forever.
const runTimeout = 3 * time.Minute

// ChatClient fetches conversation history from the WhatsApp API.
type ChatClient interface {
	GetMessages(ctx context.Context, chatJID string, limit int) ([]whatsapp.ChatMessage, error)
}

// AudioConverter is the voice-note conversion step.
type AudioConverter interface {
	Process(ctx context.Context, messageID, sourcePath string, transcribe bool, language string) (*audio.Result, error)
}

// Classifier is the judge side of the classification capability.
type Classifier interface {
	Judge(ctx context.Context, senderName, content string, cc agents.ChatContext) (*agents.NotificationDecision, error)
}

// Dispatcher delivers the tiered notification for a positive decision.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender string, urgency db.Urgency, content string, cc agents.ChatContext, audio *notify.AudioContext)
}

type Pipeline struct {
	messages   db.MessageStore
	prefs      db.PreferenceStore
	chat       ChatClient
	converter  AudioConverter
	classifier Classifier
	notifier   Dispatcher
	log        *log.Logger
}

func New(
	messages db.MessageStore,
	prefs db.PreferenceStore,
	chat ChatClient,
	converter AudioConverter,
	classifier Classifier,
	notifier Dispatcher,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		messages:   messages,
		prefs:      prefs,
		chat:       chat,
		converter:  converter,
		classifier: classifier,
		notifier:   notifier,
		log:        logger,
	}
}

// IngestAsync runs Ingest in its own goroutine so the webhook response
// never waits on classification.
func (p *Pipeline) IngestAsync(payload *whatsapp.WebhookPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		p.Ingest(ctx, payload)
	}()
}

// Ingest processes one inbound message event end to end. Every step
// fails on its own: audio and context degrade, classification aborts,
// delivery failures stay inside the notifier.
func (p *Pipeline) Ingest(ctx context.Context, payload *whatsapp.WebhookPayload) {
	msg := payload.Payload

	// 1. Persist the raw message
	record := payload.ToRecord()
	if err := p.messages.CreateMessage(ctx, record); err != nil {
		if errors.Is(err, db.ErrDuplicateMessage) {
			p.log.Debug("Duplicate webhook, skipping", "message_id", msg.ID)
			return
		}
		p.log.Error("Failed to persist message", "message_id", msg.ID, "error", err)
		return
	}

	prefs := p.loadPreferences(ctx)

	// 2. Convert the voice note when present. Failure keeps the record
	// without transcript or public URL and moves on.
	var audioResult *audio.Result
	if record.MessageType == db.MessageTypeAudio && msg.Audio != "" {
		result, err := p.converter.Process(ctx, msg.ID, msg.Audio, prefs.TranscriptionEnabled, prefs.Language)
		if err != nil {
			p.log.Error("Failed to process audio", "message_id", msg.ID, "error", err)
		} else {
			audioResult = result
			if err := p.messages.UpdateAudio(ctx, record.ID, result.LocalPath, result.PublicURL, result.Transcription); err != nil {
				p.log.Error("Failed to update audio fields", "message_id", msg.ID, "error", err)
			}
		}
	}

	// 3. Fetch recent conversation context
	recent, err := p.chat.GetMessages(ctx, msg.ChatID, contextLimit)
	if err != nil {
		p.log.Warn("Failed to fetch chat context, classifying without it", "chat", msg.ChatID, "error", err)
		recent = nil
	}

	cc := agents.ChatContext{
		ChatJID:     msg.ChatID,
		Recent:      recent,
		Preferences: prefs,
	}

	// 4. Classify. This is the one mandatory step: nothing downstream
	// works without a decision.
	content := effectiveContent(audioResult, msg.Body)

	decision, err := p.classifier.Judge(ctx, msg.FromName, content, cc)
	if err != nil {
		p.log.Error("Classifier failed, message left unclassified", "message_id", msg.ID, "error", err)
		return
	}

	// 5. Persist the decision
	if err := p.messages.UpdateClassification(ctx, record.ID, decision.Urgency, decision.Summary, decision.ShouldNotify); err != nil {
		p.log.Error("Failed to persist classification", "message_id", msg.ID, "error", err)
		return
	}

	// 6. Act on the urgency level
	if !decision.ShouldNotify {
		return
	}

	var audioCtx *notify.AudioContext
	if audioResult != nil {
		audioCtx = &notify.AudioContext{
			PublicURL:     audioResult.PublicURL,
			Transcription: audioResult.Transcription,
		}
	}

	p.notifier.Dispatch(ctx, msg.FromName, decision.Urgency, content, cc, audioCtx)
}

// loadPreferences falls back to defaults so a preference outage only
// costs personalization, never the whole pipeline run.
func (p *Pipeline) loadPreferences(ctx context.Context) *db.Preferences {
	prefs, err := p.prefs.GetPreferences(ctx)
	if err != nil {
		p.log.Warn("Failed to load preferences, using defaults", "error", err)
		return db.DefaultPreferences()
	}
	return prefs
}

// effectiveContent picks the transcript when one was produced, then
// the text body, then empty.
func effectiveContent(audioResult *audio.Result, body string) string {
	if audioResult != nil && audioResult.Transcription != nil && *audioResult.Transcription != "" {
		return *audioResult.Transcription
	}
	return body
}
