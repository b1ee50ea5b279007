// Package alexa routes skill requests into the voice dialogue: reading
// and summarizing WhatsApp conversations, drafting and sending replies,
// and playing back voice notes. Multi-turn flows park their state in
// the session store and survive across requests until the TTL runs out.
package alexa

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/session"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// Every turn has to come back before the skill's response deadline.
const turnTimeout = 10 * time.Second

const (
	speechError         = "Desculpe, tive um problema ao processar seu pedido. Tente novamente."
	speechNotUnderstood = "Não entendi. Tente novamente."
	speechGoodbye       = "Até mais!"
	speechLaunch        = "Olá! Seu WhatsApp está pronto. O que você quer fazer?"
	speechLaunchHint    = "Diga 'verificar mensagens' ou 'resumir conversa'."
)

// Words that resolve a pending confirmation without a clean
// YesIntent/NoIntent classification.
var (
	affirmativeWords = map[string]bool{
		"sim": true, "yes": true, "ok": true, "confirmar": true,
		"confirmo": true, "certo": true, "certa": true, "isso": true,
		"esse": true, "esta": true, "este": true,
	}
	negativeWords = map[string]bool{
		"não": true, "nao": true, "negativo": true, "errado": true,
		"errada": true, "cancelar": true, "cancel": true, "nope": true,
	}
)

// ChatClient is the WhatsApp surface the dialogue handlers touch.
type ChatClient interface {
	GetMessages(ctx context.Context, chatJID string, limit int) ([]whatsapp.ChatMessage, error)
	SendMessage(ctx context.Context, target, text string) error
	FindContacts(ctx context.Context, name string) ([]whatsapp.Contact, error)
}

// Dispatcher owns the intent table and the pending-action interception.
type Dispatcher struct {
	sessions   session.Store
	messages   db.MessageStore
	prefs      db.PreferenceStore
	chat       ChatClient
	capability agents.Capability
	log        *log.Logger
}

func NewDispatcher(
	sessions session.Store,
	messages db.MessageStore,
	prefs db.PreferenceStore,
	chat ChatClient,
	capability agents.Capability,
	logger *log.Logger,
) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		messages:   messages,
		prefs:      prefs,
		chat:       chat,
		capability: capability,
		log:        logger,
	}
}

// Route turns one skill request into a response. It never propagates a
// panic or an error to the caller: every failure mode degrades into a
// spoken apology so the session stays usable.
func (d *Dispatcher) Route(ctx context.Context, req *Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while handling request", "panic", r, "session", req.Session.SessionID)
			resp = Speak(speechError, "", false)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	switch req.Body.Type {
	case TypeLaunch:
		return Speak(speechLaunch, speechLaunchHint, false)
	case TypeSessionEnded:
		if err := d.sessions.ClearPending(ctx, req.Session.SessionID); err != nil {
			d.log.Warn("failed to clear session on end", "error", err)
		}
		return EmptyResponse()
	case TypeIntent:
		return d.routeIntent(ctx, req)
	default:
		return Speak(speechNotUnderstood, "", false)
	}
}

func (d *Dispatcher) routeIntent(ctx context.Context, req *Request) Response {
	sessionID := req.Session.SessionID
	intent := req.Body.Intent.Name

	pending, err := d.sessions.GetPending(ctx, sessionID)
	if err != nil {
		d.log.Error("failed to load pending action", "error", err, "session", sessionID)
		return Speak(speechError, "", false)
	}

	// Stop and Cancel always win, whatever is pending.
	switch intent {
	case "AMAZON.StopIntent", "AMAZON.CancelIntent":
		if pending != nil {
			if err := d.sessions.ClearPending(ctx, sessionID); err != nil {
				d.log.Warn("failed to clear pending action", "error", err)
			}
		}
		return Speak(speechGoodbye, "", true)
	}

	if pending != nil && pending.Kind == session.KindConfirm {
		return d.resolveConfirmation(ctx, sessionID, pending, req)
	}

	switch intent {
	case "CheckMessagesIntent":
		return d.handleCheckMessages(ctx)
	case "ReadMessagesIntent":
		return d.handleReadMessages(ctx, req)
	case "SummarizeConversationIntent":
		return d.handleSummarize(ctx, req)
	case "GenerateReplyIntent":
		return d.handleGenerateReply(ctx, sessionID, req)
	case "SelectReplyIntent":
		return d.handleSelectReply(ctx, sessionID, pending, req)
	case "SendMessageIntent":
		return d.handleSendMessage(ctx, sessionID, req)
	case "CaptureMessageIntent":
		return d.handleCaptureMessage(ctx, sessionID, pending, req)
	case "PlayAudioIntent":
		return d.handlePlayAudio(ctx, req)
	case "AMAZON.HelpIntent":
		return d.handleHelp()
	case "AMAZON.YesIntent", "AMAZON.NoIntent":
		// Nothing is pending, a bare yes/no means nothing here.
		return Speak(speechNotUnderstood, "", false)
	default:
		return Speak(speechNotUnderstood, "", false)
	}
}

// resolveConfirmation settles a pending yes/no question. The platform
// usually classifies the answer as YesIntent/NoIntent, but free-form
// replies like "sim claro" land on other intents and are settled by
// scanning their words instead. A turn that matches neither side
// re-asks the exact same question.
func (d *Dispatcher) resolveConfirmation(ctx context.Context, sessionID string, pending *session.PendingAction, req *Request) Response {
	switch req.Body.Intent.Name {
	case "AMAZON.YesIntent":
		return d.contactConfirmed(ctx, sessionID, pending)
	case "AMAZON.NoIntent":
		return d.contactRejected(ctx, sessionID)
	}

	tokens := confirmationTokens(req)
	affirmative, negative := false, false
	for _, tok := range tokens {
		if affirmativeWords[tok] {
			affirmative = true
		}
		if negativeWords[tok] {
			negative = true
		}
	}

	// Affirmative wins when both sides show up ("sim, não precisa mudar").
	switch {
	case affirmative:
		return d.contactConfirmed(ctx, sessionID, pending)
	case negative:
		return d.contactRejected(ctx, sessionID)
	default:
		return Speak(pending.Question, pending.Question, false)
	}
}

// confirmationTokens lowercases and splits everything the user might
// have said: all filled slot values plus the intent name itself.
func confirmationTokens(req *Request) []string {
	var parts []string
	parts = append(parts, req.Body.Intent.SlotValues()...)
	parts = append(parts, req.Body.Intent.Name)

	var tokens []string
	for _, part := range parts {
		for _, tok := range strings.Fields(strings.ToLower(part)) {
			tokens = append(tokens, strings.Trim(tok, ".,!?"))
		}
	}
	return tokens
}

func (d *Dispatcher) handleHelp() Response {
	help := "Você pode dizer: 'verificar mensagens' para ouvir um resumo, " +
		"'ler mensagens' para ouvir as não lidas, 'resumir conversa com alguém', " +
		"'responder para alguém', 'enviar mensagem para alguém' ou 'tocar áudio'."
	return Speak(help, speechLaunchHint, false)
}
