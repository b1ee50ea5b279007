package alexa

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/session"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// How much conversation history feeds summarization and reply drafting.
const conversationWindow = 20

// How many unread messages are read aloud per request.
const readAloudLimit = 5

func (d *Dispatcher) handleCheckMessages(ctx context.Context) Response {
	summaries, err := d.messages.GetUnreadSummary(ctx)
	if err != nil {
		d.log.Error("failed to load unread summary", "error", err)
		return Speak(speechError, "", false)
	}

	if len(summaries) == 0 {
		return Speak("Você não tem mensagens novas.", "", true)
	}

	total := 0
	var urgent []string
	for _, s := range summaries {
		total += s.Count
		if s.Urgency.Rank() >= db.UrgencyHigh.Rank() && len(urgent) < 3 {
			urgent = append(urgent, s.Name)
		}
	}

	speech := fmt.Sprintf("Você tem %d mensagens em %d conversas.", total, len(summaries))
	if total == 1 {
		speech = "Você tem 1 mensagem nova."
	}
	if len(urgent) > 0 {
		speech += " Atenção para: " + joinNames(urgent) + "."
	}
	speech += " Quer que eu leia alguma?"

	return Speak(speech, "Diga 'ler mensagens' para ouvir.", false)
}

func (d *Dispatcher) handleReadMessages(ctx context.Context, req *Request) Response {
	contact := req.Body.Intent.SlotValue("ContactName")

	msgs, err := d.messages.GetUnread(ctx, contact, readAloudLimit)
	if err != nil {
		d.log.Error("failed to load unread messages", "error", err)
		return Speak(speechError, "", false)
	}

	if len(msgs) == 0 {
		if contact != "" {
			return Speak(fmt.Sprintf("Não há mensagens novas de %s.", contact), "", true)
		}
		return Speak("Você não tem mensagens novas.", "", true)
	}

	var sb strings.Builder
	seen := map[string]bool{}
	for _, m := range msgs {
		content := m.ContentPreview
		if m.Transcription != nil && *m.Transcription != "" {
			content = *m.Transcription
		}
		sb.WriteString(fmt.Sprintf("%s disse: %s. ", m.SenderName, content))
		seen[m.ChatJID] = true
	}

	for jid := range seen {
		if err := d.messages.MarkRead(ctx, jid); err != nil {
			d.log.Warn("failed to mark chat read", "chat", jid, "error", err)
		}
	}

	return Speak(sb.String(), "", true)
}

func (d *Dispatcher) handleSummarize(ctx context.Context, req *Request) Response {
	contact, jid, resp := d.resolveContact(ctx, req, "SummarizeConversationIntent")
	if resp != nil {
		return *resp
	}

	recent, err := d.chat.GetMessages(ctx, jid, conversationWindow)
	if err != nil {
		d.log.Error("failed to fetch conversation", "chat", jid, "error", err)
		return Speak(speechError, "", false)
	}

	summary, err := d.capability.Summarize(ctx, d.chatContext(ctx, jid, recent))
	if err != nil {
		d.log.Error("failed to summarize conversation", "chat", jid, "error", err)
		return Speak(speechError, "", false)
	}

	speech := fmt.Sprintf("Resumo da conversa com %s: %s", contact, summary.Summary)
	if summary.ActionRequired && len(summary.SuggestedActions) > 0 {
		speech += " Sugestão: " + summary.SuggestedActions[0]
	}
	return Speak(speech, "", true)
}

func (d *Dispatcher) handleGenerateReply(ctx context.Context, sessionID string, req *Request) Response {
	contact, jid, resp := d.resolveContact(ctx, req, "GenerateReplyIntent")
	if resp != nil {
		return *resp
	}

	recent, err := d.chat.GetMessages(ctx, jid, conversationWindow)
	if err != nil {
		d.log.Error("failed to fetch conversation", "chat", jid, "error", err)
		return Speak(speechError, "", false)
	}

	replies, err := d.capability.GenerateReplies(ctx, d.chatContext(ctx, jid, recent))
	if err != nil {
		d.log.Error("failed to generate replies", "chat", jid, "error", err)
		return Speak(speechError, "", false)
	}

	options := make([]string, 0, len(replies))
	for _, r := range replies {
		options = append(options, r.Text)
	}

	err = d.sessions.SetPending(ctx, sessionID, session.PendingAction{
		Kind:    session.KindReplies,
		Contact: contact,
		ChatJID: jid,
		Options: options,
	})
	if err != nil {
		d.log.Error("failed to store reply options", "error", err)
		return Speak(speechError, "", false)
	}

	var sb strings.Builder
	sb.WriteString("Aqui estão 3 opções. ")
	for i, opt := range options {
		sb.WriteString(fmt.Sprintf("Opção %d: %s. ", i+1, opt))
	}
	sb.WriteString("Qual você prefere?")

	return Speak(sb.String(), "Diga opção 1, 2 ou 3.", false)
}

func (d *Dispatcher) handleSelectReply(ctx context.Context, sessionID string, pending *session.PendingAction, req *Request) Response {
	if pending == nil || pending.Kind != session.KindReplies {
		return Speak("Não há opções de resposta pendentes. Diga 'responder para alguém' primeiro.", "", false)
	}

	raw := req.Body.Intent.SlotValue("OptionNumber")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(pending.Options) {
		prompt := fmt.Sprintf("Diga um número de 1 a %d.", len(pending.Options))
		return Speak(prompt, prompt, false)
	}

	if err := d.chat.SendMessage(ctx, pending.ChatJID, pending.Options[n-1]); err != nil {
		d.log.Error("failed to send reply", "chat", pending.ChatJID, "error", err)
		return Speak("Não consegui enviar a mensagem. Tente novamente.", "", false)
	}

	if err := d.sessions.ClearPending(ctx, sessionID); err != nil {
		d.log.Warn("failed to clear pending action", "error", err)
	}

	return Speak(fmt.Sprintf("Mensagem enviada para %s.", pending.Contact), "", true)
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, sessionID string, req *Request) Response {
	name := req.Body.Intent.SlotValue("ContactName")
	if name == "" {
		return ElicitSlot("ContactName", "Para quem você quer enviar?", "SendMessageIntent")
	}

	contacts, err := d.chat.FindContacts(ctx, name)
	if err != nil {
		d.log.Error("failed to search contacts", "query", name, "error", err)
		return Speak(speechError, "", false)
	}

	match := BestMatch(name, contacts)
	if match == nil {
		return Speak(fmt.Sprintf("Não encontrei o contato %s.", name), "", false)
	}

	question := fmt.Sprintf("Você quer dizer %s?", match.Name)
	err = d.sessions.SetPending(ctx, sessionID, session.PendingAction{
		Kind:     session.KindConfirm,
		Contact:  match.Name,
		ChatJID:  match.JID,
		Question: question,
	})
	if err != nil {
		d.log.Error("failed to store confirmation", "error", err)
		return Speak(speechError, "", false)
	}

	return Speak(question, question, false)
}

// contactConfirmed advances a confirmed contact into the capture step.
// Writing the send action replaces the confirmation slot.
func (d *Dispatcher) contactConfirmed(ctx context.Context, sessionID string, pending *session.PendingAction) Response {
	err := d.sessions.SetPending(ctx, sessionID, session.PendingAction{
		Kind:    session.KindSend,
		Contact: pending.Contact,
		ChatJID: pending.ChatJID,
	})
	if err != nil {
		d.log.Error("failed to advance send flow", "error", err)
		return Speak(speechError, "", false)
	}

	return ElicitSlot("MessageContent", "O que você quer dizer?", "CaptureMessageIntent")
}

func (d *Dispatcher) contactRejected(ctx context.Context, sessionID string) Response {
	if err := d.sessions.ClearPending(ctx, sessionID); err != nil {
		d.log.Warn("failed to clear pending action", "error", err)
	}
	return Speak("Ok, cancelado.", "", true)
}

func (d *Dispatcher) handleCaptureMessage(ctx context.Context, sessionID string, pending *session.PendingAction, req *Request) Response {
	if pending == nil || pending.Kind != session.KindSend {
		return Speak("Não há envio pendente. Diga 'enviar mensagem para alguém' primeiro.", "", false)
	}

	text := req.Body.Intent.SlotValue("MessageContent")
	if text == "" {
		return ElicitSlot("MessageContent", "O que você quer dizer?", "CaptureMessageIntent")
	}

	if err := d.chat.SendMessage(ctx, pending.ChatJID, text); err != nil {
		d.log.Error("failed to send message", "chat", pending.ChatJID, "error", err)
		return Speak("Não consegui enviar a mensagem. Tente novamente.", "", false)
	}

	if err := d.sessions.ClearPending(ctx, sessionID); err != nil {
		d.log.Warn("failed to clear pending action", "error", err)
	}

	return Speak(fmt.Sprintf("Mensagem enviada para %s.", pending.Contact), "", true)
}

func (d *Dispatcher) handlePlayAudio(ctx context.Context, req *Request) Response {
	contact := req.Body.Intent.SlotValue("ContactName")

	msg, err := d.messages.GetLatestAudio(ctx, contact)
	if err != nil {
		d.log.Error("failed to load latest audio", "error", err)
		return Speak(speechError, "", false)
	}

	if msg == nil || msg.AudioPublicURL == nil || *msg.AudioPublicURL == "" {
		if contact != "" {
			return Speak(fmt.Sprintf("Não há áudios disponíveis de %s.", contact), "", true)
		}
		return Speak("Não há áudios disponíveis.", "", true)
	}

	transcription := ""
	if msg.Transcription != nil {
		transcription = *msg.Transcription
	}

	return PlayAudio(msg.SenderName, transcription, msg.MessageID, *msg.AudioPublicURL)
}

// resolveContact maps the ContactName slot to a confirmed WhatsApp
// contact, or returns the response that should be spoken instead
// (missing slot, lookup failure, no match).
func (d *Dispatcher) resolveContact(ctx context.Context, req *Request, intentName string) (name, jid string, early *Response) {
	spoken := req.Body.Intent.SlotValue("ContactName")
	if spoken == "" {
		r := ElicitSlot("ContactName", "De quem é a conversa?", intentName)
		return "", "", &r
	}

	contacts, err := d.chat.FindContacts(ctx, spoken)
	if err != nil {
		d.log.Error("failed to search contacts", "query", spoken, "error", err)
		r := Speak(speechError, "", false)
		return "", "", &r
	}

	match := BestMatch(spoken, contacts)
	if match == nil {
		r := Speak(fmt.Sprintf("Não encontrei o contato %s.", spoken), "", false)
		return "", "", &r
	}

	return match.Name, match.JID, nil
}

// chatContext assembles the capability context, tolerating a missing
// preferences row.
func (d *Dispatcher) chatContext(ctx context.Context, jid string, recent []whatsapp.ChatMessage) agents.ChatContext {
	prefs, err := d.prefs.GetPreferences(ctx)
	if err != nil {
		d.log.Warn("failed to load preferences, using defaults", "error", err)
		prefs = db.DefaultPreferences()
	}
	return agents.ChatContext{ChatJID: jid, Recent: recent, Preferences: prefs}
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " e " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " e " + names[len(names)-1]
	}
}
