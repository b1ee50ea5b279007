package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rx3lixir/eco/internal/db"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultWhisperModel = "whisper-1"
)

const classifierPersona = `Você é um filtro inteligente de notificações de WhatsApp.
Analise a mensagem e o contexto da conversa.
Decida se o usuário precisa ser notificado agora via Alexa.
Seja conservador: prefira não notificar a interromper desnecessariamente.
Responda apenas com um objeto JSON com as chaves:
should_notify (bool), urgency ("LOW"|"MEDIUM"|"HIGH"|"CRITICAL"),
summary (string), reason (string), suggested_response (string opcional).
Responda sempre em pt-BR.`

const summarizerPersona = `Resuma a conversa de WhatsApp de forma clara e natural, como se fosse
falar para alguém que vai ouvir via assistente de voz.
Seja conciso. Priorize informação acionável.
Responda apenas com um objeto JSON com as chaves:
summary (string), key_points ([]string), action_required (bool),
suggested_actions ([]string).
Idioma: pt-BR.`

const replyPersona = `Gere exatamente 3 opções de resposta para o WhatsApp, variando em tom:
uma formal, uma casual e uma curta/direta.
As respostas devem ser naturais, humanas, contextualizadas.
Responda apenas com um objeto JSON com a chave options: uma lista de 3
objetos com text (string), tone (string) e reasoning (string).
Idioma: pt-BR.`

// OpenAIClient implements Capability over an OpenAI-compatible API.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	whisperModel string
}

// NewOpenAIClient creates the capability client. baseURL may be empty
// for the default endpoint; model/whisperModel fall back to sane ones.
func NewOpenAIClient(apiKey, baseURL, model, whisperModel string) *OpenAIClient {
	if model == "" {
		model = defaultModel
	}
	if whisperModel == "" {
		whisperModel = defaultWhisperModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(config),
		model:        model,
		whisperModel: whisperModel,
	}
}

// Judge classifies one message against its conversation context.
func (c *OpenAIClient) Judge(ctx context.Context, senderName, content string, cc ChatContext) (*NotificationDecision, error) {
	prompt := fmt.Sprintf("Mensagem de %s: %s\n\n%s", senderName, content, renderContext(cc))

	raw, err := c.complete(ctx, classifierPersona, prompt, 0.3)
	if err != nil {
		return nil, fmt.Errorf("classifier completion: %w", err)
	}

	var decision NotificationDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("classifier returned malformed decision: %w", err)
	}
	decision.Urgency = db.ParseUrgency(string(decision.Urgency))

	return &decision, nil
}

// Summarize produces a spoken-word summary of the conversation.
func (c *OpenAIClient) Summarize(ctx context.Context, cc ChatContext) (*ConversationSummary, error) {
	raw, err := c.complete(ctx, summarizerPersona, "Resuma esta conversa.\n\n"+renderContext(cc), 0.3)
	if err != nil {
		return nil, fmt.Errorf("summarizer completion: %w", err)
	}

	var summary ConversationSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("summarizer returned malformed summary: %w", err)
	}
	if summary.Summary == "" {
		return nil, fmt.Errorf("summarizer returned empty summary")
	}

	return &summary, nil
}

// GenerateReplies drafts exactly three reply options.
func (c *OpenAIClient) GenerateReplies(ctx context.Context, cc ChatContext) ([]ReplyOption, error) {
	raw, err := c.complete(ctx, replyPersona, "Gere respostas para esta conversa.\n\n"+renderContext(cc), 0.7)
	if err != nil {
		return nil, fmt.Errorf("reply generator completion: %w", err)
	}

	var out struct {
		Options []ReplyOption `json:"options"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("reply generator returned malformed options: %w", err)
	}

	return ensureThreeOptions(out.Options)
}

// Transcribe runs speech-to-text over a local audio file.
func (c *OpenAIClient) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.whisperModel,
		FilePath: filePath,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

func (c *OpenAIClient) complete(ctx context.Context, persona, prompt string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: persona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   2048,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// ensureThreeOptions pins the reply count to exactly three: extra
// options are dropped, fewer is an error the caller can surface.
func ensureThreeOptions(options []ReplyOption) ([]ReplyOption, error) {
	if len(options) < 3 {
		return nil, fmt.Errorf("expected 3 reply options, got %d", len(options))
	}
	return options[:3], nil
}

// renderContext flattens the conversation and the relevant preferences
// into the prompt the personas expect.
func renderContext(cc ChatContext) string {
	var b strings.Builder

	b.WriteString("Conversa recente:\n")
	if len(cc.Recent) == 0 {
		b.WriteString("(sem histórico)\n")
	}
	for _, m := range cc.Recent {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
	}

	if p := cc.Preferences; p != nil {
		if vips := p.VIPContactsList(); len(vips) > 0 {
			fmt.Fprintf(&b, "\nContatos VIP: %s\n", strings.Join(vips, ", "))
		}
		if kws := p.UrgentKeywordsList(); len(kws) > 0 {
			fmt.Fprintf(&b, "Palavras-chave urgentes: %s\n", strings.Join(kws, ", "))
		}
		if p.IsQuietHoursNow(time.Now()) {
			b.WriteString("Agora é horário de silêncio do usuário.\n")
			if p.QuietHoursAllowVIP {
				b.WriteString("Contatos VIP podem notificar mesmo no silêncio.\n")
			}
		}
	}

	return b.String()
}
