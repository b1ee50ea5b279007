package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// completionsServer fakes the OpenAI chat completions endpoint,
// always answering with the given message content.
func completionsServer(t *testing.T, content string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestJudgeParsesDecision(t *testing.T) {
	srv := completionsServer(t, `{
		"should_notify": true,
		"urgency": "HIGH",
		"summary": "Ana precisa de resposta hoje",
		"reason": "prazo citado na conversa"
	}`)
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "", "")

	decision, err := c.Judge(context.Background(), "Ana", "me responde hoje?", ChatContext{
		Preferences: db.DefaultPreferences(),
	})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !decision.ShouldNotify || decision.Urgency != db.UrgencyHigh {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestJudgeNormalizesUnknownUrgency(t *testing.T) {
	srv := completionsServer(t, `{"should_notify": false, "urgency": "WHATEVER", "summary": "", "reason": ""}`)
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "", "")

	decision, err := c.Judge(context.Background(), "Ana", "oi", ChatContext{})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if decision.Urgency != db.UrgencyLow {
		t.Fatalf("expected LOW fallback, got %s", decision.Urgency)
	}
}

func TestSummarizeRejectsEmptySummary(t *testing.T) {
	srv := completionsServer(t, `{"summary": "", "key_points": [], "action_required": false, "suggested_actions": []}`)
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "", "")

	if _, err := c.Summarize(context.Background(), ChatContext{}); err == nil {
		t.Fatalf("expected error for empty summary")
	}
}

func TestGenerateRepliesPinsCountToThree(t *testing.T) {
	srv := completionsServer(t, `{"options": [
		{"text": "A", "tone": "formal", "reasoning": ""},
		{"text": "B", "tone": "casual", "reasoning": ""},
		{"text": "C", "tone": "rápido", "reasoning": ""},
		{"text": "D", "tone": "extra", "reasoning": ""}
	]}`)
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "", "")

	options, err := c.GenerateReplies(context.Background(), ChatContext{})
	if err != nil {
		t.Fatalf("generate replies: %v", err)
	}
	if len(options) != 3 || options[2].Text != "C" {
		t.Fatalf("unexpected options: %+v", options)
	}
}

func TestGenerateRepliesTooFewIsError(t *testing.T) {
	srv := completionsServer(t, `{"options": [{"text": "A", "tone": "formal", "reasoning": ""}]}`)
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "", "")

	if _, err := c.GenerateReplies(context.Background(), ChatContext{}); err == nil {
		t.Fatalf("expected error for short option list")
	}
}

func TestRenderContextIncludesHistoryAndVIPs(t *testing.T) {
	prefs := db.DefaultPreferences()
	prefs.VIPContacts = `["Ana"]`

	out := renderContext(ChatContext{
		Recent: []whatsapp.ChatMessage{
			{Sender: "Ana", Content: "cadê você?"},
		},
		Preferences: prefs,
	})

	for _, want := range []string{"Ana: cadê você?", "Contatos VIP: Ana"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered context missing %q:\n%s", want, out)
		}
	}
}
