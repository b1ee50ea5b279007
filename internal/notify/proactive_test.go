package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/db"
)

type fakePrefs struct {
	prefs       *db.Preferences
	tokenWrites int
}

func (f *fakePrefs) GetPreferences(context.Context) (*db.Preferences, error) {
	return f.prefs, nil
}

func (f *fakePrefs) UpdateProactiveToken(_ context.Context, token string, expires time.Time) error {
	f.tokenWrites++
	f.prefs.ProactiveToken = &token
	f.prefs.ProactiveTokenExpiry = &expires
	return nil
}

type fakeSummarizer struct {
	calls   int
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(context.Context, agents.ChatContext) (*agents.ConversationSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &agents.ConversationSummary{Summary: f.summary}, nil
}

type capturedEvent struct {
	Event struct {
		Payload struct {
			MessageGroup struct {
				Creator struct {
					Name string `json:"name"`
				} `json:"creator"`
				Urgency string `json:"urgency"`
				Message string `json:"message"`
			} `json:"messageGroup"`
		} `json:"payload"`
	} `json:"event"`
}

type deliveryServers struct {
	events        *httptest.Server
	token         *httptest.Server
	received      []capturedEvent
	tokenRequests int
}

func newDeliveryServers(t *testing.T) *deliveryServers {
	t.Helper()

	d := &deliveryServers{}

	d.events = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("event request missing bearer token")
		}
		var ev capturedEvent
		json.NewDecoder(r.Body).Decode(&ev)
		d.received = append(d.received, ev)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(d.events.Close)

	d.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.tokenRequests++
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(d.token.Close)

	return d
}

func newTestNotifier(d *deliveryServers, prefs *fakePrefs, sum *fakeSummarizer) *Notifier {
	return New(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		UserID:       "amzn-user",
		EventsURL:    d.events.URL,
		TokenURL:     d.token.URL,
	}, prefs, sum, log.New(os.Stderr))
}

func TestCriticalDispatchTruncatesWithoutSummarizing(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	sum := &fakeSummarizer{summary: "should not be used"}
	n := newTestNotifier(d, prefs, sum)

	long := strings.Repeat("a", 300)
	n.Dispatch(context.Background(), "Ana", db.UrgencyCritical, long, agents.ChatContext{}, nil)

	if sum.calls != 0 {
		t.Fatalf("CRITICAL must not call the summarizer")
	}
	if len(d.received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(d.received))
	}
	got := d.received[0].Event.Payload.MessageGroup
	if len(got.Message) != 200 {
		t.Fatalf("expected content capped at 200 chars, got %d", len(got.Message))
	}
	if got.Creator.Name != "Ana" || got.Urgency != "CRITICAL" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestHighDispatchDeliversSummary(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	sum := &fakeSummarizer{summary: "Ana quer saber do jantar"}
	n := newTestNotifier(d, prefs, sum)

	n.Dispatch(context.Background(), "Ana", db.UrgencyHigh, "conteúdo bruto", agents.ChatContext{}, nil)

	if sum.calls != 1 {
		t.Fatalf("expected 1 summarize call, got %d", sum.calls)
	}
	if len(d.received) != 1 || d.received[0].Event.Payload.MessageGroup.Message != sum.summary {
		t.Fatalf("expected summary delivery, got %+v", d.received)
	}
}

func TestHighDispatchSwallowsSummarizerFailure(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	sum := &fakeSummarizer{err: context.DeadlineExceeded}
	n := newTestNotifier(d, prefs, sum)

	n.Dispatch(context.Background(), "Ana", db.UrgencyHigh, "x", agents.ChatContext{}, nil)

	if len(d.received) != 0 {
		t.Fatalf("no delivery expected when summarizer fails")
	}
}

func TestMediumDispatchPrefersTranscription(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	n := newTestNotifier(d, prefs, &fakeSummarizer{})

	tr := "me liga quando puder"
	n.Dispatch(context.Background(), "Ana", db.UrgencyMedium, "", agents.ChatContext{}, &AudioContext{
		PublicURL:     "http://eco.local/media/m1.mp3",
		Transcription: &tr,
	})

	if len(d.received) != 1 || d.received[0].Event.Payload.MessageGroup.Message != tr {
		t.Fatalf("expected transcription delivery, got %+v", d.received)
	}
}

func TestMediumDispatchWithoutAudioIsSilent(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	n := newTestNotifier(d, prefs, &fakeSummarizer{})

	n.Dispatch(context.Background(), "Ana", db.UrgencyMedium, "texto", agents.ChatContext{}, nil)

	if len(d.received) != 0 {
		t.Fatalf("silent signal must not hit the events API")
	}
}

func TestLowDispatchIsNoop(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	n := newTestNotifier(d, prefs, &fakeSummarizer{})

	n.Dispatch(context.Background(), "Ana", db.UrgencyLow, "texto", agents.ChatContext{}, nil)

	if len(d.received) != 0 || d.tokenRequests != 0 {
		t.Fatalf("LOW must not deliver anything")
	}
}

func TestTokenCacheReusedWithinValidity(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	n := newTestNotifier(d, prefs, &fakeSummarizer{})

	ctx := context.Background()
	n.Dispatch(ctx, "Ana", db.UrgencyCritical, "um", agents.ChatContext{}, nil)
	n.Dispatch(ctx, "Ana", db.UrgencyCritical, "dois", agents.ChatContext{}, nil)

	if d.tokenRequests != 1 {
		t.Fatalf("expected a single token request, got %d", d.tokenRequests)
	}
	if prefs.tokenWrites != 1 {
		t.Fatalf("expected a single cache write, got %d", prefs.tokenWrites)
	}
}

func TestTokenRefreshedInsideSafetyMargin(t *testing.T) {
	d := newDeliveryServers(t)
	prefs := &fakePrefs{prefs: db.DefaultPreferences()}

	stale := "old-token"
	almostExpired := time.Now().Add(30 * time.Second)
	prefs.prefs.ProactiveToken = &stale
	prefs.prefs.ProactiveTokenExpiry = &almostExpired

	n := newTestNotifier(d, prefs, &fakeSummarizer{})
	n.Dispatch(context.Background(), "Ana", db.UrgencyCritical, "x", agents.ChatContext{}, nil)

	if d.tokenRequests != 1 {
		t.Fatalf("token inside the 60s margin must be refreshed")
	}
}

func TestDeliveryFailureIsNotRetried(t *testing.T) {
	failures := 0
	events := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failures++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer events.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	}))
	defer token.Close()

	prefs := &fakePrefs{prefs: db.DefaultPreferences()}
	n := New(Config{
		ClientID: "cid", ClientSecret: "secret", UserID: "u",
		EventsURL: events.URL, TokenURL: token.URL,
	}, prefs, &fakeSummarizer{}, log.New(os.Stderr))

	n.Dispatch(context.Background(), "Ana", db.UrgencyCritical, "x", agents.ChatContext{}, nil)

	if failures != 1 {
		t.Fatalf("expected exactly one attempt, got %d", failures)
	}
}
