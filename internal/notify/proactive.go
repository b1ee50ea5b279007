// Package notify maps an urgency level to a proactive Alexa delivery
// action and owns the client-credentials token cache.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/db"
)

const (
	defaultEventsURL = "https://api.amazonalexa.com/v1/proactiveEvents/"
	defaultTokenURL  = "https://api.amazon.com/auth/o2/token"

	// A token this close to expiry is treated as already expired.
	tokenSafetyMargin = 60 * time.Second

	// CRITICAL alerts carry raw content, capped to keep the spoken
	// alert short.
	criticalContentLimit = 200
)

// TokenStore is the slice of the preference store the notifier needs
// for the cached-token contract.
type TokenStore interface {
	GetPreferences(ctx context.Context) (*db.Preferences, error)
	UpdateProactiveToken(ctx context.Context, token string, expires time.Time) error
}

// Summarizer produces the digest delivered for HIGH urgency alerts.
type Summarizer interface {
	Summarize(ctx context.Context, cc agents.ChatContext) (*agents.ConversationSummary, error)
}

// AudioContext carries the conversion results of an audio message into
// the MEDIUM dispatch branch.
type AudioContext struct {
	PublicURL     string
	Transcription *string
}

// Config wires the notifier. EventsURL/TokenURL default to the Amazon
// endpoints when empty.
type Config struct {
	ClientID     string
	ClientSecret string
	UserID       string
	EventsURL    string
	TokenURL     string
}

// Notifier delivers proactive events with at-most-once semantics:
// a failed delivery is logged, never retried.
type Notifier struct {
	cfg        Config
	prefs      TokenStore
	summarizer Summarizer
	http       *http.Client
	log        *log.Logger
}

func New(cfg Config, prefs TokenStore, summarizer Summarizer, logger *log.Logger) *Notifier {
	if cfg.EventsURL == "" {
		cfg.EventsURL = defaultEventsURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}

	return &Notifier{
		cfg:        cfg,
		prefs:      prefs,
		summarizer: summarizer,
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        logger,
	}
}

// Dispatch maps the urgency of an already-classified message to a
// delivery action. Urgency is the sole discriminator. Callers invoke
// it only when the classifier said to notify, but LOW stays a no-op
// regardless.
func (n *Notifier) Dispatch(ctx context.Context, sender string, urgency db.Urgency, content string, cc agents.ChatContext, audio *AudioContext) {
	switch urgency {
	case db.UrgencyCritical:
		if err := n.NotifyText(ctx, sender, truncate(content, criticalContentLimit), urgency); err != nil {
			n.log.Error("Critical notification failed", "sender", sender, "error", err)
		}

	case db.UrgencyHigh:
		summary, err := n.summarizer.Summarize(ctx, cc)
		if err != nil {
			n.log.Error("Summarizer failed, skipping notification", "sender", sender, "error", err)
			return
		}
		if err := n.NotifyText(ctx, sender, summary.Summary, urgency); err != nil {
			n.log.Error("High-urgency notification failed", "sender", sender, "error", err)
		}

	case db.UrgencyMedium:
		if audio != nil && audio.PublicURL != "" {
			content := fmt.Sprintf("Áudio de %s", sender)
			if audio.Transcription != nil && *audio.Transcription != "" {
				content = *audio.Transcription
			}
			if err := n.NotifyText(ctx, sender, content, urgency); err != nil {
				n.log.Error("Audio notification failed", "sender", sender, "error", err)
			}
			return
		}
		n.notifySilent()

	default:
		// LOW or unknown: nothing to deliver
	}
}

// NotifyText delivers one proactive message-alert event.
func (n *Notifier) NotifyText(ctx context.Context, sender, content string, urgency db.Urgency) error {
	token, err := n.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain delivery token: %w", err)
	}
	if token == "" {
		n.log.Warn("No delivery credentials configured, skipping notification")
		return nil
	}

	now := time.Now().UTC()
	payload := map[string]any{
		"timestamp":   now.Format(time.RFC3339),
		"referenceId": fmt.Sprintf("msg-%s", uuid.NewString()),
		"expiryTime":  now.Add(time.Hour).Format(time.RFC3339),
		"event": map[string]any{
			"name": "AMAZON.MessageAlert.Activated",
			"payload": map[string]any{
				"state": map[string]any{"status": "UNREAD", "freshness": "NEW"},
				"messageGroup": map[string]any{
					"creator": map[string]any{"name": sender},
					"count":   1,
					"urgency": string(urgency),
					"message": content,
				},
			},
		},
		"relevantAudience": map[string]any{
			"type":    "Unicast",
			"payload": map[string]any{"user": map[string]any{"userId": n.cfg.UserID}},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.EventsURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// At-most-once: log and move on, no retry
		n.log.Error("Proactive event rejected", "status", resp.StatusCode, "body", string(body))
	}

	return nil
}

// notifySilent is the ambient (LED-only) signal. The device API offers
// no channel for it yet, so it is log-only.
func (n *Notifier) notifySilent() {
	n.log.Debug("Silent notification (LED only)")
}

// getToken returns a delivery token, reusing the cached one while it
// still has more than the safety margin of validity left. Returns ""
// without error when no credentials are configured.
func (n *Notifier) getToken(ctx context.Context) (string, error) {
	if n.cfg.ClientID == "" || n.cfg.ClientSecret == "" {
		return "", nil
	}

	prefs, err := n.prefs.GetPreferences(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if prefs.ProactiveToken != nil && prefs.ProactiveTokenExpiry != nil &&
		prefs.ProactiveTokenExpiry.After(now.Add(tokenSafetyMargin)) {
		return *prefs.ProactiveToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {n.cfg.ClientID},
		"client_secret": {n.cfg.ClientSecret},
		"scope":         {"alexa::proactive_events"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenData); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	expires := now.Add(time.Duration(tokenData.ExpiresIn) * time.Second)
	if err := n.prefs.UpdateProactiveToken(ctx, tokenData.AccessToken, expires); err != nil {
		// A failed cache write costs one extra token request later,
		// the token itself is still good
		n.log.Warn("Failed to cache delivery token", "error", err)
	}

	return tokenData.AccessToken, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
