package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/audio"
	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/notify"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

type fakeMessages struct {
	created         []*db.Message
	duplicate       bool
	audioUpdates    int
	classifications []db.Urgency
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg *db.Message) error {
	if f.duplicate {
		return db.ErrDuplicateMessage
	}
	msg.ID = int64(len(f.created) + 1)
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessages) UpdateAudio(_ context.Context, _ int64, _, _ string, _ *string) error {
	f.audioUpdates++
	return nil
}

func (f *fakeMessages) UpdateClassification(_ context.Context, _ int64, urgency db.Urgency, _ string, _ bool) error {
	f.classifications = append(f.classifications, urgency)
	return nil
}

func (f *fakeMessages) GetUnreadSummary(context.Context) ([]db.ChatSummary, error) { return nil, nil }
func (f *fakeMessages) GetUnread(context.Context, string, int) ([]*db.Message, error) {
	return nil, nil
}
func (f *fakeMessages) GetLatestAudio(context.Context, string) (*db.Message, error) {
	return nil, nil
}
func (f *fakeMessages) GetSinceHours(context.Context, int) ([]*db.Message, error) { return nil, nil }
func (f *fakeMessages) MarkRead(context.Context, string) error                    { return nil }

type fakePrefs struct{}

func (fakePrefs) GetPreferences(context.Context) (*db.Preferences, error) {
	return db.DefaultPreferences(), nil
}
func (fakePrefs) UpdateProactiveToken(context.Context, string, time.Time) error { return nil }

type fakeChat struct {
	calls int
	msgs  []whatsapp.ChatMessage
}

func (f *fakeChat) GetMessages(context.Context, string, int) ([]whatsapp.ChatMessage, error) {
	f.calls++
	return f.msgs, nil
}

type fakeConverter struct {
	result *audio.Result
	err    error
	calls  int
}

func (f *fakeConverter) Process(context.Context, string, string, bool, string) (*audio.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeClassifier struct {
	decision    *agents.NotificationDecision
	err         error
	calls       int
	lastContent string
}

func (f *fakeClassifier) Judge(_ context.Context, _, content string, _ agents.ChatContext) (*agents.NotificationDecision, error) {
	f.calls++
	f.lastContent = content
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

type fakeDispatcher struct {
	calls     int
	urgency   db.Urgency
	content   string
	audioCtx  *notify.AudioContext
	lastProxy agents.ChatContext
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, urgency db.Urgency, content string, cc agents.ChatContext, audioCtx *notify.AudioContext) {
	f.calls++
	f.urgency = urgency
	f.content = content
	f.audioCtx = audioCtx
	f.lastProxy = cc
}

func textPayload(id, body string) *whatsapp.WebhookPayload {
	return &whatsapp.WebhookPayload{
		Event:    whatsapp.EventMessage,
		DeviceID: "dev-1",
		Payload: whatsapp.MessagePayload{
			ID:       id,
			ChatID:   "5511@s.whatsapp.net",
			FromName: "Ana",
			Body:     body,
		},
	}
}

func audioPayload(id string) *whatsapp.WebhookPayload {
	p := textPayload(id, "")
	p.Payload.Audio = "/data/media/" + id + ".ogg"
	return p
}

func newTestPipeline(
	messages *fakeMessages,
	chat *fakeChat,
	converter *fakeConverter,
	classifier *fakeClassifier,
	dispatcher *fakeDispatcher,
) *Pipeline {
	return New(messages, fakePrefs{}, chat, converter, classifier, dispatcher, log.New(os.Stderr))
}

func TestIngestHappyPath(t *testing.T) {
	messages := &fakeMessages{}
	chat := &fakeChat{msgs: []whatsapp.ChatMessage{{Sender: "Ana", Content: "oi"}}}
	classifier := &fakeClassifier{decision: &agents.NotificationDecision{
		ShouldNotify: true,
		Urgency:      db.UrgencyCritical,
		Summary:      "urgente",
	}}
	dispatcher := &fakeDispatcher{}

	p := newTestPipeline(messages, chat, &fakeConverter{}, classifier, dispatcher)
	p.Ingest(context.Background(), textPayload("MSG-1", "socorro, preciso de você"))

	if len(messages.created) != 1 {
		t.Fatalf("expected 1 created record, got %d", len(messages.created))
	}
	if classifier.lastContent != "socorro, preciso de você" {
		t.Fatalf("classifier got wrong content: %q", classifier.lastContent)
	}
	if len(messages.classifications) != 1 || messages.classifications[0] != db.UrgencyCritical {
		t.Fatalf("classification not persisted: %v", messages.classifications)
	}
	if dispatcher.calls != 1 || dispatcher.urgency != db.UrgencyCritical {
		t.Fatalf("expected critical dispatch, got %+v", dispatcher)
	}
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	messages := &fakeMessages{duplicate: true}
	chat := &fakeChat{}
	classifier := &fakeClassifier{}
	dispatcher := &fakeDispatcher{}

	p := newTestPipeline(messages, chat, &fakeConverter{}, classifier, dispatcher)
	p.Ingest(context.Background(), textPayload("MSG-1", "oi"))

	if chat.calls != 0 || classifier.calls != 0 || dispatcher.calls != 0 {
		t.Fatalf("duplicate must stop before any downstream step")
	}
}

func TestIngestAudioConversionFailureDegrades(t *testing.T) {
	messages := &fakeMessages{}
	converter := &fakeConverter{err: errors.New("ffmpeg exploded")}
	classifier := &fakeClassifier{decision: &agents.NotificationDecision{
		ShouldNotify: false,
		Urgency:      db.UrgencyLow,
	}}

	p := newTestPipeline(messages, &fakeChat{}, converter, classifier, &fakeDispatcher{})
	payload := audioPayload("MSG-2")
	payload.Payload.Body = "mensagem de voz"
	p.Ingest(context.Background(), payload)

	if converter.calls != 1 {
		t.Fatalf("converter should have been attempted")
	}
	if messages.audioUpdates != 0 {
		t.Fatalf("failed conversion must not write audio fields")
	}
	if classifier.calls != 1 {
		t.Fatalf("classification must still run after conversion failure")
	}
	if classifier.lastContent != "mensagem de voz" {
		t.Fatalf("expected raw body as content, got %q", classifier.lastContent)
	}
}

func TestIngestTranscriptionBecomesContent(t *testing.T) {
	tr := "chego em dez minutos"
	messages := &fakeMessages{}
	converter := &fakeConverter{result: &audio.Result{
		LocalPath:     "/media/MSG-3.mp3",
		PublicURL:     "http://eco.local/media/MSG-3.mp3",
		Transcription: &tr,
	}}
	classifier := &fakeClassifier{decision: &agents.NotificationDecision{
		ShouldNotify: true,
		Urgency:      db.UrgencyMedium,
	}}
	dispatcher := &fakeDispatcher{}

	p := newTestPipeline(messages, &fakeChat{}, converter, classifier, dispatcher)
	p.Ingest(context.Background(), audioPayload("MSG-3"))

	if messages.audioUpdates != 1 {
		t.Fatalf("audio fields should be persisted")
	}
	if classifier.lastContent != tr {
		t.Fatalf("expected transcript as content, got %q", classifier.lastContent)
	}
	if dispatcher.audioCtx == nil || dispatcher.audioCtx.PublicURL != "http://eco.local/media/MSG-3.mp3" {
		t.Fatalf("dispatch should carry the audio context, got %+v", dispatcher.audioCtx)
	}
}

func TestIngestClassifierFailureAborts(t *testing.T) {
	messages := &fakeMessages{}
	classifier := &fakeClassifier{err: errors.New("model down")}
	dispatcher := &fakeDispatcher{}

	p := newTestPipeline(messages, &fakeChat{}, &fakeConverter{}, classifier, dispatcher)
	p.Ingest(context.Background(), textPayload("MSG-4", "oi"))

	if len(messages.classifications) != 0 {
		t.Fatalf("no classification should be written on failure")
	}
	if dispatcher.calls != 0 {
		t.Fatalf("nothing may be dispatched without a decision")
	}
}

func TestIngestQuietDecisionSkipsDispatch(t *testing.T) {
	messages := &fakeMessages{}
	classifier := &fakeClassifier{decision: &agents.NotificationDecision{
		ShouldNotify: false,
		Urgency:      db.UrgencyHigh,
	}}
	dispatcher := &fakeDispatcher{}

	p := newTestPipeline(messages, &fakeChat{}, &fakeConverter{}, classifier, dispatcher)
	p.Ingest(context.Background(), textPayload("MSG-5", "oi"))

	if len(messages.classifications) != 1 {
		t.Fatalf("decision must still be persisted")
	}
	if dispatcher.calls != 0 {
		t.Fatalf("should-notify=false must not dispatch")
	}
}
