package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type fakeUploader struct{ uploaded []string }

func (f *fakeUploader) UploadVoiceNote(_ context.Context, messageID, _ string) (string, error) {
	f.uploaded = append(f.uploaded, messageID)
	return "media/" + messageID + ".mp3", nil
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(context.Context, string, string) (string, error) {
	return f.text, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr)
}

func TestLangCode(t *testing.T) {
	cases := map[string]string{
		"pt-BR": "pt",
		"pt_BR": "pt",
		"en":    "en",
		"ES":    "es",
	}
	for in, want := range cases {
		if got := LangCode(in); got != want {
			t.Fatalf("LangCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProcessMissingSourceFails(t *testing.T) {
	p := NewProcessor(t.TempDir(), "http://eco.local", &fakeUploader{}, &fakeTranscriber{}, testLogger())

	_, err := p.Process(context.Background(), "MSG-1", "/nope/missing.ogg", false, "pt-BR")
	if err == nil {
		t.Fatalf("expected error for missing source file")
	}
}

func TestCleanupLocalRemovesOnlyOldAudio(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(dir, "http://eco.local", &fakeUploader{}, &fakeTranscriber{}, testLogger())

	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.mp3")
	other := filepath.Join(dir, "notes.txt")
	for _, f := range []string{old, fresh, other} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	ancient := time.Now().Add(-8 * 24 * time.Hour)
	if err := os.Chtimes(old, ancient, ancient); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(other, ancient, ancient); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := p.CleanupLocal(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed file, got %d", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old mp3 should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh mp3 should survive: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("non-audio file should survive: %v", err)
	}
}

func TestCleanupLocalMissingDirIsNoop(t *testing.T) {
	p := NewProcessor(filepath.Join(t.TempDir(), "missing"), "http://eco.local", &fakeUploader{}, &fakeTranscriber{}, testLogger())

	removed, err := p.CleanupLocal(time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("expected clean no-op, got removed=%d err=%v", removed, err)
	}
}
