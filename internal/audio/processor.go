// Package audio turns WhatsApp voice notes (OGG files dropped into a
// shared volume) into web-playable MP3s with an optional transcript.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// Uploader stores the converted file durably (MinIO in production).
type Uploader interface {
	UploadVoiceNote(ctx context.Context, messageID, localPath string) (string, error)
}

// Transcriber runs speech-to-text over a local audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath, language string) (string, error)
}

// Result is what a successful conversion produces. Transcription stays
// nil when transcription is disabled or failed.
type Result struct {
	LocalPath     string
	PublicURL     string
	Transcription *string
}

const transcribeTimeout = 2 * time.Minute

// Processor converts and transcribes voice notes. Transcriptions go
// through a weighted semaphore so a burst of voice notes cannot stall
// every concurrent pipeline run behind the slow call.
type Processor struct {
	mediaDir      string
	publicBaseURL string
	uploader      Uploader
	transcriber   Transcriber
	transcribeSem *semaphore.Weighted
	log           *log.Logger
}

func NewProcessor(mediaDir, publicBaseURL string, uploader Uploader, transcriber Transcriber, logger *log.Logger) *Processor {
	return &Processor{
		mediaDir:      mediaDir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		uploader:      uploader,
		transcriber:   transcriber,
		transcribeSem: semaphore.NewWeighted(2),
		log:           logger,
	}
}

// Process stages the source voice note, converts it to MP3, uploads it
// and optionally transcribes it. A transcription failure yields a nil
// transcript without failing the conversion; a conversion failure is
// returned to the caller.
func (p *Processor) Process(ctx context.Context, messageID, sourcePath string, transcribe bool, language string) (*Result, error) {
	if err := os.MkdirAll(p.mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	staged := filepath.Join(p.mediaDir, messageID+".ogg")
	if sourcePath != staged {
		if err := copyFile(sourcePath, staged); err != nil {
			return nil, fmt.Errorf("failed to stage voice note: %w", err)
		}
	}

	mp3Path := filepath.Join(p.mediaDir, messageID+".mp3")
	if err := convertToMP3(ctx, staged, mp3Path); err != nil {
		return nil, fmt.Errorf("failed to convert voice note: %w", err)
	}
	os.Remove(staged)

	if _, err := p.uploader.UploadVoiceNote(ctx, messageID, mp3Path); err != nil {
		// The local copy still serves playback, object storage is
		// only the durable tier
		p.log.Warn("Voice note upload failed", "message_id", messageID, "error", err)
	}

	result := &Result{
		LocalPath: mp3Path,
		PublicURL: fmt.Sprintf("%s/media/%s.mp3", p.publicBaseURL, messageID),
	}

	if transcribe {
		if text, err := p.transcribe(ctx, mp3Path, language); err != nil {
			p.log.Warn("Transcription failed", "message_id", messageID, "error", err)
		} else if text != "" {
			result.Transcription = &text
		}
	}

	return result, nil
}

func (p *Processor) transcribe(ctx context.Context, mp3Path, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	if err := p.transcribeSem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for transcription slot: %w", err)
	}
	defer p.transcribeSem.Release(1)

	return p.transcriber.Transcribe(ctx, mp3Path, LangCode(language))
}

// CleanupLocal removes staged audio files older than the given age.
// Returns how many files were removed.
func (p *Processor) CleanupLocal(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(p.mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read media dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".mp3" && ext != ".ogg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(p.mediaDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// LangCode reduces a locale like "pt-BR" to the two-letter code the
// transcription API expects.
func LangCode(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

func convertToMP3(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", src,
		"-codec:a", "libmp3lame",
		"-q:a", "4",
		dst,
		"-y",
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
