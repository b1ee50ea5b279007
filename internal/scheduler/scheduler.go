// Package scheduler runs the periodic jobs: the morning digest of
// overnight messages and the media retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/rx3lixir/eco/internal/db"
)

const (
	digestSpec  = "0 8 * * *"
	cleanupSpec = "0 3 * * *"

	// The digest covers everything since the previous evening.
	digestWindowHours = 8

	mediaRetention = 7 * 24 * time.Hour

	jobTimeout = 5 * time.Minute
)

// MessageSource reads back recent messages for the digest.
type MessageSource interface {
	GetSinceHours(ctx context.Context, hours int) ([]*db.Message, error)
}

// TextNotifier pushes a proactive text notification.
type TextNotifier interface {
	NotifyText(ctx context.Context, sender, content string, urgency db.Urgency) error
}

// LocalCleaner removes aged converted audio from the media volume.
type LocalCleaner interface {
	CleanupLocal(olderThan time.Duration) (int, error)
}

// RemoteCleaner removes aged voice notes from object storage.
type RemoteCleaner interface {
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	messages MessageSource
	notifier TextNotifier
	local    LocalCleaner
	remote   RemoteCleaner
	log      *log.Logger
}

func New(messages MessageSource, notifier TextNotifier, local LocalCleaner, remote RemoteCleaner, logger *log.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		messages: messages,
		notifier: notifier,
		local:    local,
		remote:   remote,
		log:      logger,
	}
}

// Start registers the jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(digestSpec, s.runDigest); err != nil {
		return fmt.Errorf("failed to schedule morning digest: %w", err)
	}
	if _, err := s.cron.AddFunc(cleanupSpec, s.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule media cleanup: %w", err)
	}

	s.cron.Start()
	s.log.Info("Scheduler started", "digest", digestSpec, "cleanup", cleanupSpec)
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	msgs, err := s.messages.GetSinceHours(ctx, digestWindowHours)
	if err != nil {
		s.log.Error("Morning digest failed to load messages", "error", err)
		return
	}

	if len(msgs) == 0 {
		s.log.Debug("Morning digest skipped, no overnight messages")
		return
	}

	digest := buildDigest(msgs)
	if err := s.notifier.NotifyText(ctx, "Resumo da manhã", digest, db.UrgencyMedium); err != nil {
		s.log.Error("Morning digest delivery failed", "error", err)
		return
	}

	s.log.Info("Morning digest delivered", "messages", len(msgs))
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.local.CleanupLocal(mediaRetention)
	if err != nil {
		s.log.Error("Local media cleanup failed", "error", err)
	} else if removed > 0 {
		s.log.Info("Local media cleanup done", "removed", removed)
	}

	cutoff := time.Now().Add(-mediaRetention)
	removed, err = s.remote.RemoveOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("Remote media cleanup failed", "error", err)
	} else if removed > 0 {
		s.log.Info("Remote media cleanup done", "removed", removed)
	}
}

// buildDigest folds overnight messages into one spoken-friendly text,
// one line per sender, most messages first. Classifier summaries stand
// in for previews when available.
func buildDigest(msgs []*db.Message) string {
	type senderDigest struct {
		name    string
		count   int
		summary string
	}

	bySender := map[string]*senderDigest{}
	var order []string
	for _, m := range msgs {
		d, ok := bySender[m.SenderName]
		if !ok {
			d = &senderDigest{name: m.SenderName}
			bySender[m.SenderName] = d
			order = append(order, m.SenderName)
		}
		d.count++
		if m.Summary != nil && *m.Summary != "" {
			d.summary = *m.Summary
		}
	}

	digests := make([]*senderDigest, 0, len(order))
	for _, name := range order {
		digests = append(digests, bySender[name])
	}
	sort.SliceStable(digests, func(i, j int) bool {
		return digests[i].count > digests[j].count
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Você recebeu %d mensagens durante a noite. ", len(msgs)))
	for _, d := range digests {
		if d.summary != "" {
			sb.WriteString(fmt.Sprintf("%s: %s. ", d.name, d.summary))
			continue
		}
		if d.count == 1 {
			sb.WriteString(fmt.Sprintf("%s: 1 mensagem. ", d.name))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %d mensagens. ", d.name, d.count))
	}

	return strings.TrimSpace(sb.String())
}
