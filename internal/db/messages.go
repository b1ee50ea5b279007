package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `
	id, message_id, chat_jid, sender_name, is_group, message_type,
	content_preview, audio_local_path, audio_public_url, transcription,
	summary, urgency, notified, read_by_user, received_at, processed_at
`

// CreateMessage inserts a new message record. A second insert for the
// same message_id returns ErrDuplicateMessage and leaves the row alone.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO processed_messages (
			message_id, chat_jid, sender_name, is_group, message_type,
			content_preview, urgency, notified, read_by_user, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id, received_at
	`

	if msg.Urgency == "" {
		msg.Urgency = UrgencyLow
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	err := s.db.QueryRow(ctx, query,
		msg.MessageID,
		msg.ChatJID,
		msg.SenderName,
		msg.IsGroup,
		msg.MessageType,
		msg.ContentPreview,
		msg.Urgency,
		msg.Notified,
		msg.ReadByUser,
		msg.ReceivedAt,
	).Scan(&msg.ID, &msg.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicateMessage
		}
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// UpdateAudio stores the conversion results for a voice note.
func (s *PostgresStore) UpdateAudio(ctx context.Context, id int64, localPath, publicURL string, transcription *string) error {
	query := `
		UPDATE processed_messages
		SET audio_local_path = $2, audio_public_url = $3, transcription = $4
		WHERE id = $1
	`

	result, err := s.db.Exec(ctx, query, id, localPath, publicURL, transcription)
	if err != nil {
		return fmt.Errorf("failed to update audio fields: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("message not found")
	}

	return nil
}

// UpdateClassification persists the classifier decision and stamps processed_at.
func (s *PostgresStore) UpdateClassification(ctx context.Context, id int64, urgency Urgency, summary string, notified bool) error {
	query := `
		UPDATE processed_messages
		SET urgency = $2, summary = $3, notified = $4, processed_at = $5
		WHERE id = $1
	`

	result, err := s.db.Exec(ctx, query, id, urgency, summary, notified, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("message not found")
	}

	return nil
}

// GetUnreadSummary groups unread messages per chat with the highest
// urgency seen in each.
func (s *PostgresStore) GetUnreadSummary(ctx context.Context) ([]ChatSummary, error) {
	query := `
		SELECT chat_jid, sender_name, urgency
		FROM processed_messages
		WHERE read_by_user = FALSE
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread messages: %w", err)
	}
	defer rows.Close()

	var unread []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ChatJID, &msg.SenderName, &msg.Urgency); err != nil {
			return nil, fmt.Errorf("failed to scan unread message: %w", err)
		}
		unread = append(unread, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unread messages: %w", err)
	}

	return summarizeUnread(unread), nil
}

// summarizeUnread folds unread rows into per-chat counters keeping the
// max urgency. First sender name seen for a chat wins, matching the
// insertion order of the rows.
func summarizeUnread(unread []*Message) []ChatSummary {
	byChat := make(map[string]int)
	summaries := []ChatSummary{}

	for _, msg := range unread {
		idx, ok := byChat[msg.ChatJID]
		if !ok {
			byChat[msg.ChatJID] = len(summaries)
			summaries = append(summaries, ChatSummary{
				ChatJID: msg.ChatJID,
				Name:    msg.SenderName,
				Urgency: UrgencyLow,
			})
			idx = len(summaries) - 1
		}
		summaries[idx].Count++
		if msg.Urgency.Rank() > summaries[idx].Urgency.Rank() {
			summaries[idx].Urgency = msg.Urgency
		}
	}

	return summaries
}

// GetUnread returns up to limit unread messages, newest first,
// optionally filtered by sender name.
func (s *PostgresStore) GetUnread(ctx context.Context, contactFilter string, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM processed_messages
		WHERE read_by_user = FALSE
		  AND ($1 = '' OR sender_name ILIKE '%' || $1 || '%')
		ORDER BY received_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, contactFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetLatestAudio returns the most recent audio message that has a
// public URL, optionally filtered by sender name.
func (s *PostgresStore) GetLatestAudio(ctx context.Context, contactFilter string) (*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM processed_messages
		WHERE message_type = 'audio'
		  AND audio_public_url IS NOT NULL
		  AND ($1 = '' OR sender_name ILIKE '%' || $1 || '%')
		ORDER BY received_at DESC
		LIMIT 1
	`

	msg := &Message{}
	err := scanMessage(s.db.QueryRow(ctx, query, contactFilter), msg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest audio: %w", err)
	}

	return msg, nil
}

// GetSinceHours returns every message received in the last N hours.
func (s *PostgresStore) GetSinceHours(ctx context.Context, hours int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM processed_messages
		WHERE received_at >= $1
		ORDER BY received_at ASC
	`

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := s.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkRead flags every unread message of a chat as read.
func (s *PostgresStore) MarkRead(ctx context.Context, chatJID string) error {
	query := `
		UPDATE processed_messages
		SET read_by_user = TRUE
		WHERE chat_jid = $1 AND read_by_user = FALSE
	`

	if _, err := s.db.Exec(ctx, query, chatJID); err != nil {
		return fmt.Errorf("failed to mark chat as read: %w", err)
	}

	return nil
}

func scanMessage(row pgx.Row, msg *Message) error {
	return row.Scan(
		&msg.ID,
		&msg.MessageID,
		&msg.ChatJID,
		&msg.SenderName,
		&msg.IsGroup,
		&msg.MessageType,
		&msg.ContentPreview,
		&msg.AudioLocalPath,
		&msg.AudioPublicURL,
		&msg.Transcription,
		&msg.Summary,
		&msg.Urgency,
		&msg.Notified,
		&msg.ReadByUser,
		&msg.ReceivedAt,
		&msg.ProcessedAt,
	)
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	messages := []*Message{}
	for rows.Next() {
		msg := &Message{}
		if err := scanMessage(rows, msg); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}
