package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const preferencesColumns = `
	id, vip_contacts, urgent_keywords, quiet_hours_start, quiet_hours_end,
	quiet_hours_allow_vip, notify_on_group_mention, group_notify_threshold,
	important_groups, long_message_threshold, language,
	transcription_enabled, proactive_token, proactive_token_expiry
`

// GetPreferences loads the singleton preferences row, creating it with
// defaults on first access.
func (s *PostgresStore) GetPreferences(ctx context.Context) (*Preferences, error) {
	query := `
		SELECT ` + preferencesColumns + `
		FROM user_preferences
		WHERE id = 1
	`

	prefs := &Preferences{}
	err := scanPreferences(s.db.QueryRow(ctx, query), prefs)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	return s.createDefaultPreferences(ctx)
}

func (s *PostgresStore) createDefaultPreferences(ctx context.Context) (*Preferences, error) {
	query := `
		INSERT INTO user_preferences (
			id, vip_contacts, urgent_keywords, quiet_hours_start,
			quiet_hours_end, quiet_hours_allow_vip, notify_on_group_mention,
			group_notify_threshold, important_groups, long_message_threshold,
			language, transcription_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING ` + preferencesColumns

	def := DefaultPreferences()

	prefs := &Preferences{}
	err := scanPreferences(s.db.QueryRow(ctx, query,
		def.ID,
		def.VIPContacts,
		def.UrgentKeywords,
		def.QuietHoursStart,
		def.QuietHoursEnd,
		def.QuietHoursAllowVIP,
		def.NotifyOnGroupMention,
		def.GroupNotifyThreshold,
		def.ImportantGroups,
		def.LongMessageThreshold,
		def.Language,
		def.TranscriptionEnabled,
	), prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to create default preferences: %w", err)
	}

	return prefs, nil
}

// UpdateProactiveToken caches a fresh delivery token with its expiry.
// Concurrent refreshes may race here, the last write wins and each
// written token is valid, so no locking is needed.
func (s *PostgresStore) UpdateProactiveToken(ctx context.Context, token string, expires time.Time) error {
	query := `
		UPDATE user_preferences
		SET proactive_token = $1, proactive_token_expiry = $2
		WHERE id = 1
	`

	result, err := s.db.Exec(ctx, query, token, expires)
	if err != nil {
		return fmt.Errorf("failed to update proactive token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("preferences row not found")
	}

	return nil
}

func scanPreferences(row pgx.Row, prefs *Preferences) error {
	return row.Scan(
		&prefs.ID,
		&prefs.VIPContacts,
		&prefs.UrgentKeywords,
		&prefs.QuietHoursStart,
		&prefs.QuietHoursEnd,
		&prefs.QuietHoursAllowVIP,
		&prefs.NotifyOnGroupMention,
		&prefs.GroupNotifyThreshold,
		&prefs.ImportantGroups,
		&prefs.LongMessageThreshold,
		&prefs.Language,
		&prefs.TranscriptionEnabled,
		&prefs.ProactiveToken,
		&prefs.ProactiveTokenExpiry,
	)
}
