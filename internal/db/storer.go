package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateMessage marks an ingestion attempt for a message_id
// that already has a row. Duplicates are benign webhook retries.
var ErrDuplicateMessage = errors.New("message already processed")

// To abstract db methods from pgxpool api
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(pool DBTX) *PostgresStore {
	return &PostgresStore{
		db: pool,
	}
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	UpdateAudio(ctx context.Context, id int64, localPath, publicURL string, transcription *string) error
	UpdateClassification(ctx context.Context, id int64, urgency Urgency, summary string, notified bool) error
	GetUnreadSummary(ctx context.Context) ([]ChatSummary, error)
	GetUnread(ctx context.Context, contactFilter string, limit int) ([]*Message, error)
	GetLatestAudio(ctx context.Context, contactFilter string) (*Message, error)
	GetSinceHours(ctx context.Context, hours int) ([]*Message, error)
	MarkRead(ctx context.Context, chatJID string) error
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context) (*Preferences, error)
	UpdateProactiveToken(ctx context.Context, token string, expires time.Time) error
}

func CreatePostgresPool(parentCtx context.Context, dburl string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, time.Second*3)
	defer cancel()

	pool, err := pgxpool.New(ctx, dburl)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
