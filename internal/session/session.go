package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// TTL is how long a pending action survives after its last write.
const TTL = 300 * time.Second

// Kind tags the pending-action union.
type Kind string

const (
	// KindConfirm: a contact match is awaiting a yes/no from the user.
	KindConfirm Kind = "confirm"
	// KindSend: contact confirmed, awaiting the message content.
	KindSend Kind = "send"
	// KindReplies: three generated replies are awaiting a 1-3 pick.
	KindReplies Kind = "replies"
)

// PendingAction is the state of an in-progress multi-turn voice flow.
// Each session holds at most one: writing a new action replaces
// whatever was pending before.
type PendingAction struct {
	Kind     Kind     `json:"kind"`
	Contact  string   `json:"contact"`
	ChatJID  string   `json:"chat_jid"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Store is what the dialogue router needs from the session layer.
type Store interface {
	SetPending(ctx context.Context, sessionID string, action PendingAction) error
	GetPending(ctx context.Context, sessionID string) (*PendingAction, error)
	ClearPending(ctx context.Context, sessionID string) error
}

// Manager handles key-value storage operations for dialogue sessions
type Manager struct {
	client valkey.Client
}

// NewManager creates a new session manager
func NewManager(addr, password string) (*Manager, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
		// Values live for minutes and are read back at most a couple
		// of times, client-side caching buys nothing here
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	return &Manager{client: client}, nil
}

func pendingKey(sessionID string) string {
	return fmt.Sprintf("alexa:pending:%s", sessionID)
}

// SetPending writes the session's pending action, resetting the TTL.
// The single-slot layout makes "exactly one active pending action"
// hold by construction.
func (m *Manager) SetPending(ctx context.Context, sessionID string, action PendingAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal pending action: %w", err)
	}

	setCmd := m.client.B().Set().
		Key(pendingKey(sessionID)).
		Value(string(data)).
		Ex(TTL).
		Build()

	if err := m.client.Do(ctx, setCmd).Error(); err != nil {
		return fmt.Errorf("failed to set pending action: %w", err)
	}

	return nil
}

// GetPending retrieves the session's pending action.
// Returns (nil, nil) when nothing is pending or the TTL expired.
func (m *Manager) GetPending(ctx context.Context, sessionID string) (*PendingAction, error) {
	getCmd := m.client.B().Get().Key(pendingKey(sessionID)).Build()

	result := m.client.Do(ctx, getCmd)

	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to parse pending action data: %w", err)
	}

	var action PendingAction
	if err := json.Unmarshal([]byte(data), &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
	}

	return &action, nil
}

// ClearPending removes the session's pending action once it is consumed.
func (m *Manager) ClearPending(ctx context.Context, sessionID string) error {
	delCmd := m.client.B().Del().Key(pendingKey(sessionID)).Build()

	if err := m.client.Do(ctx, delCmd).Error(); err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}

	return nil
}

// Close closes the client connection
func (m *Manager) Close() {
	m.client.Close()
}
