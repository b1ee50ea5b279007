package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ChatMessage is one entry of a chat history fetch.
type ChatMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Contact is one entry of a contact search.
type Contact struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
}

// Client talks to the WhatsApp Go container's REST API. Every request
// carries the X-Device-Id header of the connected device.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
}

func NewClient(baseURL, deviceID string) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMessages fetches the most recent messages of a chat by JID.
func (c *Client) GetMessages(ctx context.Context, chatJID string, limit int) ([]ChatMessage, error) {
	endpoint := fmt.Sprintf(
		"%s/chat/%s/messages?limit=%s",
		c.baseURL,
		url.PathEscape(chatJID),
		strconv.Itoa(limit),
	)

	var out struct {
		Results []ChatMessage `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}

	return out.Results, nil
}

// SendMessage sends a text message to a phone number or JID.
func (c *Client) SendMessage(ctx context.Context, target, text string) error {
	body := map[string]string{
		"phone":   target,
		"message": text,
	}

	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/send/message", body, nil); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// FindContacts searches the account's contact list by display name.
func (c *Client) FindContacts(ctx context.Context, name string) ([]Contact, error) {
	endpoint := c.baseURL + "/user/my/contacts?search=" + url.QueryEscape(name)

	var out struct {
		Results []Contact `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}

	return out.Results, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Device-Id", c.deviceID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whatsapp api returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
