// Package instagram delivers outbound direct messages through the Meta
// Graph API.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atende_backend/platform/logger"
)

const graphAPIBase = "https://graph.facebook.com/v21.0"

// Config carries the Graph API credentials.
type Config struct {
	AccessToken string
	PageID      string
}

type Client struct {
	accessToken string
	pageID      string
	baseURL     string
	http        *http.Client
	log         *logger.Logger
}

type sendMessageRequest struct {
	Recipient     recipient `json:"recipient"`
	Message       message   `json:"message"`
	MessagingType string    `json:"messaging_type"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

// NewClient returns nil when the Graph API is not configured; a nil client
// is a no-op sender.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.AccessToken == "" {
		return nil
	}

	return &Client{
		accessToken: cfg.AccessToken,
		pageID:      cfg.PageID,
		baseURL:     graphAPIBase,
		http:        &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

// PageID returns the connected page's id, used to drop message echoes.
func (c *Client) PageID() string {
	if c == nil {
		return ""
	}
	return c.pageID
}

// SendMessage delivers a text DM to an Instagram user.
func (c *Client) SendMessage(ctx context.Context, userID string, text string) error {
	if c == nil {
		return nil
	}

	payload := sendMessageRequest{
		Recipient:     recipient{ID: userID},
		Message:       message{Text: text},
		MessagingType: "RESPONSE",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal instagram payload: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instagram request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("instagram dm sent", "user_id", userID)
	return nil
}
