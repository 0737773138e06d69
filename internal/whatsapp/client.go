// Package whatsapp delivers outbound messages through a gowa
// (go-whatsapp-web-multidevice) gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atende_backend/platform/logger"
	"atende_backend/platform/phone"
)

// Config carries the gateway connection settings.
type Config struct {
	URL      string
	APIKey   string
	DeviceID string
}

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaAudioRequest struct {
	Phone    string `json:"phone"`
	AudioURL string `json:"audio_url"`
}

// NewClient returns nil when no gateway is configured; a nil client is a
// no-op sender.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		deviceID: cfg.DeviceID,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// SendMessage delivers a text message to a phone number.
func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	err := c.post(ctx, "/send/message", gowaMessageRequest{
		Phone:   normalized,
		Message: message,
	})
	if err != nil {
		return err
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized)
	return nil
}

// SendAudio delivers a voice note by URL. The gateway fetches the audio, so
// the URL must stay valid for the duration of the send.
func (c *Client) SendAudio(ctx context.Context, phoneNumber string, audioURL string) error {
	if c == nil {
		return nil
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	err := c.post(ctx, "/send/audio", gowaAudioRequest{
		Phone:    normalized,
		AudioURL: audioURL,
	})
	if err != nil {
		return err
	}

	c.log.Info("whatsapp audio sent via gowa", "phone", normalized)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
