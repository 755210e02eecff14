package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSink posts each payload to an HTTP endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// NewWebhookSink constructs a sink. A nil client gets a 10s timeout.
func NewWebhookSink(url string, client *http.Client) (*WebhookSink, error) {
	if url == "" {
		return nil, errors.New("webhook sink: empty url")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookSink{url: url, client: client}, nil
}

// Publish posts {"topic": ..., "payload": ...}. Payload must be JSON.
func (s *WebhookSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if s == nil || s.url == "" {
		return errors.New("webhook sink: empty url")
	}
	if !json.Valid(payload) {
		return errors.New("webhook sink: payload is not json")
	}
	body, err := json.Marshal(webhookPayload{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook sink: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: status %d", resp.StatusCode)
	}
	return nil
}
