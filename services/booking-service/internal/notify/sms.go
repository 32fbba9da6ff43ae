package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// WebhookSMSSender posts {"to", "body"} to an SMS gateway.
type WebhookSMSSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSMSSender(url string, token string, client *http.Client) *WebhookSMSSender {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSMSSender{url: strings.TrimSpace(url), token: strings.TrimSpace(token), http: client}
}

func (s *WebhookSMSSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSMSSender) Send(ctx context.Context, to string, body string) error {
	if s.url == "" {
		return fmt.Errorf("sms webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSMSSender struct{}

func (NoopSMSSender) ProviderID() string { return "sms-noop" }

func (NoopSMSSender) Send(context.Context, string, string) error { return nil }
