// Package notify posts progress messages and result cards to a chat
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/resilience"
)

// Notifier delivers messages to a chat.
type Notifier interface {
	Text(ctx context.Context, text string) error
	Card(ctx context.Context, card Card) error
}

// Card templates (header colors).
const (
	TemplateGreen  = "green"
	TemplateBlue   = "blue"
	TemplateOrange = "orange"
	TemplateRed    = "red"
)

// Card is an interactive message with a markdown body and an optional
// link button.
type Card struct {
	Title      string
	Template   string
	Body       string
	ButtonText string
	ButtonURL  string
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(w *Webhook) { w.client = hc }
}

// WithRetry overrides the delivery retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(w *Webhook) { w.retry = cfg }
}

// Webhook posts messages to a chat bot webhook. An empty URL disables
// delivery.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.Attempts(3, "notify", "webhook"),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool { return w.url != "" }

// Text sends a plain text message.
func (w *Webhook) Text(ctx context.Context, text string) error {
	return w.send(ctx, map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
}

// Card sends an interactive card.
func (w *Webhook) Card(ctx context.Context, card Card) error {
	elements := []any{
		map[string]any{
			"tag":  "div",
			"text": map[string]string{"tag": "lark_md", "content": card.Body},
		},
	}
	if card.ButtonURL != "" {
		elements = append(elements, map[string]any{
			"tag": "action",
			"actions": []any{map[string]any{
				"tag":  "button",
				"text": map[string]string{"tag": "plain_text", "content": card.ButtonText},
				"type": "primary",
				"url":  card.ButtonURL,
			}},
		})
	}
	return w.send(ctx, map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"config": map[string]bool{"wide_screen_mode": true},
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": card.Title},
				"template": card.Template,
			},
			"elements": elements,
		},
	})
}

// webhookReply is the bot API envelope. Code 0 means delivered.
type webhookReply struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (w *Webhook) send(ctx context.Context, payload map[string]any) error {
	if !w.Enabled() {
		zap.L().Debug("notify: webhook not configured, dropping message")
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	err = resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, body)
	})
	if err != nil {
		zap.L().Warn("notify: delivery failed", zap.Any("msg_type", payload["msg_type"]), zap.Error(err))
	}
	return err
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "notify: read webhook reply"), resp.StatusCode)
	}
	if err := resilience.StatusError("notify: webhook", resp.StatusCode); err != nil {
		return err
	}

	var reply webhookReply
	if len(raw) > 0 && json.Unmarshal(raw, &reply) == nil && reply.Code != 0 {
		return eris.Errorf("notify: webhook rejected message: code %d: %s", reply.Code, reply.Msg)
	}
	return nil
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Text(context.Context, string) error { return nil }
func (Discard) Card(context.Context, Card) error   { return nil }
