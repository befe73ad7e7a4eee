// Package external provides notifications.Channel implementations that
// reach outside the process: a generic incoming-webhook POST (Slack- and
// Discord-compatible payload shape) and SMTP email.
package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeframe-dev/codeframe/internal/notifications"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// WebhookChannel posts a blocker notification to a generic incoming
// webhook URL using the Slack/Discord-compatible attachment shape, the
// one transport NotifyWebhookConfig (spec §4.13) describes.
type WebhookChannel struct {
	config types.NotifyWebhookConfig
	client *http.Client
}

// NewWebhookChannel builds a webhook channel from config.
func NewWebhookChannel(config types.NotifyWebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) ShouldNotify(n notifications.Notification) bool {
	if !w.config.Enabled || w.config.URL == "" {
		return false
	}
	if w.config.MinSeverity == "" {
		return true
	}
	return n.Severity == types.BlockerSeverity(w.config.MinSeverity)
}

func (w *WebhookChannel) Send(n notifications.Notification) error {
	if w.config.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	color := "warning"
	if n.Severity == types.BlockerSync {
		color = "danger"
	}

	fields := []map[string]interface{}{
		{"title": "Blocker", "value": fmt.Sprintf("%d", n.BlockerID), "short": true},
		{"title": "Task", "value": fmt.Sprintf("%d", n.TaskID), "short": true},
		{"title": "Severity", "value": string(n.Severity), "short": true},
		{"title": "Reason", "value": n.Reason, "short": false},
		{"title": "Question", "value": n.Question, "short": false},
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("CodeFRAME blocker #%d needs input", n.BlockerID),
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  "Blocker raised",
				"fields": fields,
				"ts":     n.CreatedAt.Unix(),
			},
		},
	}
	if w.config.Channel != "" {
		payload["channel"] = w.config.Channel
	}
	if w.config.Username != "" {
		payload["username"] = w.config.Username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	resp, err := w.client.Post(w.config.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
