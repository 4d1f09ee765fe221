// Package notify delivers alert notifications to Slack over an incoming
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleetwatch/internal/logger"

	"go.uber.org/zap"
)

// Message is the notification content, decoupled from the alert types so
// any component can send one.
type Message struct {
	Severity  string
	Title     string
	Body      string
	Cluster   string
	Namespace string
	Resource  string

	// Optional AI diagnosis section
	DiagnosisSummary   string
	DiagnosisRootCause string
	Suggestions        []string
}

// SlackNotifier posts messages to a Slack incoming webhook, retrying on
// server errors.
type SlackNotifier struct {
	webhookURL  string
	channel     string
	client      *http.Client
	maxAttempts int
}

func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL:  webhookURL,
		channel:     channel,
		client:      &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
	}
}

// BuildPayload assembles the Slack block payload for a message
func (n *SlackNotifier) BuildPayload(msg Message) map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s", severityEmoji(msg.Severity), msg.Title),
			},
		},
	}

	var fields []map[string]interface{}
	if msg.Cluster != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Cluster:*\n%s", msg.Cluster),
		})
	}
	if msg.Namespace != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Namespace:*\n%s", msg.Namespace),
		})
	}
	if msg.Resource != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Resource:*\n%s", msg.Resource),
		})
	}
	fields = append(fields, map[string]interface{}{
		"type": "mrkdwn",
		"text": fmt.Sprintf("*Severity:*\n%s", msg.Severity),
	})

	blocks = append(blocks, map[string]interface{}{
		"type":   "section",
		"fields": fields,
	})

	if msg.Body != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": msg.Body,
			},
		})
	}

	if msg.DiagnosisSummary != "" {
		text := fmt.Sprintf("*AI Diagnosis:*\n%s", msg.DiagnosisSummary)
		if msg.DiagnosisRootCause != "" {
			text += fmt.Sprintf("\n*Root cause:* %s", msg.DiagnosisRootCause)
		}
		for _, suggestion := range msg.Suggestions {
			text += fmt.Sprintf("\n• %s", suggestion)
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": text,
			},
		})
	}

	payload := map[string]interface{}{
		"blocks": blocks,
	}
	if n.channel != "" {
		payload["channel"] = n.channel
	}

	return payload
}

// Send delivers the message, retrying on 5xx responses and network errors
func (n *SlackNotifier) Send(ctx context.Context, msg Message) error {
	payload := n.BuildPayload(msg)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to build slack request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("Slack delivery failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			// client errors will not succeed on retry
			return lastErr
		}

		logger.Warn("Slack webhook server error, retrying",
			zap.Int("attempt", attempt),
			zap.Int("status", resp.StatusCode))
	}

	return fmt.Errorf("slack delivery failed after %d attempts: %w", n.maxAttempts, lastErr)
}

func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	case "info":
		return "🔵"
	default:
		return "⚪"
	}
}
