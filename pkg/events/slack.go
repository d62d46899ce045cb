package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackPublisher posts lifecycle events to a Slack incoming webhook.
type SlackPublisher struct {
	WebhookURL string
	Channel    string // Optional: Override default channel
}

// NewSlackPublisher initializes the Slack integration.
func NewSlackPublisher(webhookURL string, channel string) *SlackPublisher {
	return &SlackPublisher{
		WebhookURL: webhookURL,
		Channel:    channel,
	}
}

// Publish sends one event. An empty webhook URL makes it a no-op.
func (s *SlackPublisher) Publish(ctx context.Context, e Event) error {
	if s.WebhookURL == "" {
		return nil
	}

	jsonPayload, err := json.Marshal(s.constructPayload(e))
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("received non-200 status from slack: %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackPublisher) Close() error { return nil }

// constructPayload builds the message blocks for one event.
func (s *SlackPublisher) constructPayload(e Event) map[string]interface{} {
	var blocks []map[string]interface{}

	switch e.Type {
	case TypeScanCompleted:
		// Determine status icon.
		statusIcon := "🟢"
		if e.TotalSavings > 1000 {
			statusIcon = "🔴"
		} else if e.TotalSavings > 0 {
			statusIcon = "🟡"
		}

		blocks = []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Cloud Waste Report", statusIcon),
				},
			},
			{
				"type": "context",
				"elements": []map[string]interface{}{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*Scan:* #%d | *Provider:* %s | *Region:* %s", e.ScanID, e.Provider, e.Region),
					},
				},
			},
			{
				"type": "divider",
			},
			{
				"type": "section",
				"fields": []map[string]interface{}{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*Total Potential Savings:*\n$%.2f/mo", e.TotalSavings),
					},
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*Opportunities Identified:*\n%d", e.OpportunityCount),
					},
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*Scan Duration:*\n%s", e.Duration.Round(time.Second)),
					},
				},
			},
		}

		if e.TotalSavings > 500 {
			blocks = append(blocks, map[string]interface{}{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": "⚠️ *High Financial Impact Detected*\nSignificant unused infrastructure has been identified. Immediate review is recommended.",
				},
			})
		}

	case TypeScanFailed:
		blocks = []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{
					"type": "plain_text",
					"text": fmt.Sprintf("🔴 Scan #%d failed", e.ScanID),
				},
			},
			{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Provider:* %s\n*Error:* %s", e.Provider, e.Error),
				},
			},
		}

	default:
		blocks = []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("🔍 Scan #%d started on *%s*", e.ScanID, e.Provider),
				},
			},
		}
	}

	payload := map[string]interface{}{
		"blocks": blocks,
	}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	return payload
}
