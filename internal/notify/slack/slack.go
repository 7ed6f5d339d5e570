// Package slack posts committed daily briefings to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/hermes/internal/briefing"
)

const (
	maxSummaryLen = 500
	maxEntries    = 10
	httpTimeout   = 10 * time.Second
)

// Notifier sends committed briefings to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a briefing to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, b *briefing.Briefing) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(b)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(b *briefing.Briefing) map[string]any {
	blocks := []map[string]any{
		headerBlock(b),
		{"type": "divider"},
	}

	entries := b.Entries
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	for _, e := range entries {
		blocks = append(blocks, entryBlock(e))
	}
	if len(entries) == 0 {
		blocks = append(blocks, emptyBlock())
	}

	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(b))

	return map[string]any{"blocks": blocks}
}

func headerBlock(b *briefing.Briefing) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("\U0001f4f0 Daily Cyber Briefing — %s", b.RunDate),
		},
	}
}

func entryBlock(e briefing.Entry) map[string]any {
	marker := ""
	if e.Degraded {
		marker = " ⚠️"
	}

	text := fmt.Sprintf("*%d. <%s|%s>*%s\n%s impact *%d* · %s · %d source%s\n%s",
		e.Rank,
		e.Story.Representative.URL,
		e.Story.Representative.Title,
		marker,
		scoreEmoji(e.Assessment.Score),
		e.Assessment.Score,
		e.Assessment.Category,
		e.Story.SourceCount,
		plural(e.Story.SourceCount),
		truncate(e.Summary, maxSummaryLen),
	)

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func emptyBlock() map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": "_No stories met the impact threshold today._",
		},
	}
}

func contextBlock(b *briefing.Briefing) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("hermes • %d stories • %s", len(b.Entries),
				b.RenderedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func scoreEmoji(score int) string {
	switch {
	case score >= 85:
		return "\U0001f534" // red circle
	case score >= 70:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
