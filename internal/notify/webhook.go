package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// Colors for Discord embeds
	colorRed    = 15158332 // 0xE74C3C
	colorGreen  = 5763719  // 0x57F287
	colorYellow = 16705372 // 0xFEE75C

	defaultWebhookTimeout = 10 * time.Second

	// Max attempts when rate limited
	maxRetries = 3
)

var printer = message.NewPrinter(language.English)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// BatchSummary is what a finished batch run reports
type BatchSummary struct {
	RunID     string
	Processed int
	Skipped   int
	Failed    int
	Aligned   int
	Unaligned int
	Duration  time.Duration
	Finished  time.Time
}

// NewBatchSummaryPayload builds the embed for a finished run. Runs with
// failures or unaligned matches are flagged yellow.
func NewBatchSummaryPayload(s BatchSummary) WebhookPayload {
	color := colorGreen
	if s.Failed > 0 || s.Unaligned > 0 {
		color = colorYellow
	}

	embed := Embed{
		Title: "Replay batch finished",
		Color: color,
		Fields: []EmbedField{
			{Name: "Processed", Value: formatNumber(s.Processed), Inline: true},
			{Name: "Aligned", Value: formatNumber(s.Aligned), Inline: true},
			{Name: "Not aligned", Value: formatNumber(s.Unaligned), Inline: true},
			{Name: "Skipped", Value: formatNumber(s.Skipped), Inline: true},
			{Name: "Failed", Value: formatNumber(s.Failed), Inline: true},
			{Name: "Runtime", Value: formatDuration(s.Duration), Inline: true},
		},
		Footer: &EmbedFooter{Text: "run " + s.RunID},
	}
	if !s.Finished.IsZero() {
		embed.Timestamp = s.Finished.UTC().Format(time.RFC3339)
	}
	return WebhookPayload{Embeds: []Embed{embed}}
}

// NewBatchFailedPayload builds the alert for a run that stopped early
func NewBatchFailedPayload(runID string, err error) WebhookPayload {
	return WebhookPayload{
		Content: "@here Replay batch failed",
		Embeds: []Embed{
			{
				Title:       "Replay batch failed",
				Description: err.Error(),
				Color:       colorRed,
				Footer:      &EmbedFooter{Text: "run " + runID},
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendBatchSummary posts the summary of a finished run
func (c *WebhookClient) SendBatchSummary(ctx context.Context, s BatchSummary) error {
	return c.sendPayload(ctx, NewBatchSummaryPayload(s))
}

// SendBatchFailed posts an alert for a run that stopped early
func (c *WebhookClient) SendBatchFailed(ctx context.Context, runID string, err error) error {
	return c.sendPayload(ctx, NewBatchFailedPayload(runID, err))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatNumber groups thousands, e.g. 47832 -> "47,832"
func formatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// formatDuration formats a duration as "Xh Ym Zs"
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
