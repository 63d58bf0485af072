package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/models"
)

type DiscordWebhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbed struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Color       int                   `json:"color"`
	Fields      []DiscordWebhookField `json:"fields"`
	Timestamp   string                `json:"timestamp"`
}

type DiscordWebhookRequest struct {
	Username string         `json:"username"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields"`
	Timestamp int64        `json:"ts"`
}

type SlackWebhookRequest struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

const (
	ColorRed   = 16711680 // incident opened
	ColorGreen = 65280    // incident resolved

	Username = "StatusDeck"
)

// Webhook posts incident lifecycle notifications to Discord and/or
// Slack. Both URLs are optional; sends are best-effort and failures
// only get logged.
type Webhook struct {
	discordURL string
	slackURL   string
	logger     *slog.Logger
}

func NewWebhook(discordURL, slackURL string, logger *slog.Logger) *Webhook {
	return &Webhook{discordURL: discordURL, slackURL: slackURL, logger: logger}
}

func (w *Webhook) IncidentCreated(incident *models.Incident) {
	if w.discordURL != "" {
		payload := DiscordWebhookRequest{
			Username: Username,
			Embeds: []DiscordEmbed{
				{
					Title:       "🚨 Incident opened",
					Description: incident.Title,
					Color:       ColorRed,
					Fields: []DiscordWebhookField{
						{Name: "Severity", Value: string(incident.Severity), Inline: true},
						{Name: "Impact", Value: string(incident.ImpactType), Inline: true},
						{Name: "Affected entities", Value: fmt.Sprintf("%d", len(incident.AffectedEntities)), Inline: true},
						{Name: "Started at", Value: incident.StartedAt.Format("2006-01-02 15:04:05 UTC"), Inline: true},
					},
					Timestamp: time.Now().Format(time.RFC3339),
				},
			},
		}
		if err := sendDiscordWebhook(w.discordURL, payload); err != nil {
			w.logger.Warn("discord notification failed", "incident_id", incident.ID, "error", err)
		}
	}

	if w.slackURL != "" {
		payload := SlackWebhookRequest{
			Username:  Username,
			IconEmoji: ":rotating_light:",
			Text:      ":rotating_light: *Incident opened*",
			Attachments: []SlackAttachment{
				{
					Color: "danger",
					Title: incident.Title,
					Text:  incident.Description,
					Fields: []SlackField{
						{Title: "Severity", Value: string(incident.Severity), Short: true},
						{Title: "Impact", Value: string(incident.ImpactType), Short: true},
					},
					Timestamp: time.Now().Unix(),
				},
			},
		}
		if err := sendSlackWebhook(w.slackURL, payload); err != nil {
			w.logger.Warn("slack notification failed", "incident_id", incident.ID, "error", err)
		}
	}
}

func (w *Webhook) IncidentResolved(incident *models.Incident) {
	duration := "unknown"
	resolvedAt := "unknown"
	if incident.ResolvedAt != nil {
		resolvedAt = incident.ResolvedAt.Format("2006-01-02 15:04:05 UTC")
		duration = incident.ResolvedAt.Sub(incident.StartedAt).Round(time.Second).String()
	}

	if w.discordURL != "" {
		payload := DiscordWebhookRequest{
			Username: Username,
			Embeds: []DiscordEmbed{
				{
					Title:       "✅ Incident resolved",
					Description: incident.Title,
					Color:       ColorGreen,
					Fields: []DiscordWebhookField{
						{Name: "Severity", Value: string(incident.Severity), Inline: true},
						{Name: "Resolved at", Value: resolvedAt, Inline: true},
						{Name: "Duration", Value: duration, Inline: true},
					},
					Timestamp: time.Now().Format(time.RFC3339),
				},
			},
		}
		if err := sendDiscordWebhook(w.discordURL, payload); err != nil {
			w.logger.Warn("discord notification failed", "incident_id", incident.ID, "error", err)
		}
	}

	if w.slackURL != "" {
		payload := SlackWebhookRequest{
			Username:  Username,
			IconEmoji: ":white_check_mark:",
			Text:      ":white_check_mark: *Incident resolved*",
			Attachments: []SlackAttachment{
				{
					Color: "good",
					Title: incident.Title,
					Fields: []SlackField{
						{Title: "Duration", Value: duration, Short: true},
						{Title: "Resolved at", Value: resolvedAt, Short: true},
					},
					Timestamp: time.Now().Unix(),
				},
			},
		}
		if err := sendSlackWebhook(w.slackURL, payload); err != nil {
			w.logger.Warn("slack notification failed", "incident_id", incident.ID, "error", err)
		}
	}
}

func sendDiscordWebhook(webhookURL string, payload DiscordWebhookRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}
	return post(webhookURL, body)
}

func sendSlackWebhook(webhookURL string, payload SlackWebhookRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}
	return post(webhookURL, body)
}

func post(webhookURL string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
