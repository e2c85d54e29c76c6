package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Discord embed limits.
const (
	discordTitleMax = 256
	discordDescMax  = 4096
)

// Embed colours per event.
var discordColors = map[string]int{
	domain.EventMarketResolved: 0x2ecc71,
	domain.EventMarketVoided:   0x95a5a6,
	domain.EventSettlementGap:  0xe67e22,
	domain.EventArchiveDone:    0x3498db,
	domain.EventArchiveFailed:  0xe74c3c,
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts notifications to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (d *DiscordSender) payload(msg Message) discordPayload {
	embed := discordEmbed{
		Title:       truncate(msg.Title, discordTitleMax),
		Description: truncate(msg.Body, discordDescMax),
		Color:       discordColors[msg.Event],
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = msg.Event
	return discordPayload{Username: "poolbet", Embeds: []discordEmbed{embed}}
}

// Send posts msg as a single embed coloured by its event.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(d.payload(msg))
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("discord: rate limited, retry after %ss", resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
