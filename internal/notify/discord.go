package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nurpe/freight/internal/config"
	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

const (
	colorPassed  = 0x008000
	colorFailed  = 0xFF0000
	colorPending = 0x808080

	brandingName = "Freight"
)

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSink posts contract creation and status changes to a webhook.
type DiscordSink struct {
	url             string
	mentions        []string
	disableBranding bool
	client          *http.Client
}

func NewDiscordSink(cfg config.DiscordConfig, client *http.Client) *DiscordSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordSink{
		url:             cfg.WebhookURL,
		mentions:        cfg.Mentions,
		disableBranding: cfg.DisableBranding,
		client:          client,
	}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Send(ctx context.Context, event model.ContractEvent) error {
	if event.Kind == model.EventContractPricingResolved {
		return nil
	}

	body, err := json.Marshal(s.message(event))
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
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("discord webhook responded %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

func (s *DiscordSink) message(event model.ContractEvent) discordMessage {
	contract := event.Contract
	embed := discordEmbed{
		Title:       embedTitle(contract),
		Description: embedDescription(event),
		Color:       embedColor(contract),
		Fields: []discordEmbedField{
			{Name: "Reward", Value: pricing.FormatAmount(contract.Reward) + " ISK", Inline: true},
			{Name: "Collateral", Value: pricing.FormatAmount(contract.Collateral) + " ISK", Inline: true},
			{Name: "Volume", Value: pricing.FormatAmount(contract.Volume) + " m3", Inline: true},
			{Name: "Status", Value: string(contract.Status), Inline: true},
		},
		Timestamp: event.At.UTC().Format(time.RFC3339),
	}
	if contract.HasIssues() {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:  "Issues",
			Value: "- " + strings.Join(contract.Issues, "\n- "),
		})
	}

	msg := discordMessage{Embeds: []discordEmbed{embed}}
	if !s.disableBranding {
		msg.Username = brandingName
		embed.Footer = &discordEmbedFooter{Text: brandingName}
		msg.Embeds[0] = embed
	}
	if len(s.mentions) > 0 && event.Kind == model.EventContractCreated {
		msg.Content = strings.Join(s.mentions, " ")
	}
	return msg
}

func embedTitle(contract model.Contract) string {
	start, end := fmt.Sprint(contract.StartLocationID), fmt.Sprint(contract.EndLocationID)
	if contract.StartLocation != nil {
		start = contract.StartLocation.ShortName()
	}
	if contract.EndLocation != nil {
		end = contract.EndLocation.ShortName()
	}
	return fmt.Sprintf("%s >> %s", start, end)
}

func embedDescription(event model.ContractEvent) string {
	switch event.Kind {
	case model.EventContractCreated:
		return fmt.Sprintf("New courier contract %d", event.ContractID)
	case model.EventContractStatusChanged:
		return fmt.Sprintf("Contract %d changed from %s to %s", event.ContractID, event.OldStatus, event.NewStatus)
	default:
		return ""
	}
}

func embedColor(contract model.Contract) int {
	switch {
	case !contract.HasPricing(), contract.Issues == nil:
		return colorPending
	case contract.HasIssues():
		return colorFailed
	default:
		return colorPassed
	}
}
