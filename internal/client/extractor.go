package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

// ExtractedPerformance is one artist billing pulled out of free-form event
// text. Time, stage and mode are present only when the text states them.
type ExtractedPerformance struct {
	Name  string `json:"name"`
	Time  string `json:"time,omitempty"`
	Stage string `json:"stage,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// LineupExtractor asks an OpenAI-compatible chat-completions endpoint to read
// the lineup out of an event description. It is the fallback when no external
// timetable matches the event.
type LineupExtractor struct {
	client   *resty.Client
	model    string
	endpoint string
}

const extractorSystemPrompt = "You extract artist lineups from electronic music event descriptions. " +
	"Respond with a JSON array only, no prose. Each element is " +
	`{"name": string, "time": optional ISO 8601 string, "stage": optional string, "mode": optional string, one of B2B, B3B, F2F, VS}. ` +
	"Return [] when the text lists no artists."

func NewLineupExtractor(cfg *config.Config) *LineupExtractor {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.Clients.ExtractorAPIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Clients.HTTPTimeout)

	baseURL := cfg.Clients.ExtractorURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &LineupExtractor{
		client:   client,
		model:    cfg.Clients.ExtractorModel,
		endpoint: baseURL + "/chat/completions",
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Extract returns the performances named in description, empty when the model
// finds none.
func (e *LineupExtractor) Extract(ctx context.Context, description string) ([]ExtractedPerformance, error) {
	req := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractorSystemPrompt},
			{Role: "user", Content: description},
		},
		MaxTokens: 1200,
	}

	var out chatResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(e.endpoint)
	metrics.IncreaseExternalCallsMetric("lineup_extractor", callResult(resp, err))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("lineup extraction: %w", err))
	}
	if resp.IsError() {
		msg := resp.String()
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("lineup extraction: status %d: %s", resp.StatusCode(), msg))
	}
	if out.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("lineup extraction: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return nil, retry.Permanent(fmt.Errorf("lineup extraction: no choices in response"))
	}

	content := stripFences(out.Choices[0].Message.Content)
	var performances []ExtractedPerformance
	if err := json.Unmarshal([]byte(content), &performances); err != nil {
		return nil, retry.Permanent(fmt.Errorf("lineup extraction: malformed reply: %w", err))
	}
	return performances, nil
}

// stripFences drops the markdown code fences models sometimes wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
