package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const summaryPrompt = `Summarize the following webpage content in 4-6 concise bullet points using markdown formatting. Focus on the main ideas and key information.

Format your response as:
- Use bullet points (-)
- Use **bold** for important terms or concepts
- Use *italics* for emphasis where appropriate
- Keep each bullet point clear and informative
- No need for a heading or title, just the bullet points

Webpage content:
%s`

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	defaultSummaryTimeout = 60 * time.Second
)

// SummarizerConfig is injected at construction; there is no package-level
// client state, so tests can point BaseURL at a fake endpoint.
type SummarizerConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type GeminiClient struct {
	cfg    SummarizerConfig
	client *resty.Client
}

func NewGeminiClient(cfg SummarizerConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSummaryTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &GeminiClient{cfg: cfg, client: client}
}

// Summarize embeds text verbatim into the instructional prompt and returns
// the model's text unmodified. No markdown validation is performed on the
// way out.
func (g *GeminiClient) Summarize(ctx context.Context, text string) (string, error) {
	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": fmt.Sprintf(summaryPrompt, text)},
				},
			},
		},
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(body).
		Post("/v1beta/models/" + g.cfg.Model + ":generateContent")
	if err != nil {
		return "", &Error{
			Kind:    KindUpstream,
			Message: "failed to generate summary",
			cause:   err,
		}
	}
	if resp.IsError() {
		return "", &Error{
			Kind:    KindUpstream,
			Message: fmt.Sprintf("summarization API returned status %d", resp.StatusCode()),
		}
	}

	summary := gjson.GetBytes(resp.Body(), "candidates.0.content.parts.0.text").String()
	if summary == "" {
		return "", &Error{
			Kind:    KindUpstream,
			Message: "summarization API returned an empty response",
		}
	}
	return summary, nil
}
