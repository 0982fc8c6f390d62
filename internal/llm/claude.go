package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	claudeDefaultURL   = "https://api.anthropic.com"
	claudeDefaultModel = "claude-sonnet-4-20250514"
	claudeAPIVersion   = "2023-06-01"
	claudeMaxTokens    = 1024
)

// ClaudeConfig configures the Anthropic Messages API client. Empty
// BaseURL and Model use the public endpoint and a Sonnet model.
type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ClaudeProvider calls the Anthropic Messages API.
type ClaudeProvider struct {
	endpoint string
	model    string
	header   http.Header
	client   *http.Client
}

func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	base := orDefault(cfg.BaseURL, claudeDefaultURL)
	h := http.Header{}
	h.Set("x-api-key", cfg.APIKey)
	h.Set("anthropic-version", claudeAPIVersion)
	return &ClaudeProvider{
		endpoint: strings.TrimRight(base, "/") + "/v1/messages",
		model:    orDefault(cfg.Model, claudeDefaultModel),
		header:   h,
		client:   newLLMHTTPClient(),
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *ClaudeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	system, turns := splitConversation(req)
	in := claudeRequest{
		Model:       orDefault(req.Model, p.model),
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if in.MaxTokens <= 0 {
		in.MaxTokens = claudeMaxTokens
	}
	for _, m := range turns {
		in.Messages = append(in.Messages, claudeMessage{Role: string(m.Role), Content: m.Content})
	}

	var out claudeResponse
	if err := postJSON(ctx, p.client, p.Name(), p.endpoint, p.header, in, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Content:      text.String(),
		FinishReason: out.StopReason,
		Usage:        Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
	}, nil
}

// orDefault returns v, or def when v is empty.
func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
