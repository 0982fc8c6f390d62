package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	ollamaDefaultURL   = "http://localhost:11434"
	ollamaDefaultModel = "llama3.2"
)

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaProvider uses Ollama's non-streaming /api/chat.
type OllamaProvider struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		endpoint: strings.TrimRight(orDefault(cfg.BaseURL, ollamaDefaultURL), "/") + "/api/chat",
		model:    orDefault(cfg.Model, ollamaDefaultModel),
		client:   newLLMHTTPClient(),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	system, turns := splitConversation(req)
	in := ollamaRequest{Model: orDefault(req.Model, p.model)}
	if system != "" {
		in.Messages = append(in.Messages, ollamaMessage{Role: string(RoleSystem), Content: system})
	}
	for _, m := range turns {
		in.Messages = append(in.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		in.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	var out ollamaResponse
	if err := postJSON(ctx, p.client, p.Name(), p.endpoint, nil, in, &out); err != nil {
		return nil, err
	}
	return &Response{
		Content:      out.Message.Content,
		FinishReason: orDefault(out.DoneReason, "stop"),
		Usage:        Usage{InputTokens: out.PromptEvalCount, OutputTokens: out.EvalCount},
	}, nil
}
