package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ErrAllKeysFailed is returned when every configured API key was rejected.
var ErrAllKeysFailed = errors.New("all API keys failed")

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig holds configuration for the Gemini provider
type GeminiConfig struct {
	APIKeys []string
	Model   string
	Logger  *slog.Logger
}

// generator is the slice of the genai client the provider needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider generates with Google Gemini. It holds one client per API
// key and rotates round-robin; a request tries each key at most once.
type GeminiProvider struct {
	model   string
	clients []generator
	logger  *slog.Logger

	mu   sync.Mutex
	next int
}

// NewGeminiProvider creates one genai client per key.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	var clients []generator
	for _, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		clients = append(clients, client.Models)
	}
	if len(clients) == 0 {
		return nil, errors.New("gemini: no API keys configured")
	}
	return newGeminiProvider(cfg.Model, clients, cfg.Logger), nil
}

func newGeminiProvider(model string, clients []generator, logger *slog.Logger) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiProvider{model: model, clients: clients, logger: logger}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Keys returns the number of configured keys.
func (p *GeminiProvider) Keys() int {
	return len(p.clients)
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents, cfg := p.buildRequest(req)

	var lastErr error
	for range p.clients {
		idx, client := p.nextClient()
		resp, err := client.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return toResponse(resp), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		p.logger.Warn("gemini key failed, rotating", "key_index", idx, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllKeysFailed, lastErr)
}

func (p *GeminiProvider) nextClient() (int, generator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.next
	p.next = (p.next + 1) % len(p.clients)
	return idx, p.clients[idx]
}

func (p *GeminiProvider) buildRequest(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitConversation(req)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return contents, cfg
}

func toResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{Content: resp.Text()}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out
}
