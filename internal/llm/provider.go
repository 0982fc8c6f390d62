// Package llm abstracts the text generation backends used by the tutor and
// the fix judge.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// AutoSelect lets the registry pick the first registered provider.
const AutoSelect = "auto"

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a generation call. Zero Model, MaxTokens and Temperature
// leave the choice to the provider.
type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Prompt builds a single user-turn request.
func Prompt(text string) *Request {
	return &Request{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// Response is the generated text plus accounting.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

type namedProvider struct {
	name string
	p    Provider
}

// Registry holds the configured providers in registration order. The
// preferred provider is used when present, otherwise the first one.
type Registry struct {
	mu        sync.RWMutex
	entries   []namedProvider
	preferred string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers p under name. Re-adding a name replaces the provider but
// keeps its position.
func (r *Registry) Add(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(name); i >= 0 {
		r.entries[i].p = p
		return
	}
	r.entries = append(r.entries, namedProvider{name: name, p: p})
}

// Prefer selects the default provider. AutoSelect or "" restores
// registration-order selection.
func (r *Registry) Prefer(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == AutoSelect {
		name = ""
	}
	if name != "" && r.index(name) < 0 {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.preferred = name
	return nil
}

// Preferred returns the explicitly selected provider name, or AutoSelect.
func (r *Registry) Preferred() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.preferred == "" {
		return AutoSelect
	}
	return r.preferred
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(name); i >= 0 {
		return r.entries[i].p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// Default returns the provider the tutor and judge should use.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(r.preferred); r.preferred != "" && i >= 0 {
		return r.entries[i].p, nil
	}
	if len(r.entries) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return r.entries[0].p, nil
}

// Names lists the registered providers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Close releases providers that hold resources, such as the rate limiter
// of a ResilientProvider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, e := range r.entries {
		if c, ok := e.p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.entries, func(e namedProvider) bool { return e.name == name })
}
