// Package llm wraps the external text-generation provider: one call per
// request, bounded retries for transient failures, and structured-output
// repair on top.
package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/mohammad-safakhou/ideascope/config"
)

// Request is a single generation call.
type Request struct {
	Model       string // model key from config, resolved by the provider
	System      string
	Prompt      string
	JSONSchema  string // optional; when set the provider asks for a JSON object
	Temperature float64
	MaxTokens   int
}

// Response is the raw provider output. Text may be empty.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Provider performs a single, non-retried generation call. Implementations
// classify errors with NewTransientError / NewFatalError.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// NewProvider creates a Provider for every configured provider entry and
// dispatches each request by model key.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	router := &modelRouter{byModel: map[string]Provider{}}
	for _, name := range names {
		pc := cfg.Providers[name]
		var p Provider
		switch pc.Type {
		case "", "openai":
			p = NewOpenAIProvider(name, pc)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", pc.Type)
		}
		for key := range pc.Models {
			if _, dup := router.byModel[key]; dup {
				return nil, fmt.Errorf("model key %q configured by more than one provider", key)
			}
			router.byModel[key] = p
		}
		router.names = append(router.names, p.Name())
	}
	if len(router.byModel) == 1 || len(names) == 1 {
		for _, p := range router.byModel {
			return p, nil
		}
	}
	return router, nil
}

type modelRouter struct {
	byModel map[string]Provider
	names   []string
}

func (r *modelRouter) Name() string { return fmt.Sprintf("router%v", r.names) }

func (r *modelRouter) Generate(ctx context.Context, req Request) (Response, error) {
	p, ok := r.byModel[req.Model]
	if !ok {
		return Response{}, NewFatalError(fmt.Errorf("model %s not configured", req.Model))
	}
	return p.Generate(ctx, req)
}
