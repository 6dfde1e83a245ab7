package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ideascope/config"
)

const maxResponseSize = 4 << 20

// OpenAIProvider implements Provider for OpenAI-compatible chat completions.
type OpenAIProvider struct {
	name   string
	config config.LLMProvider
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(name string, cfg config.LLMProvider) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{name: name, config: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *OpenAIProvider) Name() string { return p.name }

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatReq struct {
	Model          string          `json:"model"`
	Messages       []chatMsg       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate performs one chat completion call.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return Response{}, NewFatalError(fmt.Errorf("OpenAI API key not configured"))
	}

	m, ok := p.config.Models[req.Model]
	if !ok {
		return Response{}, NewFatalError(fmt.Errorf("model %s not configured", req.Model))
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	temperature := m.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var msgs []chatMsg
	system := req.System
	if req.JSONSchema != "" {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON Schema:\n" + req.JSONSchema)
	}
	if system != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: req.Prompt})

	payload := chatReq{
		Model:       apiModel,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONSchema != "" {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, NewFatalError(fmt.Errorf("marshal: %w", err))
	}

	baseURL := strings.TrimSuffix(p.config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, NewFatalError(fmt.Errorf("request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, NewTransientError(fmt.Errorf("do: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Response{}, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, classifyHTTPError(resp.StatusCode, raw)
	}

	var out chatResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, NewTransientError(fmt.Errorf("decode: %w", err))
	}
	if len(out.Choices) == 0 {
		return Response{}, NewTransientError(fmt.Errorf("no choices"))
	}
	text := out.Choices[0].Message.Content
	if text == "" && out.Choices[0].Message.Refusal != "" {
		// Refusals surface as text so the repairer can classify them.
		text = out.Choices[0].Message.Refusal
	}
	return Response{
		Text:             text,
		Model:            out.Model,
		PromptTokens:     int64(out.Usage.PromptTokens),
		CompletionTokens: int64(out.Usage.CompletionTokens),
	}, nil
}
