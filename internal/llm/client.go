package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

// Task selects the routed model for a call.
type Task string

const (
	TaskClarify    Task = "clarify"
	TaskAnalysis   Task = "analysis"
	TaskSynthesis  Task = "synthesis"
	TaskSuggestion Task = "suggestion"
)

// Observer receives one event per completed Generate call.
type Observer interface {
	ObserveGeneration(task string, attempts int, elapsed time.Duration, err error)
}

// RetryConfig holds retry configuration for generation requests.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second}
}

// Client routes tasks to models and retries transient provider failures.
type Client struct {
	provider Provider
	routes   map[Task]string
	fallback string
	retry    RetryConfig
	logger   *log.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(c *Client) { c.logger = l } }

// WithObserver reports each call to o.
func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

// WithRetry overrides the retry budget.
func WithRetry(r RetryConfig) Option { return func(c *Client) { c.retry = r } }

// WithRoute maps a task to a model key.
func WithRoute(task Task, model string) Option {
	return func(c *Client) { c.routes[task] = model }
}

// NewClient creates a client over provider. Unrouted tasks use fallback.
func NewClient(provider Provider, fallback string, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		routes:   map[Task]string{},
		fallback: fallback,
		retry:    DefaultRetryConfig(),
		logger:   log.New(io.Discard, "", 0),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// NewClientFromConfig builds the provider set and routing from cfg.
func NewClientFromConfig(cfg config.LLMConfig, logger *log.Logger, observer Observer) (*Client, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithRetry(RetryConfig{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff, MaxBackoff: cfg.MaxBackoff}),
		WithRoute(TaskClarify, cfg.Routing.Clarify),
		WithRoute(TaskAnalysis, cfg.Routing.Analysis),
		WithRoute(TaskSynthesis, cfg.Routing.Synthesis),
		WithRoute(TaskSuggestion, cfg.Routing.Suggestion),
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	return NewClient(p, cfg.Routing.Fallback, opts...), nil
}

func (c *Client) model(task Task) string {
	if m := c.routes[task]; m != "" {
		return m
	}
	return c.fallback
}

// Generate sends prompt for task. When s is non-nil the provider is asked for
// JSON matching it. Transient failures are retried within the budget; the
// final failure is returned as a *faults.ProviderError. An empty response is
// returned as-is.
func (c *Client) Generate(ctx context.Context, task Task, system, prompt string, s *schema.Schema) (string, error) {
	req := Request{Model: c.model(task), System: system, Prompt: prompt}
	if s != nil {
		req.JSONSchema = s.JSON()
	}

	start := time.Now()
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		attempts = attempt
		resp, err := c.provider.Generate(ctx, req)
		if err == nil {
			c.observe(task, attempts, start, nil)
			return resp.Text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			c.observe(task, attempts, start, ctx.Err())
			return "", ctx.Err()
		}
		if IsFatal(err) {
			break
		}
		if attempt < c.retry.MaxAttempts {
			backoff := c.backoff(attempt)
			c.logger.Printf("%s attempt %d/%d failed, retrying in %s: %v", task, attempt, c.retry.MaxAttempts, backoff, err)
			if err := c.sleep(ctx, backoff); err != nil {
				c.observe(task, attempts, start, err)
				return "", err
			}
		}
	}
	perr := &faults.ProviderError{Provider: c.provider.Name(), Attempts: attempts, Err: lastErr}
	c.logger.Printf("%s failed: %v", task, perr)
	c.observe(task, attempts, start, perr)
	return "", perr
}

// GenerateRecord generates and repairs a structured record. A repair failure
// is returned as a *schema.RepairFailure alongside a nil record; callers
// substitute schema.Placeholder.
func (c *Client) GenerateRecord(ctx context.Context, task Task, system, prompt string, s *schema.Schema) (schema.Record, schema.Report, error) {
	raw, err := c.Generate(ctx, task, system, prompt, s)
	if err != nil {
		return nil, schema.Report{Schema: s.Name}, err
	}
	rec, rep, err := schema.Repair(raw, s)
	if err != nil {
		return nil, rep, fmt.Errorf("%s: %w", task, err)
	}
	return rec, rep, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retry.Backoff * time.Duration(1<<(attempt-1))
	if c.retry.MaxBackoff > 0 && d > c.retry.MaxBackoff {
		d = c.retry.MaxBackoff
	}
	return d
}

func (c *Client) observe(task Task, attempts int, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveGeneration(string(task), attempts, time.Since(start), err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrEmptyResponse marks a provider that answered with no text where text
// was required.
var ErrEmptyResponse = errors.New("provider returned an empty response")
