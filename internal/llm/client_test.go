package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

type stubProvider struct {
	results []stubResult
	calls   []Request
}

type stubResult struct {
	text string
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, req Request) (Response, error) {
	s.calls = append(s.calls, req)
	if len(s.results) == 0 {
		return Response{}, NewFatalError(errors.New("no scripted result"))
	}
	r := s.results[0]
	s.results = s.results[1:]
	return Response{Text: r.text}, r.err
}

type recordingObserver struct {
	attempts int
	err      error
}

func (o *recordingObserver) ObserveGeneration(_ string, attempts int, _ time.Duration, err error) {
	o.attempts = attempts
	o.err = err
}

func newTestClient(p Provider, opts ...Option) (*Client, *[]time.Duration) {
	c := NewClient(p, "default", opts...)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestGenerateRetriesTransient(t *testing.T) {
	p := &stubProvider{results: []stubResult{
		{err: NewTransientError(errors.New("503"))},
		{err: NewTransientError(errors.New("429"))},
		{text: "ok"},
	}}
	obs := &recordingObserver{}
	c, slept := newTestClient(p, WithObserver(obs), WithRetry(RetryConfig{MaxAttempts: 3, Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}))
	out, err := c.Generate(context.Background(), TaskAnalysis, "", "prompt", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "ok" {
		t.Fatalf("out = %q", out)
	}
	if len(p.calls) != 3 || obs.attempts != 3 {
		t.Fatalf("calls=%d attempts=%d", len(p.calls), obs.attempts)
	}
	if want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}; len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("backoff = %v", *slept)
	}
}

func TestGenerateExhaustionIsProviderError(t *testing.T) {
	p := &stubProvider{results: []stubResult{
		{err: NewTransientError(errors.New("a"))},
		{err: NewTransientError(errors.New("b"))},
		{err: NewTransientError(errors.New("c"))},
		{text: "never"},
	}}
	c, _ := newTestClient(p)
	_, err := c.Generate(context.Background(), TaskAnalysis, "", "prompt", nil)
	var perr *faults.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Attempts != 3 || len(p.calls) != 3 {
		t.Fatalf("attempts=%d calls=%d", perr.Attempts, len(p.calls))
	}
	if faults.IsFatal(err) {
		t.Fatalf("provider exhaustion is a warning, not fatal")
	}
}

func TestGenerateFatalNotRetried(t *testing.T) {
	p := &stubProvider{results: []stubResult{{err: NewFatalError(errors.New("401"))}, {text: "never"}}}
	c, _ := newTestClient(p)
	_, err := c.Generate(context.Background(), TaskAnalysis, "", "prompt", nil)
	if err == nil || len(p.calls) != 1 {
		t.Fatalf("fatal error must not be retried: calls=%d err=%v", len(p.calls), err)
	}
}

func TestGenerateBackoffCapped(t *testing.T) {
	c, _ := newTestClient(&stubProvider{}, WithRetry(RetryConfig{MaxAttempts: 6, Backoff: time.Second, MaxBackoff: 3 * time.Second}))
	if d := c.backoff(5); d != 3*time.Second {
		t.Fatalf("backoff(5) = %s", d)
	}
}

func TestGenerateRoutesAndSchema(t *testing.T) {
	p := &stubProvider{results: []stubResult{{text: `{"a":"x"}`}}}
	c, _ := newTestClient(p, WithRoute(TaskClarify, "small"))
	s := &schema.Schema{Name: "probe", Fields: []schema.Field{{Name: "a", Type: schema.String, Required: true}}}
	rec, _, err := c.GenerateRecord(context.Background(), TaskClarify, "sys", "prompt", s)
	if err != nil {
		t.Fatalf("generate record: %v", err)
	}
	if rec["a"] != "x" {
		t.Fatalf("record = %v", rec)
	}
	if p.calls[0].Model != "small" || !strings.Contains(p.calls[0].JSONSchema, `"a"`) {
		t.Fatalf("request = %+v", p.calls[0])
	}
}

func TestGenerateRecordEmptyIsRepairFailure(t *testing.T) {
	p := &stubProvider{results: []stubResult{{text: ""}}}
	c, _ := newTestClient(p)
	s := &schema.Schema{Name: "probe", Fields: []schema.Field{{Name: "a", Type: schema.String, Required: true}}}
	_, _, err := c.GenerateRecord(context.Background(), TaskAnalysis, "", "prompt", s)
	var rf *schema.RepairFailure
	if !errors.As(err, &rf) || rf.Reason != schema.ReasonEmpty {
		t.Fatalf("expected empty repair failure, got %v", err)
	}
}

func TestGenerateCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &stubProvider{results: []stubResult{{err: NewTransientError(errors.New("x"))}}}
	c, _ := newTestClient(p)
	_, err := c.Generate(ctx, TaskAnalysis, "", "prompt", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
