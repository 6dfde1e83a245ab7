// Package aggregate analyses large document sets in bounded batches and
// combines the partial findings.
package aggregate

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/ideascope/internal/forum"
)

// Batch is a contiguous slice of the input documents. It lives only for one
// aggregation pass.
type Batch struct {
	Index     int
	Documents []forum.Document
}

// Findings is the analysis of one batch.
type Findings struct {
	Analyzed   int `json:"analyzed" mapstructure:"analyzed"`
	Mentions   int `json:"mentions" mapstructure:"mentions"`
	Positive   int `json:"positive" mapstructure:"positive"`
	Negative   int `json:"negative" mapstructure:"negative"`
	PainPoints int `json:"pain_points" mapstructure:"pain_points"`

	DemandRate float64 `json:"demand_rate" mapstructure:"demand_rate"`
	Sentiment  float64 `json:"sentiment" mapstructure:"sentiment"`
	Intensity  float64 `json:"intensity" mapstructure:"intensity"`

	Complaints    []string `json:"complaints" mapstructure:"complaints"`
	Themes        []string `json:"themes" mapstructure:"themes"`
	Opportunities []string `json:"opportunities" mapstructure:"opportunities"`
}

// Analyzer produces Findings for one batch.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, b Batch) (Findings, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, b Batch) (Findings, error)

func (f AnalyzerFunc) AnalyzeBatch(ctx context.Context, b Batch) (Findings, error) { return f(ctx, b) }

// BatchFailure records a batch whose analysis failed.
type BatchFailure struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// Metrics is the combination of all successful batch findings. It is rebuilt
// from scratch on every call.
type Metrics struct {
	Documents        int `json:"documents"`
	BatchesAttempted int `json:"batches_attempted"`
	BatchesSucceeded int `json:"batches_succeeded"`

	Analyzed   int `json:"analyzed"`
	Mentions   int `json:"mentions"`
	Positive   int `json:"positive"`
	Negative   int `json:"negative"`
	PainPoints int `json:"pain_points"`

	DemandRate float64 `json:"demand_rate"`
	Sentiment  float64 `json:"sentiment"`
	Intensity  float64 `json:"intensity"`

	Complaints    []string `json:"complaints"`
	Themes        []string `json:"themes"`
	Opportunities []string `json:"opportunities"`

	FellBack bool           `json:"fell_back"`
	Failures []BatchFailure `json:"failures,omitempty"`
}

// Aggregator partitions documents and fans batches out to an Analyzer.
type Aggregator struct {
	Analyzer  Analyzer
	BatchSize int
	Workers   int
	TopN      int
	Threshold int
	Logger    *log.Logger
}

// New returns an Aggregator with the given bounds.
func New(a Analyzer, batchSize, workers, topN, threshold int, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Aggregator{Analyzer: a, BatchSize: batchSize, Workers: workers, TopN: topN, Threshold: threshold, Logger: logger}
}

// ShouldChunk reports whether n documents exceed the large-dataset threshold.
func (a *Aggregator) ShouldChunk(n int) bool { return n > a.Threshold }

// Partition splits docs into order-preserving batches of at most size.
func Partition(docs []forum.Document, size int) []Batch {
	if size <= 0 {
		size = len(docs)
	}
	var out []Batch
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		out = append(out, Batch{Index: len(out), Documents: docs[start:end]})
	}
	return out
}

type outcome struct {
	findings Findings
	err      error
}

// Aggregate analyses every batch concurrently (at most Workers at a time),
// then combines the successful findings in batch order. Failed batches are
// skipped and excluded from rate averages. When every batch fails a single
// whole-dataset pass is attempted instead. The error is non-nil only for
// cancellation or when the fallback pass also fails.
func (a *Aggregator) Aggregate(ctx context.Context, docs []forum.Document) (Metrics, error) {
	batches := Partition(docs, a.BatchSize)
	if len(batches) == 0 {
		return Metrics{}, nil
	}
	results := make([]outcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	if a.Workers > 0 {
		g.SetLimit(a.Workers)
	}
	for i, b := range batches {
		g.Go(func() error {
			f, err := a.Analyzer.AnalyzeBatch(gctx, b)
			results[i] = outcome{findings: f, err: err}
			// A failed batch is recorded, not propagated; only cancellation stops the group.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Metrics{}, fmt.Errorf("aggregate: %w", err)
	}

	var (
		ok       []Findings
		failures []BatchFailure
	)
	for i, r := range results {
		if r.err != nil {
			a.Logger.Printf("batch %d/%d failed: %v", i+1, len(batches), r.err)
			failures = append(failures, BatchFailure{Index: i, Err: r.err.Error()})
			continue
		}
		ok = append(ok, r.findings)
	}

	if len(ok) == 0 {
		a.Logger.Printf("all %d batches failed, falling back to a single pass over %d documents", len(batches), len(docs))
		f, err := a.Analyzer.AnalyzeBatch(ctx, Batch{Index: 0, Documents: docs})
		if err != nil {
			m := Metrics{Documents: len(docs), BatchesAttempted: len(batches), FellBack: true, Failures: failures}
			return m, fmt.Errorf("aggregate fallback: %w", err)
		}
		m := Combine([]Findings{f}, len(batches), a.TopN)
		m.Documents = len(docs)
		m.FellBack = true
		m.Failures = failures
		return m, nil
	}

	m := Combine(ok, len(batches), a.TopN)
	m.Documents = len(docs)
	m.Failures = failures
	a.Logger.Printf("aggregated %d documents: %d/%d batches succeeded", len(docs), m.BatchesSucceeded, m.BatchesAttempted)
	return m, nil
}

// Combine merges successful findings given in batch order. Counters are
// summed, rates are the mean over len(partials), and lists are unioned
// case-insensitively in first-seen order and truncated to topN.
func Combine(partials []Findings, attempted, topN int) Metrics {
	m := Metrics{BatchesAttempted: attempted, BatchesSucceeded: len(partials)}
	complaints := newUnion(topN)
	themes := newUnion(topN)
	opportunities := newUnion(topN)
	for _, p := range partials {
		m.Analyzed += p.Analyzed
		m.Mentions += p.Mentions
		m.Positive += p.Positive
		m.Negative += p.Negative
		m.PainPoints += p.PainPoints
		m.DemandRate += p.DemandRate
		m.Sentiment += p.Sentiment
		m.Intensity += p.Intensity
		complaints.add(p.Complaints...)
		themes.add(p.Themes...)
		opportunities.add(p.Opportunities...)
	}
	if n := float64(len(partials)); n > 0 {
		m.DemandRate /= n
		m.Sentiment /= n
		m.Intensity /= n
	}
	m.Complaints = complaints.items
	m.Themes = themes.items
	m.Opportunities = opportunities.items
	return m
}

type union struct {
	limit int
	seen  map[string]bool
	items []string
}

func newUnion(limit int) *union {
	return &union{limit: limit, seen: map[string]bool{}, items: []string{}}
}

func (u *union) add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || u.seen[key] {
			continue
		}
		if u.limit > 0 && len(u.items) >= u.limit {
			return
		}
		u.seen[key] = true
		u.items = append(u.items, v)
	}
}
