package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"

	"github.com/mohammad-safakhou/ideascope/internal/aggregate"
	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
	"github.com/mohammad-safakhou/ideascope/internal/llm"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

const sampleSize = 10

// BatchAnalyzer analyses one batch of forum posts through the generator. A
// batch whose output cannot be repaired, or whose demand rate had to be
// defaulted, counts as failed so it stays out of the rate averages.
type BatchAnalyzer struct {
	gen  Generator
	idea *ClarifiedIdea
}

func (a *BatchAnalyzer) AnalyzeBatch(ctx context.Context, b aggregate.Batch) (aggregate.Findings, error) {
	rec, rep, err := a.gen.GenerateRecord(ctx, llm.TaskAnalysis, analystSystem, batchPrompt(a.idea, b), findingsSchema)
	if err != nil {
		return aggregate.Findings{}, fmt.Errorf("batch %d: %w", b.Index, err)
	}
	if slices.Contains(rep.Defaulted, "demand_rate") {
		return aggregate.Findings{}, fmt.Errorf("batch %d: %w", b.Index,
			&faults.SchemaViolation{Schema: findingsSchema.Name, Coerced: rep.Coerced, Defaulted: rep.Defaulted})
	}
	var f aggregate.Findings
	if err := schema.Decode(rec, &f); err != nil {
		return aggregate.Findings{}, fmt.Errorf("batch %d: %w", b.Index, err)
	}
	f.Analyzed = len(b.Documents)
	if f.Mentions > f.Analyzed {
		f.Mentions = f.Analyzed
	}
	return f, nil
}

// Miner searches forums for evidence and reduces it to metrics and a
// reality-check verdict. Large result sets go through the chunked
// aggregator.
type Miner struct {
	base
	searcher forum.Searcher
	agg      *aggregate.Aggregator
	window   forum.Window
}

// NewMiner builds a Miner. agg supplies batch size, worker bound, top-N and
// the large-dataset threshold; its Analyzer is replaced per run.
func NewMiner(gen Generator, searcher forum.Searcher, agg *aggregate.Aggregator, window forum.Window, logger *log.Logger) *Miner {
	if agg == nil {
		agg = aggregate.New(nil, 50, 4, 15, 200, logger)
	}
	return &Miner{base: newBase("miner", PhaseMining, gen, logger), searcher: searcher, agg: agg, window: window}
}

func (m *Miner) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := m.requireIdea(s); err != nil {
		return Delta{}, err
	}
	idea := s.ClarifiedIdea
	keywords := idea.Keywords
	if len(keywords) == 0 {
		keywords = []string{idea.Title}
	}
	research := &Research{
		Query:    forum.Query{Keywords: keywords, Scopes: idea.Scopes, Window: m.window},
		Verdict:  "insufficient_data",
		Evidence: []string{},
	}
	d := Delta{Phase: m.phase, Research: research}

	if m.searcher == nil {
		research.Status = ResearchUnavailable
		research.RealityCheck = "Forum search is not configured."
		return d, nil
	}
	res, err := m.searcher.Search(ctx, research.Query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Delta{}, ctxErr
		}
		research.Status = ResearchUnavailable
		research.RealityCheck = "Forum search failed; no market evidence was gathered."
		d.Warnings = append(d.Warnings, m.warning(fmt.Errorf("forum search: %w", err)))
		return d, nil
	}
	if len(res.Query.Keywords) > 0 {
		research.Query = res.Query
	}
	for _, p := range res.Partial {
		d.Warnings = append(d.Warnings, m.warning(&faults.ProviderError{Provider: "forum:" + p.Scope, Err: errors.New(p.Err)}))
	}

	docs := res.Documents
	research.Documents = len(docs)
	if len(docs) == 0 {
		research.Status = ResearchNoData
		research.RealityCheck = "No forum discussions matched the search."
		return d, nil
	}
	research.Status = ResearchOK
	research.Sample = topDocuments(docs, sampleSize)

	analyzer := &BatchAnalyzer{gen: m.gen, idea: idea}
	var metrics aggregate.Metrics
	if m.agg.ShouldChunk(len(docs)) {
		agg := *m.agg
		agg.Analyzer = analyzer
		research.Chunked = true
		metrics, err = agg.Aggregate(ctx, docs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Delta{}, ctxErr
			}
			d.Warnings = append(d.Warnings, m.warning(err))
		}
	} else {
		f, err := analyzer.AnalyzeBatch(ctx, aggregate.Batch{Index: 0, Documents: docs})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Delta{}, ctxErr
			}
			d.Warnings = append(d.Warnings, m.warning(err))
			metrics = aggregate.Combine(nil, 1, m.agg.TopN)
			metrics.Failures = []aggregate.BatchFailure{{Index: 0, Err: err.Error()}}
		} else {
			metrics = aggregate.Combine([]aggregate.Findings{f}, 1, m.agg.TopN)
		}
		metrics.Documents = len(docs)
	}
	research.Metrics = &metrics

	var verdict struct {
		Verdict      string   `json:"verdict"`
		RealityCheck string   `json:"reality_check"`
		Evidence     []string `json:"evidence"`
	}
	ws, err := m.structured(ctx, llm.TaskAnalysis, realitySystem, realityPrompt(idea, metrics, research.Sample), realityCheckSchema, &verdict)
	if err != nil {
		return Delta{}, err
	}
	d.Warnings = append(d.Warnings, ws...)
	research.Verdict = verdict.Verdict
	research.RealityCheck = verdict.RealityCheck
	if verdict.Evidence != nil {
		research.Evidence = verdict.Evidence
	}
	m.logger.Printf("research: %d documents, chunked=%v, verdict=%s", len(docs), research.Chunked, research.Verdict)
	return d, nil
}

// topDocuments returns the n most engaged documents, ties broken by the
// original order.
func topDocuments(docs []forum.Document, n int) []forum.Document {
	out := append([]forum.Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score+out[i].Comments > out[j].Score+out[j].Comments
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
