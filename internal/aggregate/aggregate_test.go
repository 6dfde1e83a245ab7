package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mohammad-safakhou/ideascope/internal/forum"
)

func makeDocs(n int) []forum.Document {
	docs := make([]forum.Document, n)
	for i := range docs {
		docs[i] = forum.Document{ID: fmt.Sprintf("d%d", i), Score: i % 7, Comments: i % 3}
	}
	return docs
}

// countingAnalyzer derives findings from the documents alone so that the
// result is independent of how they were batched.
func countingAnalyzer(fail map[int]bool) Analyzer {
	return AnalyzerFunc(func(_ context.Context, b Batch) (Findings, error) {
		if fail[b.Index] && len(b.Documents) < 1000 {
			return Findings{}, errors.New("repair failed")
		}
		var f Findings
		mentions := 0
		for _, d := range b.Documents {
			f.Analyzed++
			if d.Score%2 == 0 {
				mentions++
			}
			f.PainPoints += d.Comments
		}
		f.Mentions = mentions
		f.DemandRate = float64(mentions) / float64(len(b.Documents))
		f.Complaints = []string{fmt.Sprintf("complaint-%d", b.Index), "Shared"}
		return f, nil
	})
}

func TestPartitionPreservesOrder(t *testing.T) {
	batches := Partition(makeDocs(1000), 50)
	if len(batches) != 20 {
		t.Fatalf("batches = %d", len(batches))
	}
	if batches[3].Index != 3 || batches[3].Documents[0].ID != "d150" {
		t.Fatalf("batch 3 = %+v", batches[3].Documents[0])
	}
	if got := Partition(makeDocs(101), 50); len(got) != 3 || len(got[2].Documents) != 1 {
		t.Fatalf("uneven partition = %d", len(got))
	}
}

func TestAggregateSkipsFailedBatches(t *testing.T) {
	var calls int32
	base := countingAnalyzer(map[int]bool{2: true, 7: true, 11: true})
	analyzer := AnalyzerFunc(func(ctx context.Context, b Batch) (Findings, error) {
		atomic.AddInt32(&calls, 1)
		return base.AnalyzeBatch(ctx, b)
	})
	agg := New(analyzer, 50, 4, 100, 200, nil)
	m, err := agg.Aggregate(context.Background(), makeDocs(1000))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if calls != 20 || m.BatchesAttempted != 20 || m.BatchesSucceeded != 17 {
		t.Fatalf("calls=%d attempted=%d succeeded=%d", calls, m.BatchesAttempted, m.BatchesSucceeded)
	}
	if m.Analyzed != 17*50 || len(m.Failures) != 3 || m.FellBack {
		t.Fatalf("metrics = %+v", m)
	}

	// The mean must be over the 17 successful batches, not 20.
	var sum float64
	docs := makeDocs(1000)
	for _, b := range Partition(docs, 50) {
		if b.Index == 2 || b.Index == 7 || b.Index == 11 {
			continue
		}
		f, _ := countingAnalyzer(nil).AnalyzeBatch(context.Background(), b)
		sum += f.DemandRate
	}
	if want := sum / 17; math.Abs(m.DemandRate-want) > 1e-9 {
		t.Fatalf("demand rate = %v want %v", m.DemandRate, want)
	}
}

func TestAggregateBatchingDoesNotChangeCounters(t *testing.T) {
	docs := makeDocs(600)
	one, err := New(countingAnalyzer(nil), 600, 1, 0, 0, nil).Aggregate(context.Background(), docs)
	if err != nil {
		t.Fatalf("single batch: %v", err)
	}
	for _, size := range []int{50, 100, 200, 300} {
		many, err := New(countingAnalyzer(nil), size, 3, 0, 0, nil).Aggregate(context.Background(), docs)
		if err != nil {
			t.Fatalf("batch size %d: %v", size, err)
		}
		if many.Analyzed != one.Analyzed || many.Mentions != one.Mentions || many.PainPoints != one.PainPoints {
			t.Fatalf("size %d counters differ: %+v vs %+v", size, many, one)
		}
		if math.Abs(many.DemandRate-one.DemandRate) > 1e-9 {
			t.Fatalf("size %d rate %v vs %v", size, many.DemandRate, one.DemandRate)
		}
	}
}

func TestAggregateFallsBackWhenAllFail(t *testing.T) {
	fail := map[int]bool{}
	for i := 0; i < 5; i++ {
		fail[i] = true
	}
	// Batch 0 of the fallback pass has 1000 documents and therefore succeeds.
	m, err := New(countingAnalyzer(fail), 200, 2, 10, 200, nil).Aggregate(context.Background(), makeDocs(1000))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !m.FellBack || m.Analyzed != 1000 || m.BatchesAttempted != 5 || m.BatchesSucceeded != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestAggregateFallbackFailure(t *testing.T) {
	analyzer := AnalyzerFunc(func(context.Context, Batch) (Findings, error) { return Findings{}, errors.New("down") })
	m, err := New(analyzer, 10, 2, 10, 0, nil).Aggregate(context.Background(), makeDocs(30))
	if err == nil || !m.FellBack {
		t.Fatalf("expected fallback failure, m=%+v err=%v", m, err)
	}
}

func TestAggregateRespectsWorkerBound(t *testing.T) {
	var (
		mu       sync.Mutex
		inflight int
		peak     int
	)
	analyzer := AnalyzerFunc(func(ctx context.Context, b Batch) (Findings, error) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			inflight--
			mu.Unlock()
		}()
		return Findings{Analyzed: len(b.Documents)}, nil
	})
	if _, err := New(analyzer, 10, 3, 10, 0, nil).Aggregate(context.Background(), makeDocs(200)); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds 3", peak)
	}
}

func TestCombineUnionFirstSeenTopN(t *testing.T) {
	m := Combine([]Findings{
		{Complaints: []string{"Slow", "pricey"}, Themes: []string{"a"}},
		{Complaints: []string{"slow", "buggy", "ugly"}, Themes: []string{"A", "b"}},
	}, 3, 3)
	if fmt.Sprint(m.Complaints) != "[Slow pricey buggy]" {
		t.Fatalf("complaints = %v", m.Complaints)
	}
	if fmt.Sprint(m.Themes) != "[a b]" {
		t.Fatalf("themes = %v", m.Themes)
	}
	if m.BatchesAttempted != 3 || m.BatchesSucceeded != 2 {
		t.Fatalf("batches = %d/%d", m.BatchesSucceeded, m.BatchesAttempted)
	}
}

func TestShouldChunk(t *testing.T) {
	a := New(nil, 50, 4, 15, 200, nil)
	if a.ShouldChunk(200) || !a.ShouldChunk(201) {
		t.Fatalf("threshold is exclusive")
	}
}
