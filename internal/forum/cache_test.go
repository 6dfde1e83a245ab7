package forum

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memCache struct {
	data map[string]Result
	err  error
}

func (m *memCache) Get(_ context.Context, key string) (Result, bool, error) {
	if m.err != nil {
		return Result{}, false, m.err
	}
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, r Result, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = r
	return nil
}

type countingSearcher struct {
	calls  int
	result Result
	err    error
}

func (s *countingSearcher) Search(_ context.Context, q Query) (Result, error) {
	s.calls++
	r := s.result
	r.Query = q
	return r, s.err
}

func TestCachedSearcherHit(t *testing.T) {
	next := &countingSearcher{result: Result{Documents: []Document{{ID: "1"}}}}
	s := NewCachedSearcher(next, &memCache{data: map[string]Result{}}, time.Hour, nil)
	q := Query{Keywords: []string{"A", "b"}}
	if _, err := s.Search(context.Background(), q); err != nil {
		t.Fatalf("first search: %v", err)
	}
	r, err := s.Search(context.Background(), Query{Keywords: []string{"b", "a"}})
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if next.calls != 1 || !r.Cached || len(r.Documents) != 1 {
		t.Fatalf("calls=%d cached=%v", next.calls, r.Cached)
	}
}

func TestCachedSearcherSkipsPartial(t *testing.T) {
	next := &countingSearcher{result: Result{Partial: []ScopeError{{Scope: "x"}}}}
	cache := &memCache{data: map[string]Result{}}
	s := NewCachedSearcher(next, cache, time.Hour, nil)
	_, _ = s.Search(context.Background(), Query{Keywords: []string{"a"}})
	if len(cache.data) != 0 {
		t.Fatalf("partial results must not be cached")
	}
}

func TestCachedSearcherIgnoresCacheErrors(t *testing.T) {
	next := &countingSearcher{result: Result{Documents: []Document{{ID: "1"}}}}
	s := NewCachedSearcher(next, &memCache{err: errors.New("down")}, time.Hour, nil)
	r, err := s.Search(context.Background(), Query{Keywords: []string{"a"}})
	if err != nil || len(r.Documents) != 1 {
		t.Fatalf("cache errors must pass through: %v", err)
	}
}
