// Package forum searches an external discussion forum for posts about a
// proposal and annotates each post with derived relevance and sentiment.
package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Window bounds how far back a search looks.
type Window string

const (
	WindowHour  Window = "hour"
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
	WindowAll   Window = "all"
)

// ParseWindow validates s, defaulting to a year.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowYear, nil
	case WindowHour, WindowDay, WindowWeek, WindowMonth, WindowYear, WindowAll:
		return w, nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

// ErrNoKeywords is returned for a query with no usable keyword.
var ErrNoKeywords = errors.New("forum query has no keywords")

// Query is one search request.
type Query struct {
	Keywords []string `json:"keywords"`
	Scopes   []string `json:"scopes"`
	Window   Window   `json:"window"`
}

// Normalize trims, de-duplicates and bounds the query. Over-long lists keep
// their first entries.
func (q Query) Normalize(maxKeywords, maxScopes int) (Query, error) {
	out := Query{
		Keywords: boundedUnique(q.Keywords, maxKeywords, nil),
		Scopes:   boundedUnique(q.Scopes, maxScopes, normScope),
		Window:   q.Window,
	}
	if out.Window == "" {
		out.Window = WindowYear
	}
	if len(out.Keywords) == 0 {
		return out, ErrNoKeywords
	}
	return out, nil
}

func normScope(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "/"), "r/")
	return strings.Trim(s, "/ ")
}

func boundedUnique(in []string, max int, norm func(string) string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if norm != nil {
			s = norm(s)
		}
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Document is one fetched post. Documents are immutable once fetched.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Excerpt   string    `json:"excerpt"`
	Score     int       `json:"score"`    // upvotes
	Comments  int       `json:"comments"` // comment count
	CreatedAt time.Time `json:"created_at"`
	Scope     string    `json:"scope"`
	URL       string    `json:"url"`
	Relevance float64   `json:"relevance"` // [0,1]
	Sentiment float64   `json:"sentiment"` // [-1,1]
}

// ScopeError records a scope whose search failed while others succeeded.
type ScopeError struct {
	Scope string `json:"scope"`
	Err   string `json:"error"`
}

// Result is the ordered, de-duplicated outcome of one Query.
type Result struct {
	Query     Query        `json:"query"`
	Documents []Document   `json:"documents"`
	Partial   []ScopeError `json:"partial,omitempty"`
	Cached    bool         `json:"-"`
}

// Searcher runs forum searches.
type Searcher interface {
	Search(ctx context.Context, q Query) (Result, error)
}
