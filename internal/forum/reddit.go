package forum

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

const providerName = "reddit"

// RedditClient searches Reddit's public JSON search endpoint.
type RedditClient struct {
	endpoint      string
	limit         int
	maxKeywords   int
	maxScopes     int
	defaultScopes []string
	window        Window
	http          *httpClient
	logger        *log.Logger
}

// NewRedditClient creates a client from forum config. A nil logger discards output.
func NewRedditClient(cfg config.ForumConfig, logger *log.Logger) *RedditClient {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	window, err := ParseWindow(cfg.TimeWindow)
	if err != nil {
		window = WindowYear
	}
	return &RedditClient{
		endpoint:      cfg.Endpoint,
		limit:         cfg.LimitPerQuery,
		maxKeywords:   cfg.MaxKeywords,
		maxScopes:     cfg.MaxScopes,
		defaultScopes: cfg.DefaultScopes,
		window:        window,
		http:          newHTTPClient(cfg.Timeout, cfg.MaxAttempts, 500*time.Millisecond, cfg.RequestsPerMinute, cfg.UserAgent),
		logger:        logger,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	Score        int     `json:"score"`
	NumComments  int     `json:"num_comments"`
	CreatedUTC   float64 `json:"created_utc"`
	Subreddit    string  `json:"subreddit"`
	Permalink    string  `json:"permalink"`
}

// Search runs one request per scope (or one global request when no scope is
// given), de-duplicates by id and keeps scope order then provider order.
// Failing scopes are tolerated as long as one scope succeeds.
func (c *RedditClient) Search(ctx context.Context, q Query) (Result, error) {
	if len(q.Scopes) == 0 {
		q.Scopes = c.defaultScopes
	}
	if q.Window == "" {
		q.Window = c.window
	}
	q, err := q.Normalize(c.maxKeywords, c.maxScopes)
	if err != nil {
		return Result{Query: q}, err
	}

	scopes := q.Scopes
	if len(scopes) == 0 {
		scopes = []string{""}
	}
	res := Result{Query: q}
	seen := map[string]bool{}
	var (
		lastErr  error
		attempts int
		ok       int
	)
	for _, scope := range scopes {
		var l listing
		n, err := c.http.getJSON(ctx, c.searchURL(q, scope), &l)
		attempts += n
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			lastErr = err
			label := scope
			if label == "" {
				label = "all"
			}
			c.logger.Printf("scope %s failed: %v", label, err)
			res.Partial = append(res.Partial, ScopeError{Scope: label, Err: err.Error()})
			continue
		}
		ok++
		for _, child := range l.Data.Children {
			doc := c.toDocument(child.Data, scope)
			if doc.ID == "" || seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			res.Documents = append(res.Documents, doc)
		}
	}
	if ok == 0 {
		return Result{Query: q}, &faults.ProviderError{Provider: providerName, Attempts: attempts, Err: lastErr}
	}
	Annotate(res.Documents, q.Keywords)
	c.logger.Printf("query %q: %d documents from %d/%d scopes", strings.Join(q.Keywords, ","), len(res.Documents), ok, len(scopes))
	return res, nil
}

func (c *RedditClient) searchURL(q Query, scope string) string {
	params := url.Values{}
	params.Set("q", buildQueryString(q.Keywords))
	params.Set("sort", "relevance")
	params.Set("t", string(q.Window))
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("raw_json", "1")
	if scope == "" {
		return fmt.Sprintf("%s/search.json?%s", c.endpoint, params.Encode())
	}
	params.Set("restrict_sr", "1")
	return fmt.Sprintf("%s/r/%s/search.json?%s", c.endpoint, url.PathEscape(scope), params.Encode())
}

func buildQueryString(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.Contains(k, " ") {
			k = `"` + k + `"`
		}
		parts = append(parts, k)
	}
	return strings.Join(parts, " OR ")
}

func (c *RedditClient) toDocument(p post, scope string) Document {
	id := p.Name
	if id == "" && p.ID != "" {
		id = "t3_" + p.ID
	}
	if scope == "" {
		scope = p.Subreddit
	}
	link := ""
	if p.Permalink != "" {
		link = c.endpoint + p.Permalink
	}
	return Document{
		ID:        id,
		Title:     strings.TrimSpace(p.Title),
		Excerpt:   excerpt(p.SelftextHTML, p.Selftext, link),
		Score:     p.Score,
		Comments:  p.NumComments,
		CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Scope:     scope,
		URL:       link,
	}
}
