package forum

import (
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const maxExcerptChars = 600

// excerpt returns a bounded plain-text body. HTML bodies go through
// readability; the plain text is used when extraction yields nothing.
func excerpt(html, plain, link string) string {
	text := ""
	if strings.TrimSpace(html) != "" {
		u, _ := url.Parse(link)
		if u == nil {
			u = &url.URL{}
		}
		if article, err := readability.FromReader(strings.NewReader(html), u); err == nil {
			text = article.TextContent
		}
	}
	if strings.TrimSpace(text) == "" {
		text = plain
	}
	return truncateRunes(strings.Join(strings.Fields(text), " "), maxExcerptChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
