package forum

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"
)

// Annotate fills Relevance and Sentiment for docs in place.
func Annotate(docs []Document, keywords []string) {
	rel := relevance(docs, keywords)
	for i := range docs {
		docs[i].Relevance = rel[i]
		docs[i].Sentiment = Sentiment(docs[i].Title + " " + docs[i].Excerpt)
	}
}

// relevance scores each document against the keywords with a throwaway
// BM25 index and normalises by the best hit.
func relevance(docs []Document, keywords []string) []float64 {
	out := make([]float64, len(docs))
	if len(docs) == 0 || len(keywords) == 0 {
		return out
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return out
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, d := range docs {
		if err := batch.Index(strconv.Itoa(i), map[string]string{"title": d.Title, "body": d.Excerpt}); err != nil {
			return out
		}
	}
	if err := index.Batch(batch); err != nil {
		return out
	}

	var qs []query.Query
	for _, k := range keywords {
		qs = append(qs, bleve.NewMatchQuery(k))
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), len(docs), 0, false)
	res, err := index.Search(req)
	if err != nil || len(res.Hits) == 0 {
		return out
	}
	max := res.Hits[0].Score
	for _, h := range res.Hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return out
	}
	for _, h := range res.Hits {
		i, err := strconv.Atoi(h.ID)
		if err != nil || i < 0 || i >= len(out) {
			continue
		}
		out[i] = h.Score / max
	}
	return out
}

var (
	positiveWords = wordSet("love", "great", "awesome", "amazing", "useful", "helpful", "excellent", "good",
		"best", "recommend", "happy", "easy", "works", "worth", "nice", "perfect", "fantastic", "glad",
		"solved", "fast", "reliable", "cheap", "affordable", "want", "need", "wish")
	negativeWords = wordSet("hate", "terrible", "awful", "bad", "worst", "broken", "frustrating", "annoying",
		"expensive", "slow", "useless", "problem", "issue", "pain", "difficult", "hard", "bug", "scam",
		"disappointed", "fail", "failed", "sucks", "confusing", "overpriced", "waste", "struggle")
	negators = wordSet("not", "no", "never", "don't", "dont", "isn't", "isnt", "doesn't", "doesnt", "can't", "cant", "won't", "wont")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Sentiment returns a lexicon score in [-1,1]: (positive-negative)/(positive+negative),
// with a preceding negator flipping the polarity of the next word.
func Sentiment(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	var pos, neg int
	for i, w := range words {
		flip := i > 0 && negators[words[i-1]]
		switch {
		case positiveWords[w] && !flip, negativeWords[w] && flip:
			pos++
		case negativeWords[w], positiveWords[w]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
