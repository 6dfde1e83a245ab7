package schema

import (
	"strconv"
	"strings"
)

// negationPrefixes guard against matching "feasible" inside "not feasible"
// or "infeasible".
var negationPrefixes = []string{"not ", "non ", "non", "un", "in"}

// MatchEnum maps free text onto one of the canonical values. exact reports an
// equal match after case folding. Otherwise a whole-word occurrence is
// preferred over a substring one, and the longest variant wins so that
// "needs_clarification" beats "needs".
func MatchEnum(values []string, text string) (canonical string, exact bool, ok bool) {
	norm := normEnum(text)
	if norm == "" {
		return "", false, false
	}
	for _, v := range values {
		if normEnum(v) == norm {
			return v, true, true
		}
	}
	if best, found := longestMatch(values, norm, true); found {
		return best, false, true
	}
	if best, found := longestMatch(values, norm, false); found {
		return best, false, true
	}
	return "", false, false
}

func longestMatch(values []string, text string, wordBoundary bool) (string, bool) {
	best := ""
	for _, v := range values {
		nv := normEnum(v)
		if nv == "" || len(nv) <= len(normEnum(best)) {
			continue
		}
		idx := -1
		if wordBoundary {
			idx = wordIndex(text, nv)
		} else {
			idx = strings.Index(text, nv)
		}
		if idx < 0 || negated(text, idx, nv, values) {
			continue
		}
		best = v
	}
	return best, best != ""
}

// wordIndex returns the first occurrence of word in text that sits on ASCII
// word boundaries at both ends, or -1.
func wordIndex(text, word string) int {
	for from := 0; from+len(word) <= len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(word)
		before := i == 0 || isWordByte(text[i-1]) != isWordByte(word[0])
		after := end == len(text) || isWordByte(text[end]) != isWordByte(word[len(word)-1])
		if before && after {
			return i
		}
		from = i + 1
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// negated reports whether the occurrence at idx is preceded by a negation and
// a negated variant is not itself one of the values.
func negated(text string, idx int, variant string, values []string) bool {
	prefix := text[:idx]
	for _, neg := range negationPrefixes {
		if !strings.HasSuffix(prefix, neg) {
			continue
		}
		negatedForm := neg + variant
		for _, v := range values {
			if normEnum(v) == negatedForm {
				return false
			}
		}
		return true
	}
	return false
}

func normEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
