package schema

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	smartQuoteReplacer   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// refusalMarkers are phrases that identify a provider refusal when no
// structured value is present.
var refusalMarkers = []string{
	"i'm sorry", "i am sorry", "i cannot", "i can't", "i can not",
	"unable to comply", "unable to help", "as an ai",
}

// extract locates candidate structured values in raw, most likely first.
// Prose around the value is tolerated: the object candidate spans the first
// '{' to the last '}'. A fenced code block takes precedence. A bare top-level
// array is offered before the object when it opens first.
func extract(raw string) []string {
	text := raw
	if m := fencedBlockPattern.FindStringSubmatch(raw); len(m) > 1 && strings.ContainsAny(m[1], "{[") {
		text = m[1]
	}
	var out []string
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			out = append(out, text[arrStart:end+1])
		}
	}
	if objStart < 0 {
		return out
	}
	end := strings.LastIndex(text, "}")
	if end < objStart {
		// Truncated output: close what we have and let the lenient parser try.
		return append(out, text[objStart:]+"}")
	}
	return append(out, text[objStart:end+1])
}

// parseLenient decodes candidate, retrying once after stripping the artifacts
// generated text commonly contains.
func parseLenient(candidate string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(candidate), &v)
	if err == nil {
		return v, nil
	}
	cleaned := cleanJSON(candidate)
	if cleaned == candidate {
		return nil, err
	}
	if err2 := json.Unmarshal([]byte(cleaned), &v); err2 != nil {
		return nil, err
	}
	return v, nil
}

func cleanJSON(raw string) string {
	raw = smartQuoteReplacer.Replace(raw)
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	out := strings.Join(lines, "\n")
	return trailingCommaPattern.ReplaceAllString(out, "$1")
}

// stripLineComment removes a trailing // comment outside of string literals.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

func looksLikeRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
