package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

// FailureReason says why no record could be produced.
type FailureReason string

const (
	ReasonEmpty       FailureReason = "empty"
	ReasonRefusal     FailureReason = "refusal"
	ReasonNoStructure FailureReason = "no_structure"
	ReasonMalformed   FailureReason = "malformed"
	ReasonIncomplete  FailureReason = "incomplete"
)

// RepairFailure is returned when raw text cannot be turned into a record.
// Callers substitute Placeholder(schema) and record a warning.
type RepairFailure struct {
	Schema string
	Reason FailureReason
	Fields []string
	Cause  error
}

func (e *RepairFailure) Error() string {
	msg := fmt.Sprintf("repair %s: %s", e.Schema, e.Reason)
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ",") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RepairFailure) Unwrap() error { return e.Cause }

// Kind classifies the failure in the shared taxonomy.
func (e *RepairFailure) Kind() faults.Kind {
	if e.Reason == ReasonIncomplete {
		return faults.KindSchemaViolation
	}
	return faults.KindParse
}

// Report describes what the repairer had to do.
type Report struct {
	Schema    string   `json:"schema"`
	Strict    bool     `json:"strict"`
	Unwrapped bool     `json:"unwrapped"`
	Coerced   []string `json:"coerced,omitempty"`
	Defaulted []string `json:"defaulted,omitempty"`
}

// Violation returns a SchemaViolation when the record needed repair, nil otherwise.
func (r Report) Violation() error {
	if r.Strict {
		return nil
	}
	if len(r.Coerced) == 0 && len(r.Defaulted) == 0 && !r.Unwrapped {
		return nil
	}
	return &faults.SchemaViolation{Schema: r.Schema, Coerced: r.Coerced, Defaulted: r.Defaulted}
}

// Repair parses raw generated text into a record for s. It never panics; on
// success every field of s is populated.
//
// Steps, each attempted only if needed: strict parse of the single structured
// value, unwrap of a wrapper keyed by the schema name, then field-level
// coercion and defaulting.
func Repair(raw string, s *Schema) (Record, Report, error) {
	rep := Report{Schema: s.Name}
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, rep, &RepairFailure{Schema: s.Name, Reason: ReasonEmpty}
	}
	candidates := extract(text)
	if len(candidates) == 0 {
		reason := ReasonNoStructure
		if looksLikeRefusal(text) {
			reason = ReasonRefusal
		}
		return nil, rep, &RepairFailure{Schema: s.Name, Reason: reason, Cause: &faults.ParseError{Input: truncate(text, 200)}}
	}

	var (
		value    any
		parseErr error
	)
	for _, c := range candidates {
		v, err := parseLenient(c)
		if err != nil {
			parseErr = err
			continue
		}
		if _, isList := v.([]any); isList && len(candidates) > 1 && !hasSingleList(s) {
			continue
		}
		value, parseErr = v, nil
		break
	}
	if parseErr != nil || value == nil {
		return nil, rep, &RepairFailure{Schema: s.Name, Reason: ReasonMalformed, Cause: &faults.ParseError{Input: truncate(text, 200), Err: parseErr}}
	}

	obj, ok := asObject(value, s, &rep)
	if !ok {
		return nil, rep, &RepairFailure{Schema: s.Name, Reason: ReasonNoStructure, Cause: &faults.ParseError{Input: truncate(text, 200)}}
	}
	if unwrapped, did := unwrap(obj, s); did {
		obj = unwrapped
		rep.Unwrapped = true
	}
	if err := s.Validate(map[string]any(obj)); err == nil && !rep.Unwrapped && len(rep.Coerced) == 0 {
		rep.Strict = true
	}

	rec := coerceObject(s, obj, "", &rep)
	if missing := missingRequired(s, rec); len(missing) > 0 {
		return nil, rep, &RepairFailure{Schema: s.Name, Reason: ReasonIncomplete, Fields: missing}
	}
	return rec, rep, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func hasSingleList(s *Schema) bool {
	_, ok := singleListField(s)
	return ok
}

func singleListField(s *Schema) (Field, bool) {
	var found Field
	count := 0
	for _, f := range s.Fields {
		if f.Type == ObjectList || f.Type == StringList {
			found = f
			count++
		}
	}
	return found, count == 1
}

// asObject turns the parsed value into a map. A top-level array is accepted
// when the schema has exactly one list field.
func asObject(v any, s *Schema, rep *Report) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		f, ok := singleListField(s)
		if !ok {
			if len(t) == 1 {
				if m, ok := t[0].(map[string]any); ok {
					rep.Coerced = append(rep.Coerced, "$")
					return m, true
				}
			}
			return nil, false
		}
		rep.Coerced = append(rep.Coerced, f.Name)
		return map[string]any{f.Name: t}, true
	}
	return nil, false
}

// unwrap descends one level when the value sits under a key matching the
// schema's logical name and the inner object fits the schema better than the
// wrapper's other keys do. The wrapper key itself is not counted, since a
// schema may name one of its own fields after itself.
func unwrap(obj map[string]any, s *Schema) (map[string]any, bool) {
	want := normKey(s.Name)
	for k, v := range obj {
		if normKey(k) != want {
			continue
		}
		inner, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if matchedFields(s, inner, "") > matchedFields(s, obj, k) {
			return inner, true
		}
	}
	return nil, false
}

// matchedFields counts schema fields present in obj, ignoring key skip.
func matchedFields(s *Schema, obj map[string]any, skip string) int {
	if skip != "" {
		rest := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != skip {
				rest[k] = v
			}
		}
		obj = rest
	}
	n := 0
	for _, f := range s.Fields {
		if _, ok := lookup(obj, f); ok {
			n++
		}
	}
	return n
}

func normKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func lookup(obj map[string]any, f Field) (any, bool) {
	if v, ok := obj[f.Name]; ok {
		return v, true
	}
	names := append([]string{f.Name}, f.Aliases...)
	for _, n := range names {
		want := normKey(n)
		for k, v := range obj {
			if normKey(k) == want {
				return v, true
			}
		}
	}
	return nil, false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func coerceObject(s *Schema, obj map[string]any, prefix string, rep *Report) Record {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		path := joinPath(prefix, f.Name)
		raw, ok := lookup(obj, f)
		if !ok || raw == nil {
			rec[f.Name] = defaultFor(f)
			if f.Required {
				rep.Defaulted = append(rep.Defaulted, path)
			}
			continue
		}
		v, changed, ok := coerceValue(f, raw, path, rep)
		if !ok {
			rec[f.Name] = defaultFor(f)
			if f.Required {
				rep.Defaulted = append(rep.Defaulted, path)
			}
			continue
		}
		if changed {
			rep.Coerced = append(rep.Coerced, path)
		}
		rec[f.Name] = v
	}
	return rec
}

// coerceValue converts v to f's type. changed reports a shape or value change;
// ok=false means nothing usable was found and the default applies.
func coerceValue(f Field, v any, path string, rep *Report) (out any, changed bool, ok bool) {
	switch f.Type {
	case String:
		return coerceString(v)
	case Number:
		n, changed, ok := coerceNumber(v)
		if !ok {
			return nil, false, false
		}
		if f.Bounded {
			c := math.Max(f.Min, math.Min(f.Max, n))
			changed = changed || c != n
			n = c
		}
		return n, changed, true
	case Integer:
		n, changed, ok := coerceNumber(v)
		if !ok {
			return nil, false, false
		}
		if f.Bounded {
			n = math.Max(f.Min, math.Min(f.Max, n))
		}
		r := math.Round(n)
		return int(r), changed || r != n, true
	case Bool:
		return coerceBool(v)
	case Enum:
		s, _, ok := coerceString(v)
		if !ok {
			return nil, false, false
		}
		canon, exact, found := MatchEnum(f.Values, s)
		if !found {
			return nil, false, false
		}
		return canon, !exact, true
	case StringList:
		return coerceStringList(v)
	case Object:
		if f.Schema == nil {
			m, ok := v.(map[string]any)
			return Record(m), false, ok
		}
		m, changed, ok := asMap(v)
		if !ok {
			return nil, false, false
		}
		return coerceObject(f.Schema, m, path, rep), changed, true
	case ObjectList:
		return coerceObjectList(f, v, path, rep)
	}
	return nil, false, false
}

func coerceString(v any) (string, bool, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false, false
		}
		return s, s != t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, true
	case bool:
		return strconv.FormatBool(t), true, true
	case []any:
		var parts []string
		for _, item := range t {
			if s, _, ok := coerceString(item); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false, false
		}
		return strings.Join(parts, ", "), true, true
	case map[string]any:
		for _, key := range []string{"text", "value", "content", "description", "name"} {
			if inner, ok := t[key]; ok {
				s, _, ok := coerceString(inner)
				return s, true, ok
			}
		}
		b, err := json.Marshal(t)
		if err != nil {
			return "", false, false
		}
		return string(b), true, true
	}
	return "", false, false
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func coerceNumber(v any) (float64, bool, bool) {
	switch t := v.(type) {
	case float64:
		return t, false, true
	case int:
		return float64(t), false, true
	case bool:
		if t {
			return 1, true, true
		}
		return 0, true, true
	case string:
		m := numberPattern.FindString(strings.ReplaceAll(t, ",", ""))
		if m == "" {
			return 0, false, false
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false, false
		}
		return n, true, true
	case []any:
		if len(t) == 0 {
			return 0, false, false
		}
		n, _, ok := coerceNumber(t[0])
		return n, true, ok
	}
	return 0, false, false
}

func coerceBool(v any) (bool, bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, false, true
	case float64:
		return t != 0, true, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true, true
		case "false", "no", "n", "0":
			return false, true, true
		}
	}
	return false, false, false
}

func coerceStringList(v any) ([]string, bool, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		changed := false
		for _, item := range t {
			s, c, ok := coerceString(item)
			if !ok {
				changed = true
				continue
			}
			changed = changed || c
			out = append(out, s)
		}
		return out, changed, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return []string{}, true, true
		}
		return []string{s}, true, true
	default:
		s, _, ok := coerceString(t)
		if !ok {
			return nil, false, false
		}
		return []string{s}, true, true
	}
}

func asMap(v any) (map[string]any, bool, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, false, true
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m, true, true
			}
		}
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err == nil {
			return m, true, true
		}
	}
	return nil, false, false
}

func coerceObjectList(f Field, v any, path string, rep *Report) ([]Record, bool, bool) {
	var items []any
	changed := false
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
		changed = true
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			items = arr
			changed = true
		} else if f.Schema != nil && len(f.Schema.Fields) > 0 {
			items = []any{map[string]any{f.Schema.Fields[0].Name: t}}
			changed = true
		}
	default:
		return nil, false, false
	}
	out := make([]Record, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]any)
		if !ok {
			// A bare string item becomes the first field of the item schema.
			s, isStr := item.(string)
			if !isStr || f.Schema == nil || len(f.Schema.Fields) == 0 {
				changed = true
				continue
			}
			m = map[string]any{f.Schema.Fields[0].Name: s}
			changed = true
		}
		if f.Schema == nil {
			out = append(out, Record(m))
			continue
		}
		out = append(out, coerceObject(f.Schema, m, itemPath, rep))
	}
	return out, changed, true
}

func missingRequired(s *Schema, rec Record) []string {
	var missing []string
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := rec[f.Name]; !ok || v == nil {
			missing = append(missing, f.Name)
		}
	}
	return missing
}
