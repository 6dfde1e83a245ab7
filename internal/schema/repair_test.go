package schema

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

var testCritique = &Schema{
	Name: "critique",
	Fields: []Field{
		{Name: "summary", Type: String, Required: true},
		{Name: "verdict", Type: Enum, Required: true, Values: []string{"weak", "moderate", "strong"}},
		{Name: "score", Type: Number, Required: true, Bounded: true, Min: 0, Max: 10},
		{Name: "risks", Type: StringList, Required: true},
		{Name: "issues", Type: ObjectList, Required: true, Schema: &Schema{
			Name: "issue",
			Fields: []Field{
				{Name: "title", Type: String, Required: true},
				{Name: "severity", Type: Enum, Required: true, Values: []string{"low", "medium", "high"}},
			},
		}},
		{Name: "notes", Type: String},
	},
}

func assertComplete(t *testing.T, s *Schema, rec Record) {
	t.Helper()
	for _, f := range s.Fields {
		if _, ok := rec[f.Name]; !ok {
			t.Fatalf("field %s missing from record %v", f.Name, rec)
		}
	}
}

func TestRepairStrictPayload(t *testing.T) {
	raw := `{"summary":"ok","verdict":"strong","score":7,"risks":["a"],"issues":[{"title":"x","severity":"low"}],"notes":"n"}`
	rec, rep, err := Repair(raw, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !rep.Strict {
		t.Fatalf("expected strict parse, report %+v", rep)
	}
	if rep.Violation() != nil {
		t.Fatalf("strict payload should not report a violation")
	}
	if rec["verdict"] != "strong" || rec["score"] != 7.0 {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestRepairProseAndFences(t *testing.T) {
	raw := "Sure! Here is the analysis [1]:\n```json\n{\"summary\": \"fine\", // note\n \"verdict\": \"Moderate\", \"score\": \"8/10\", \"risks\": \"competition\", \"issues\": [],}\n```\nHope it helps."
	rec, rep, err := Repair(raw, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	assertComplete(t, testCritique, rec)
	if rec["verdict"] != "moderate" {
		t.Fatalf("verdict = %v", rec["verdict"])
	}
	if rec["score"] != 8.0 {
		t.Fatalf("score = %v", rec["score"])
	}
	risks, ok := rec["risks"].([]string)
	if !ok || len(risks) != 1 || risks[0] != "competition" {
		t.Fatalf("risks = %#v", rec["risks"])
	}
	if rep.Strict {
		t.Fatalf("expected non-strict repair")
	}
	var sv *faults.SchemaViolation
	if !errors.As(rep.Violation(), &sv) {
		t.Fatalf("expected schema violation, got %v", rep.Violation())
	}
}

func TestRepairUnwrapsSchemaKey(t *testing.T) {
	raw := `{"Critique": {"summary":"s","verdict":"weak","score":2,"risks":[],"issues":[]}}`
	rec, rep, err := Repair(raw, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !rep.Unwrapped {
		t.Fatalf("expected unwrap")
	}
	if rec["summary"] != "s" || rec["verdict"] != "weak" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestRepairUnwrapsListFieldNamedLikeSchema(t *testing.T) {
	variations := &Schema{
		Name: "variations",
		Fields: []Field{
			{Name: "variations", Type: ObjectList, Required: true, Schema: &Schema{
				Name: "variation",
				Fields: []Field{
					{Name: "title", Type: String, Required: true},
					{Name: "description", Type: String, Required: true},
				},
			}},
		},
	}
	raw := `{"variations": {"variations": [{"title":"A","description":"first"},{"title":"B","description":"second"}]}}`
	rec, rep, err := Repair(raw, variations)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	items, _ := rec["variations"].([]Record)
	if !rep.Unwrapped || len(items) != 2 || items[0]["title"] != "A" || items[1]["title"] != "B" {
		t.Fatalf("record %v report %+v", rec, rep)
	}
	if len(rep.Defaulted) != 0 {
		t.Fatalf("nothing should be defaulted: %v", rep.Defaulted)
	}

	suggestions := &Schema{
		Name: "suggestions",
		Fields: []Field{
			{Name: "suggestions", Type: StringList, Required: true},
		},
	}
	rec, rep, err = Repair(`{"Suggestions": {"suggestions": ["keep it small", "go wide"]}}`, suggestions)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	list, _ := rec["suggestions"].([]string)
	if !rep.Unwrapped || len(list) != 2 || list[1] != "go wide" {
		t.Fatalf("record %v report %+v", rec, rep)
	}

	// A single item under the list field is still one item, not a wrapper.
	rec, rep, err = Repair(`{"variations": {"title":"Solo","description":"only one"}}`, variations)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	items, _ = rec["variations"].([]Record)
	if rep.Unwrapped || len(items) != 1 || items[0]["title"] != "Solo" {
		t.Fatalf("record %v report %+v", rec, rep)
	}
}

func TestRepairJoinsListIntoString(t *testing.T) {
	raw := `{"summary":["a","b"],"verdict":"weak","score":3,"risks":[],"issues":[]}`
	rec, rep, err := Repair(raw, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if rec["summary"] != "a, b" {
		t.Fatalf("summary = %v", rec["summary"])
	}
	if !slices.Contains(rep.Coerced, "summary") {
		t.Fatalf("coerced = %v", rep.Coerced)
	}
}

func TestRepairClampsAndDefaults(t *testing.T) {
	raw := `{"summary":"s","score":42,"issues":[{"title":"t","severity":"very high"}, "bare"]}`
	rec, rep, err := Repair(raw, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	assertComplete(t, testCritique, rec)
	if rec["score"] != 10.0 {
		t.Fatalf("score should clamp to 10, got %v", rec["score"])
	}
	if rec["verdict"] != "moderate" {
		t.Fatalf("missing enum should take the neutral variant, got %v", rec["verdict"])
	}
	issues := rec["issues"].([]Record)
	if len(issues) != 2 {
		t.Fatalf("issues = %v", issues)
	}
	if issues[0]["severity"] != "high" {
		t.Fatalf("severity = %v", issues[0]["severity"])
	}
	if issues[1]["title"] != "bare" || issues[1]["severity"] != "medium" {
		t.Fatalf("bare issue = %v", issues[1])
	}
	if len(rep.Defaulted) == 0 {
		t.Fatalf("expected defaulted fields in report")
	}
	for _, d := range rep.Defaulted {
		if d == "notes" {
			t.Fatalf("optional fields must not be reported as defaulted")
		}
	}
}

func TestRepairTopLevelArray(t *testing.T) {
	s := &Schema{Name: "variations", Fields: []Field{
		{Name: "variations", Type: ObjectList, Required: true, Schema: &Schema{Name: "variation", Fields: []Field{
			{Name: "title", Type: String, Required: true},
		}}},
	}}
	rec, _, err := Repair(`[{"title":"a"},{"title":"b"}]`, s)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if got := rec["variations"].([]Record); len(got) != 2 || got[1]["title"] != "b" {
		t.Fatalf("variations = %v", got)
	}
}

func TestRepairTruncatedObject(t *testing.T) {
	rec, _, err := Repair(`{"summary":"cut short","verdict":"weak"`, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if rec["summary"] != "cut short" {
		t.Fatalf("summary = %v", rec["summary"])
	}
}

func TestRepairFailures(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason FailureReason
	}{
		{"empty", "   ", ReasonEmpty},
		{"refusal", "I'm sorry, I cannot help with that.", ReasonRefusal},
		{"prose", "The idea looks promising overall.", ReasonNoStructure},
		{"malformed", `{"summary": "x" "verdict": }`, ReasonMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Repair(tc.raw, testCritique)
			var rf *RepairFailure
			if !errors.As(err, &rf) {
				t.Fatalf("expected RepairFailure, got %v", err)
			}
			if rf.Reason != tc.reason {
				t.Fatalf("reason = %s want %s", rf.Reason, tc.reason)
			}
			if faults.KindOf(err) != faults.KindParse {
				t.Fatalf("kind = %s", faults.KindOf(err))
			}
			if faults.IsFatal(err) {
				t.Fatalf("repair failures must not be fatal")
			}
		})
	}
}

// Every required field is present for any input that yields a record.
func TestRepairCompletenessProperty(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"summary": 12}`,
		`{"risks": {"text": "one"}}`,
		`{"issues": {"title": "single"}}`,
		`{"score": "n/a", "verdict": "unclear"}`,
		`prefix {"summary": "x", "issues": "[{\"title\":\"y\"}]"} suffix`,
		`[{"summary": "only element"}]`,
	}
	for _, in := range inputs {
		rec, _, err := Repair(in, testCritique)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		assertComplete(t, testCritique, rec)
		if s, ok := rec["summary"].(string); !ok || strings.TrimSpace(s) == "" {
			t.Fatalf("%s: summary = %#v", in, rec["summary"])
		}
	}
}

func TestPlaceholderNeutral(t *testing.T) {
	rec := Placeholder(testCritique)
	if rec["summary"] != PlaceholderText || rec["score"] != 5.0 || rec["verdict"] != "moderate" {
		t.Fatalf("placeholder = %v", rec)
	}
	if l := rec["issues"].([]Record); len(l) != 0 {
		t.Fatalf("placeholder list should be empty")
	}
}

func TestMatchEnum(t *testing.T) {
	values := []string{"complete", "needs_clarification"}
	cases := []struct {
		in    string
		want  string
		exact bool
		ok    bool
	}{
		{"COMPLETE", "complete", true, true},
		{"needs clarification", "needs_clarification", true, true},
		{"The idea is not complete, it needs clarification", "needs_clarification", false, true},
		{"Status: complete.", "complete", false, true},
		{"incomplete", "", false, false},
		{"unknown", "", false, false},
	}
	for _, tc := range cases {
		got, exact, ok := MatchEnum(values, tc.in)
		if got != tc.want || exact != tc.exact || ok != tc.ok {
			t.Fatalf("MatchEnum(%q) = %q,%v,%v want %q,%v,%v", tc.in, got, exact, ok, tc.want, tc.exact, tc.ok)
		}
	}
}

func TestWordIndex(t *testing.T) {
	cases := []struct {
		text, word string
		want       int
	}{
		{"highway then high", "high", 13},
		{"high", "high", 0},
		{"thigh", "high", -1},
		{"risk: medium-high.", "high", 13},
		{"needs_clarification", "needs", -1},
	}
	for _, tc := range cases {
		if got := wordIndex(tc.text, tc.word); got != tc.want {
			t.Fatalf("wordIndex(%q, %q) = %d want %d", tc.text, tc.word, got, tc.want)
		}
	}
	if got, _, ok := MatchEnum([]string{"low", "medium", "high"}, "Severity is HIGH overall"); !ok || got != "high" {
		t.Fatalf("MatchEnum = %q %v", got, ok)
	}
}

func TestDecode(t *testing.T) {
	type issue struct {
		Title    string `json:"title"`
		Severity string `json:"severity"`
	}
	type critique struct {
		Summary string   `json:"summary"`
		Score   float64  `json:"score"`
		Risks   []string `json:"risks"`
		Issues  []issue  `json:"issues"`
	}
	rec, _, err := Repair(`{"summary":"s","score":3,"risks":["r"],"issues":[{"title":"t","severity":"low"}]}`, testCritique)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	var out critique
	if err := Decode(rec, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Summary != "s" || out.Score != 3 || len(out.Issues) != 1 || out.Issues[0].Title != "t" {
		t.Fatalf("decoded %+v", out)
	}
}
