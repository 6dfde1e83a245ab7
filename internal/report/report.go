// Package report turns a finished run into its persisted result bundle and
// the Markdown document derived from it.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
)

// Bundle is the structured result of one run: every phase artifact plus run
// metadata.
type Bundle struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Proposal   string    `json:"proposal"`

	ClarifiedIdea       *pipeline.ClarifiedIdea       `json:"clarified_idea,omitempty"`
	Transcript          []pipeline.QAEntry            `json:"transcript"`
	Clarification       pipeline.ClarificationStatus  `json:"clarification"`
	Variations          []pipeline.Variation          `json:"variations"`
	Critique            *pipeline.Critique            `json:"critique,omitempty"`
	ValidationQuestions []pipeline.ValidationQuestion `json:"validation_questions"`
	ValidationAnswers   []pipeline.QAEntry            `json:"validation_answers"`
	Validation          *pipeline.Validation          `json:"validation,omitempty"`
	Research            *pipeline.Research            `json:"research,omitempty"`
	Report              string                        `json:"report"`
	Warnings            []faults.Warning              `json:"warnings"`

	Steps   int              `json:"steps"`
	Visited []pipeline.Phase `json:"visited"`
}

// NewBundle copies the artifacts of res.
func NewBundle(res pipeline.Result) Bundle {
	s := res.State
	return Bundle{
		RunID:               res.RunID,
		StartedAt:           res.StartedAt,
		FinishedAt:          res.FinishedAt,
		Success:             res.Success,
		Proposal:            s.Proposal,
		ClarifiedIdea:       s.ClarifiedIdea,
		Transcript:          s.Transcript,
		Clarification:       s.Clarification,
		Variations:          s.Variations,
		Critique:            s.Critique,
		ValidationQuestions: s.ValidationQuestions,
		ValidationAnswers:   s.ValidationAnswers,
		Validation:          s.Validation,
		Research:            s.Research,
		Report:              s.Report,
		Warnings:            res.Errors,
		Steps:               s.Steps,
		Visited:             s.Visited,
	}
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
	"pct":  func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"f1":   func(f float64) string { return fmt.Sprintf("%.1f", f) },
	"trim": strings.TrimSpace,
}

var markdown = template.Must(template.New("report").Funcs(funcs).Parse(`{{trim .Report}}

---

## Appendix

Run ` + "`{{.RunID}}`" + ` started {{date .StartedAt}}, finished {{date .FinishedAt}} after {{.Steps}} step(s).

### Proposal

{{trim .Proposal}}
{{with .ClarifiedIdea}}
### Clarified idea

- **Title:** {{.Title}}
- **Problem:** {{.Problem}}
- **Target users:** {{.TargetUsers}}
- **Solution:** {{.Solution}}
- **Value proposition:** {{.ValueProposition}}
- **Business model:** {{.BusinessModel}}
{{- if .Keywords}}
- **Keywords:** {{join .Keywords ", "}}{{end}}
{{- if .Assumptions}}
- **Assumptions:** {{join .Assumptions "; "}}{{end}}
{{end}}
{{- if .Transcript}}
### Clarification ({{.Clarification.Rounds}} round(s), ended by {{.Clarification.Reason}})
{{range .Transcript}}
{{.Sequence}}. **{{.Question}}** _({{.Category}})_
   {{.Answer}}{{end}}
{{end}}
{{- with .Critique}}
### Critique

Verdict **{{.Verdict}}**, score {{f1 .Score}}/10. {{.Summary}}
{{range .Risks}}
- Risk: {{.}}{{end}}
{{end}}
{{- with .Validation}}
### Validation

| Dimension | Score |
|---|---|
| Problem | {{.Scores.Problem}} |
| Market | {{.Scores.Market}} |
| Solution | {{.Scores.Solution}} |
| Feasibility | {{.Scores.Feasibility}} |
| Monetization | {{.Scores.Monetization}} |

Overall {{f1 .Overall}}/10, recommendation **{{.Recommendation}}**.
{{range .Roadmap}}
- **{{.Phase}}** ({{.Duration}}): {{.Goal}}{{end}}
{{end}}
{{- with .Research}}
### Market evidence

Status {{.Status}}, {{.Documents}} document(s){{if .Chunked}}, analysed in batches{{end}}. Verdict **{{.Verdict}}**.
{{with .Metrics}}
Demand rate {{pct .DemandRate}}, {{.Mentions}} mention(s) across {{.Analyzed}} analysed post(s), {{.BatchesSucceeded}}/{{.BatchesAttempted}} batch(es) succeeded.
{{- if .Complaints}}
Complaints: {{join .Complaints "; "}}{{end}}
{{end}}
{{.RealityCheck}}
{{end}}
{{- if .Warnings}}
### Warnings
{{range .Warnings}}
- {{.Kind}} in {{.Phase}}/{{.Source}}: {{.Message}}{{end}}
{{end}}`))

// Render produces the Markdown report: the synthesized report followed by an
// appendix of the underlying artifacts.
func Render(b Bundle) (string, error) {
	if strings.TrimSpace(b.Report) == "" {
		return "", fmt.Errorf("run %s has no report", b.RunID)
	}
	var buf bytes.Buffer
	if err := markdown.Execute(&buf, b); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
