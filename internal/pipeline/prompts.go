package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/ideascope/internal/aggregate"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
)

const jsonOnly = "Respond with a single JSON object and nothing else."

const (
	clarifierSystem = "You are a product strategist interviewing a founder. Decide whether the idea is specific enough to analyse; " +
		"if not, ask exactly one focused question about the least understood area. " + jsonOnly
	suggesterSystem    = "You propose candidate answers a founder might give, from conservative to ambitious. " + jsonOnly
	brainstormerSystem = "You generate distinct variations of a product idea that target different segments or angles. " + jsonOnly
	criticSystem       = "You are a skeptical investor reviewing a product idea. Be specific and concrete. " + jsonOnly
	questionerSystem   = "You design validation questions that a founder must answer before building. " + jsonOnly
	validatorSystem    = "You score a product idea on a 1-10 scale per dimension and propose a phased roadmap. " + jsonOnly
	analystSystem      = "You analyse forum posts for demand signals about a product idea. Count only what the posts show. " + jsonOnly
	realitySystem      = "You judge whether real forum evidence supports a product idea. " + jsonOnly
	synthesizerSystem  = "You write the final analysis report in Markdown. Use headings, be concise, and cite the evidence you were given."
)

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func writeIdea(b *strings.Builder, idea *ClarifiedIdea) {
	if idea == nil {
		b.WriteString("Clarified idea: (none yet)\n")
		return
	}
	b.WriteString("Clarified idea:\n")
	b.WriteString(renderJSON(idea))
	b.WriteString("\n")
}

func writeTranscript(b *strings.Builder, entries []QAEntry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("Answered questions:\n")
	for _, e := range entries {
		fmt.Fprintf(b, "%d. [%s] Q: %s\n   A: %s\n", e.Sequence, e.Category, e.Question, e.Answer)
	}
}

func clarifierPrompt(s Snapshot, transcript []QAEntry, final bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal:\n%s\n\n", s.Proposal)
	writeIdea(&b, s.ClarifiedIdea)
	writeTranscript(&b, transcript)
	covered := coveredCategories(transcript)
	if len(covered) > 0 {
		fmt.Fprintf(&b, "Categories already covered: %s\n", strings.Join(covered, ", "))
	}
	if final {
		b.WriteString("\nNo more questions will be asked. Produce the best clarified_idea from what is known and set status to complete.\n")
	} else {
		b.WriteString("\nReturn status, the refined clarified_idea (keywords: up to 5 short search phrases; scopes: up to 5 forum communities), " +
			"and next_question when status is needs_clarification. Do not repeat a covered category unless essential.\n")
	}
	return b.String()
}

func suggesterPrompt(s Snapshot, q ClarificationQuestion, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal:\n%s\n\n", s.Proposal)
	writeIdea(&b, s.ClarifiedIdea)
	fmt.Fprintf(&b, "\nQuestion (%s): %s\nWhy it matters: %s\n", q.Category, q.Question, q.Rationale)
	fmt.Fprintf(&b, "Propose %d short candidate answers with tiers conservative, balanced and ambitious.\n", n)
	return b.String()
}

func brainstormPrompt(s Snapshot) string {
	var b strings.Builder
	writeIdea(&b, s.ClarifiedIdea)
	b.WriteString("\nPropose 3 to 5 variations.\n")
	return b.String()
}

func critiquePrompt(s Snapshot) string {
	var b strings.Builder
	writeIdea(&b, s.ClarifiedIdea)
	if len(s.Variations) > 0 {
		b.WriteString("Variations considered:\n")
		for _, v := range s.Variations {
			fmt.Fprintf(&b, "- %s: %s\n", v.Title, v.Description)
		}
	}
	b.WriteString("\nGive a verdict of weak, moderate or strong and a score from 0 to 10.\n")
	return b.String()
}

func questionsPrompt(s Snapshot) string {
	var b strings.Builder
	writeIdea(&b, s.ClarifiedIdea)
	if s.Critique != nil {
		fmt.Fprintf(&b, "Critique summary: %s\nRisks: %s\n", s.Critique.Summary, strings.Join(s.Critique.Risks, "; "))
	}
	b.WriteString("\nAsk 3 to 5 questions.\n")
	return b.String()
}

func validationPrompt(s Snapshot) string {
	var b strings.Builder
	writeIdea(&b, s.ClarifiedIdea)
	if s.Critique != nil {
		b.WriteString("Critique:\n")
		b.WriteString(renderJSON(s.Critique))
		b.WriteString("\n")
	}
	if len(s.ValidationAnswers) > 0 {
		b.WriteString("Validation answers:\n")
		for _, a := range s.ValidationAnswers {
			fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", a.Question, a.Answer)
		}
	}
	b.WriteString("\nRecommend pivot, refine or proceed and give a roadmap of 3 to 5 phases.\n")
	return b.String()
}

func batchPrompt(idea *ClarifiedIdea, batch aggregate.Batch) string {
	var b strings.Builder
	writeIdea(&b, idea)
	fmt.Fprintf(&b, "\nForum posts (batch %d, %d posts):\n", batch.Index+1, len(batch.Documents))
	for i, d := range batch.Documents {
		fmt.Fprintf(&b, "%d. [%s] %s (score %d, %d comments, relevance %.2f)\n", i+1, d.Scope, d.Title, d.Score, d.Comments, d.Relevance)
		if d.Excerpt != "" {
			fmt.Fprintf(&b, "   %s\n", d.Excerpt)
		}
	}
	return b.String()
}

func realityPrompt(idea *ClarifiedIdea, m aggregate.Metrics, sample []forum.Document) string {
	var b strings.Builder
	writeIdea(&b, idea)
	b.WriteString("\nAggregated forum findings:\n")
	b.WriteString(renderJSON(m))
	b.WriteString("\nTop posts:\n")
	for _, d := range sample {
		fmt.Fprintf(&b, "- %s (score %d, %d comments)\n", d.Title, d.Score, d.Comments)
	}
	return b.String()
}

func synthesisPrompt(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original proposal:\n%s\n\n", s.Proposal)
	writeIdea(&b, s.ClarifiedIdea)
	if len(s.Variations) > 0 {
		b.WriteString("Variations:\n" + renderJSON(s.Variations) + "\n")
	}
	if s.Critique != nil {
		b.WriteString("Critique:\n" + renderJSON(s.Critique) + "\n")
	}
	if s.Validation != nil {
		b.WriteString("Validation:\n" + renderJSON(s.Validation) + "\n")
	}
	if s.Research != nil {
		r := *s.Research
		r.Sample = nil
		b.WriteString("Market research:\n" + renderJSON(r) + "\n")
	}
	b.WriteString("\nWrite the report with sections: Summary, Idea, Critique, Validation, Market Evidence, Roadmap, Recommendation.\n")
	return b.String()
}

func suggestionsOf(rec []interact.Suggestion, n int) []interact.Suggestion {
	var out []interact.Suggestion
	for _, s := range rec {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, s)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
