package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/llm"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

// Clarifier judges whether the idea is clear enough and proposes the next
// question. It is driven by the ClarificationLoop rather than the
// orchestrator directly.
type Clarifier struct{ base }

func NewClarifier(gen Generator, logger *log.Logger) *Clarifier {
	return &Clarifier{newBase("clarifier", PhaseClarifying, gen, logger)}
}

type clarifierVerdict struct {
	Status string                `json:"status"`
	Idea   ClarifiedIdea         `json:"clarified_idea"`
	Next   ClarificationQuestion `json:"next_question"`
}

// evaluate returns the clarifier's verdict over transcript. When the output
// cannot be used the previous idea is kept and the verdict stays
// needs_clarification.
func (c *Clarifier) evaluate(ctx context.Context, s Snapshot, transcript []QAEntry, final bool) (clarifierVerdict, []faults.Warning, error) {
	var v clarifierVerdict
	warnings, err := c.structured(ctx, llm.TaskClarify, clarifierSystem, clarifierPrompt(s, transcript, final), clarifierSchema, &v)
	if err != nil {
		return v, warnings, err
	}
	prev := s.ClarifiedIdea
	if prev == nil {
		prev = placeholderIdea(s.Proposal)
	}
	if usedPlaceholder(warnings) {
		v.Idea = *prev
		v.Status = "needs_clarification"
	} else {
		v.Idea = mergeIdea(*prev, v.Idea)
	}
	v.Idea.Complete = false
	return v, warnings, nil
}

func placeholderIdea(proposal string) *ClarifiedIdea {
	title := strings.TrimSpace(strings.SplitN(strings.TrimSpace(proposal), "\n", 2)[0])
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	if title == "" {
		title = schema.PlaceholderText
	}
	return &ClarifiedIdea{
		Title:            title,
		Problem:          strings.TrimSpace(proposal),
		TargetUsers:      schema.PlaceholderText,
		Solution:         schema.PlaceholderText,
		ValueProposition: schema.PlaceholderText,
		BusinessModel:    schema.PlaceholderText,
		Keywords:         []string{},
		Scopes:           []string{},
		Assumptions:      []string{},
	}
}

// mergeIdea keeps earlier values where next only carries placeholders.
func mergeIdea(prev, next ClarifiedIdea) ClarifiedIdea {
	pick := func(p, n string) string {
		if n = strings.TrimSpace(n); n == "" || n == schema.PlaceholderText {
			return p
		}
		return n
	}
	list := func(p, n []string) []string {
		if len(n) == 0 {
			return p
		}
		return n
	}
	return ClarifiedIdea{
		Title:            pick(prev.Title, next.Title),
		Problem:          pick(prev.Problem, next.Problem),
		TargetUsers:      pick(prev.TargetUsers, next.TargetUsers),
		Solution:         pick(prev.Solution, next.Solution),
		ValueProposition: pick(prev.ValueProposition, next.ValueProposition),
		BusinessModel:    pick(prev.BusinessModel, next.BusinessModel),
		Keywords:         list(prev.Keywords, next.Keywords),
		Scopes:           list(prev.Scopes, next.Scopes),
		Assumptions:      list(prev.Assumptions, next.Assumptions),
	}
}

// Suggester generates candidate answers for a pending question. It is a
// side channel and never writes to the state itself.
type Suggester struct {
	base
	count int
}

func NewSuggester(gen Generator, count int, logger *log.Logger) *Suggester {
	return &Suggester{base: newBase("suggester", PhaseClarifying, gen, logger), count: count}
}

// Suggest returns up to count suggestions. Failures yield none plus a warning.
func (s *Suggester) Suggest(ctx context.Context, snap Snapshot, q ClarificationQuestion) ([]interact.Suggestion, []faults.Warning, error) {
	if s == nil || s.count <= 0 {
		return nil, nil, nil
	}
	var out struct {
		Suggestions []interact.Suggestion `json:"suggestions"`
	}
	warnings, err := s.structured(ctx, llm.TaskSuggestion, suggesterSystem, suggesterPrompt(snap, q, s.count), suggestionSchema, &out)
	if err != nil {
		return nil, warnings, err
	}
	return suggestionsOf(out.Suggestions, s.count), warnings, nil
}

// Brainstormer proposes variations of the clarified idea.
type Brainstormer struct{ base }

func NewBrainstormer(gen Generator, logger *log.Logger) *Brainstormer {
	return &Brainstormer{newBase("brainstormer", PhaseBrainstorming, gen, logger)}
}

func (b *Brainstormer) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := b.requireIdea(s); err != nil {
		return Delta{}, err
	}
	var out struct {
		Variations []Variation `json:"variations"`
	}
	warnings, err := b.structured(ctx, llm.TaskAnalysis, brainstormerSystem, brainstormPrompt(s), variationsSchema, &out)
	if err != nil {
		return Delta{}, err
	}
	if len(out.Variations) == 0 {
		idea := s.ClarifiedIdea
		out.Variations = []Variation{{Title: idea.Title, Description: idea.Solution, TargetSegment: idea.TargetUsers, Differentiator: idea.ValueProposition}}
	}
	return Delta{Phase: b.phase, Variations: out.Variations, Warnings: warnings}, nil
}

// Critic reviews the idea and its variations.
type Critic struct{ base }

func NewCritic(gen Generator, logger *log.Logger) *Critic {
	return &Critic{newBase("critic", PhaseCritiquing, gen, logger)}
}

func (c *Critic) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := c.requireIdea(s); err != nil {
		return Delta{}, err
	}
	var out Critique
	warnings, err := c.structured(ctx, llm.TaskAnalysis, criticSystem, critiquePrompt(s), critiqueSchema, &out)
	if err != nil {
		return Delta{}, err
	}
	return Delta{Phase: c.phase, Critique: &out, Warnings: warnings}, nil
}

var defaultValidationQuestions = []ValidationQuestion{
	{Question: "Who has this problem most acutely, and how do they solve it today?", Purpose: "confirms the problem exists", Category: "problem"},
	{Question: "What would a first paying customer pay, and why?", Purpose: "tests willingness to pay", Category: "monetization"},
	{Question: "What is the smallest version you could ship in four weeks?", Purpose: "tests feasibility", Category: "feasibility"},
}

// Questioner produces validation questions and collects their answers.
// Answers supplied by a resumed run are reused without asking again.
type Questioner struct {
	base
	answers   interact.AnswerSource
	suggester *Suggester
}

func NewQuestioner(gen Generator, answers interact.AnswerSource, suggester *Suggester, logger *log.Logger) *Questioner {
	return &Questioner{base: newBase("questioner", PhaseQuestioning, gen, logger), answers: answers, suggester: suggester}
}

func (q *Questioner) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := q.requireIdea(s); err != nil {
		return Delta{}, err
	}
	var out struct {
		Questions []ValidationQuestion `json:"questions"`
	}
	warnings, err := q.structured(ctx, llm.TaskAnalysis, questionerSystem, questionsPrompt(s), questionsSchema, &out)
	if err != nil {
		return Delta{}, err
	}
	questions := out.Questions
	if len(questions) == 0 {
		questions = append([]ValidationQuestion(nil), defaultValidationQuestions...)
	}
	d := Delta{Phase: q.phase, ValidationQuestions: questions, Warnings: warnings}
	if len(s.ValidationAnswers) > 0 || q.answers == nil {
		return d, nil
	}

	answers := make([]QAEntry, 0, len(questions))
	for i, vq := range questions {
		prompt := interact.Prompt{Question: vq.Question, Rationale: vq.Purpose, Category: vq.Category, Sequence: i + 1}
		if q.answers.WantsSuggestions() {
			sugg, ws, err := q.suggester.Suggest(ctx, s, ClarificationQuestion{Question: vq.Question, Rationale: vq.Purpose, Category: vq.Category})
			d.Warnings = append(d.Warnings, ws...)
			if err != nil {
				d.ValidationAnswers = answers
				return d, err
			}
			prompt.Suggestions = sugg
		}
		ans, err := q.answers.Answer(ctx, prompt)
		if err != nil {
			d.ValidationAnswers = answers
			return d, err
		}
		answers = append(answers, QAEntry{
			Sequence:  i + 1,
			Question:  vq.Question,
			Rationale: vq.Purpose,
			Category:  vq.Category,
			Answer:    ans.Text,
			Suggested: ans.Suggestion != nil,
			At:        time.Now().UTC(),
		})
	}
	d.ValidationAnswers = answers
	return d, nil
}

// Validator scores the idea and lays out a roadmap.
type Validator struct{ base }

func NewValidator(gen Generator, logger *log.Logger) *Validator {
	return &Validator{newBase("validator", PhaseValidating, gen, logger)}
}

func (v *Validator) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := v.requireIdea(s); err != nil {
		return Delta{}, err
	}
	var out Validation
	warnings, err := v.structured(ctx, llm.TaskAnalysis, validatorSystem, validationPrompt(s), validationSchema, &out)
	if err != nil {
		return Delta{}, err
	}
	return Delta{Phase: v.phase, Validation: &out, Warnings: warnings}, nil
}

// Synthesizer writes the final Markdown report. It has no placeholder: an
// empty or failed generation fails the run.
type Synthesizer struct{ base }

func NewSynthesizer(gen Generator, logger *log.Logger) *Synthesizer {
	return &Synthesizer{newBase("synthesizer", PhaseSynthesizing, gen, logger)}
}

func (y *Synthesizer) Run(ctx context.Context, s Snapshot) (Delta, error) {
	if err := y.requireIdea(s); err != nil {
		return Delta{}, err
	}
	text, err := y.gen.Generate(ctx, llm.TaskSynthesis, synthesizerSystem, synthesisPrompt(s), nil)
	if err != nil {
		return Delta{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Delta{}, &faults.ProviderError{Provider: y.name, Attempts: 1, Err: llm.ErrEmptyResponse}
	}
	return Delta{Phase: y.phase, Report: &text}, nil
}
