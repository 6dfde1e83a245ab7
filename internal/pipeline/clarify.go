package pipeline

import (
	"context"
	"io"
	"log"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

// LoopConfig bounds the clarification loop.
type LoopConfig struct {
	MaxRounds             int
	MinTranscript         int
	MinDistinctCategories int
	ClosingPhrases        []string
}

// LoopConfigFrom copies the loop bounds out of the pipeline config.
func LoopConfigFrom(c config.PipelineConfig) LoopConfig {
	return LoopConfig{
		MaxRounds:             c.MaxClarificationRounds,
		MinTranscript:         c.MinTranscriptForBreadth,
		MinDistinctCategories: c.MinDistinctCategories,
		ClosingPhrases:        c.ClosingPhrases,
	}
}

var fallbackQuestions = map[string]string{
	"problem":      "What specific problem does this solve, and how painful is it today?",
	"target_users": "Who exactly would use this first?",
	"solution":     "How does the product solve the problem, step by step?",
	"market":       "How large is the market, and how do people find solutions like this today?",
	"monetization": "How will this make money?",
	"competition":  "Which alternatives exist, and why would someone switch?",
	"feasibility":  "What is hardest to build, and what do you need to launch?",
}

// ClarificationLoop alternates clarifier questions with answers until one of
// the termination signals fires. Each Cycle asks at most one question.
type ClarificationLoop struct {
	clarifier *Clarifier
	suggester *Suggester
	answers   interact.AnswerSource
	cfg       LoopConfig
	closing   []*regexp.Regexp
	logger    *log.Logger
}

func NewClarificationLoop(clarifier *Clarifier, suggester *Suggester, answers interact.AnswerSource, cfg LoopConfig, logger *log.Logger) *ClarificationLoop {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	l := &ClarificationLoop{clarifier: clarifier, suggester: suggester, answers: answers, cfg: cfg, logger: logger}
	for _, p := range cfg.ClosingPhrases {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		l.closing = append(l.closing, regexp.MustCompile(`^`+regexp.QuoteMeta(p)+`($|[^\p{L}\p{N}'])`))
	}
	return l
}

// Cycle runs one clarifier evaluation and, unless it reports complete, one
// question/answer exchange. done is true when the loop has exited; the
// returned idea is then marked complete. On cancellation at the question
// boundary the delta still carries the pending question.
func (l *ClarificationLoop) Cycle(ctx context.Context, s Snapshot) (d Delta, done bool, err error) {
	d = Delta{Phase: PhaseClarifying}
	status := s.Clarification
	status.Signals = slices.Clone(status.Signals)

	verdict, warnings, err := l.clarifier.evaluate(ctx, s, s.Transcript, false)
	d.Warnings = append(d.Warnings, warnings...)
	if err != nil {
		return d, false, err
	}
	if verdict.Status == "complete" {
		return l.finish(d, verdict.Idea, status, []Signal{SignalComplete}), true, nil
	}

	q := l.nextQuestion(verdict.Next, s.Transcript)
	d.PendingQuestion = &q
	d.ClarifiedIdea = &verdict.Idea

	prompt := interact.Prompt{Question: q.Question, Rationale: q.Rationale, Category: q.Category, Sequence: q.Sequence}
	if l.answers.WantsSuggestions() {
		sugg, ws, err := l.suggester.Suggest(ctx, s, q)
		d.Warnings = append(d.Warnings, ws...)
		if err != nil {
			return d, false, err
		}
		prompt.Suggestions = sugg
	}
	ans, err := l.answers.Answer(ctx, prompt)
	if err != nil {
		return d, false, err
	}

	entry := QAEntry{
		Sequence:  q.Sequence,
		Question:  q.Question,
		Rationale: q.Rationale,
		Category:  q.Category,
		Answer:    strings.TrimSpace(ans.Text),
		Suggested: ans.Suggestion != nil,
		At:        time.Now().UTC(),
	}
	d.Transcript = []QAEntry{entry}
	d.PendingQuestion = nil
	d.ClearPending = true
	status.Rounds++

	transcript := append(slices.Clone(s.Transcript), entry)
	signals := l.signals(entry.Answer, transcript, status.Rounds)
	if len(signals) == 0 {
		d.Clarification = &status
		return d, false, nil
	}

	// Forced exit: one last clarifier pass over the full transcript.
	s.ClarifiedIdea = &verdict.Idea
	final, ws, err := l.clarifier.evaluate(ctx, s, transcript, true)
	d.Warnings = append(d.Warnings, ws...)
	if err != nil {
		return d, false, err
	}
	status.Forced = true
	return l.finish(d, final.Idea, status, signals), true, nil
}

func (l *ClarificationLoop) finish(d Delta, idea ClarifiedIdea, status ClarificationStatus, signals []Signal) Delta {
	idea.Complete = true
	status.Finished = true
	status.Signals = append(status.Signals, signals...)
	status.Reason = signals[0]
	d.ClarifiedIdea = &idea
	d.Clarification = &status
	d.ClearPending = true
	l.logger.Printf("clarification finished after %d round(s): %s (signals %v)", status.Rounds, status.Reason, signals)
	return d
}

// signals evaluates every answer-driven exit condition. The result is in
// precedence order: closing phrase, breadth, cap.
func (l *ClarificationLoop) signals(answer string, transcript []QAEntry, rounds int) []Signal {
	var out []Signal
	if l.isClosing(answer) {
		out = append(out, SignalClosing)
	}
	if l.cfg.MinTranscript > 0 && l.cfg.MinDistinctCategories > 0 &&
		len(transcript) >= l.cfg.MinTranscript && len(coveredCategories(transcript)) >= l.cfg.MinDistinctCategories {
		out = append(out, SignalBreadth)
	}
	if rounds >= l.cfg.MaxRounds {
		out = append(out, SignalCap)
	}
	return out
}

func (l *ClarificationLoop) isClosing(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.ReplaceAll(a, "’", "'")
	for _, re := range l.closing {
		if re.MatchString(a) {
			return true
		}
	}
	return false
}

// nextQuestion fills in a question for the first uncovered category when the
// clarifier returned none.
func (l *ClarificationLoop) nextQuestion(q ClarificationQuestion, transcript []QAEntry) ClarificationQuestion {
	q.Sequence = len(transcript) + 1
	q.Question = strings.TrimSpace(q.Question)
	if q.Question != "" && q.Question != schema.PlaceholderText {
		if q.Rationale == schema.PlaceholderText {
			q.Rationale = ""
		}
		return q
	}
	covered := coveredCategories(transcript)
	category := clarificationCategories[len(clarificationCategories)-1]
	for _, c := range clarificationCategories {
		if !slices.Contains(covered, c) {
			category = c
			break
		}
	}
	l.logger.Printf("clarifier gave no usable question, asking about %s", category)
	return ClarificationQuestion{
		Question:  fallbackQuestions[category],
		Rationale: "this area is not covered yet",
		Category:  category,
		Sequence:  q.Sequence,
	}
}

// coveredCategories lists the distinct categories in first-seen order.
// "other" never counts toward coverage.
func coveredCategories(transcript []QAEntry) []string {
	var out []string
	for _, e := range transcript {
		c := strings.TrimSpace(strings.ToLower(e.Category))
		if c == "" || c == "other" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
