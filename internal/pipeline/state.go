package pipeline

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

// Submission starts a run. Resume data from an earlier partial run lets the
// orchestrator skip clarification.
type Submission struct {
	Proposal string  `json:"proposal"`
	Resume   *Resume `json:"resume,omitempty"`
}

// Resume carries post-clarification artifacts from an earlier run.
type Resume struct {
	ClarifiedIdea     *ClarifiedIdea `json:"clarified_idea,omitempty"`
	Transcript        []QAEntry      `json:"transcript,omitempty"`
	ValidationAnswers []QAEntry      `json:"validation_answers,omitempty"`
}

// Snapshot is a copy of the pipeline state. Agents read snapshots and never
// hold a reference to the live state.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Proposal  string    `json:"proposal"`
	Phase     Phase     `json:"phase"`
	Steps     int       `json:"steps"`
	Visited   []Phase   `json:"visited"`

	ClarifiedIdea   *ClarifiedIdea         `json:"clarified_idea,omitempty"`
	Transcript      []QAEntry              `json:"transcript"`
	PendingQuestion *ClarificationQuestion `json:"pending_question,omitempty"`
	Clarification   ClarificationStatus    `json:"clarification"`

	Variations          []Variation          `json:"variations,omitempty"`
	Critique            *Critique            `json:"critique,omitempty"`
	ValidationQuestions []ValidationQuestion `json:"validation_questions,omitempty"`
	ValidationAnswers   []QAEntry            `json:"validation_answers,omitempty"`
	Validation          *Validation          `json:"validation,omitempty"`
	Research            *Research            `json:"research,omitempty"`
	Report              string               `json:"report,omitempty"`

	Warnings []faults.Warning `json:"warnings"`
	Fatal    string           `json:"fatal,omitempty"`
}

// Delta is the output of one agent step. Non-nil fields replace the state
// field wholesale, except Transcript which is appended.
type Delta struct {
	Phase Phase

	ClarifiedIdea   *ClarifiedIdea
	Transcript      []QAEntry
	PendingQuestion *ClarificationQuestion
	ClearPending    bool
	Clarification   *ClarificationStatus

	Variations          []Variation
	Critique            *Critique
	ValidationQuestions []ValidationQuestion
	ValidationAnswers   []QAEntry
	Validation          *Validation
	Research            *Research
	Report              *string

	// Warnings may be added by any phase.
	Warnings []faults.Warning
}

// owners maps each artifact to the only phase allowed to write it.
var owners = map[string]Phase{
	"clarified_idea":       PhaseClarifying,
	"transcript":           PhaseClarifying,
	"pending_question":     PhaseClarifying,
	"clarification":        PhaseClarifying,
	"variations":           PhaseBrainstorming,
	"critique":             PhaseCritiquing,
	"validation_questions": PhaseQuestioning,
	"validation_answers":   PhaseQuestioning,
	"validation":           PhaseValidating,
	"research":             PhaseMining,
	"report":               PhaseSynthesizing,
}

func (d Delta) touched() []string {
	var out []string
	if d.ClarifiedIdea != nil {
		out = append(out, "clarified_idea")
	}
	if d.Transcript != nil {
		out = append(out, "transcript")
	}
	if d.PendingQuestion != nil || d.ClearPending {
		out = append(out, "pending_question")
	}
	if d.Clarification != nil {
		out = append(out, "clarification")
	}
	if d.Variations != nil {
		out = append(out, "variations")
	}
	if d.Critique != nil {
		out = append(out, "critique")
	}
	if d.ValidationQuestions != nil {
		out = append(out, "validation_questions")
	}
	if d.ValidationAnswers != nil {
		out = append(out, "validation_answers")
	}
	if d.Validation != nil {
		out = append(out, "validation")
	}
	if d.Research != nil {
		out = append(out, "research")
	}
	if d.Report != nil {
		out = append(out, "report")
	}
	return out
}

// Empty reports whether d changes nothing.
func (d Delta) Empty() bool { return len(d.touched()) == 0 && len(d.Warnings) == 0 }

// OwnershipError rejects a delta writing a field owned by another phase.
type OwnershipError struct {
	Phase Phase
	Field string
	Owner Phase
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("phase %s may not write %s (owned by %s)", e.Phase, e.Field, e.Owner)
}

// State is the single mutable record of one run. It is owned by the
// orchestrator; every write goes through Apply or the orchestrator's
// transition methods.
type State struct {
	mu sync.RWMutex
	s  Snapshot
}

// NewState creates the state for a submission. Resume artifacts are seeded
// directly since they were produced by an earlier run.
func NewState(runID string, sub Submission) *State {
	st := &State{s: Snapshot{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Proposal:  sub.Proposal,
		Phase:     PhaseInit,
	}}
	if r := sub.Resume; r != nil {
		if r.ClarifiedIdea != nil {
			idea := *r.ClarifiedIdea
			st.s.ClarifiedIdea = &idea
		}
		st.s.Transcript = slices.Clone(r.Transcript)
		st.s.ValidationAnswers = slices.Clone(r.ValidationAnswers)
	}
	return st
}

// Snapshot returns a copy of the current state.
func (st *State) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.clone()
}

// Phase returns the current phase.
func (st *State) Phase() Phase {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Phase
}

// Apply merges d into the state. The whole delta is rejected when any field
// it touches belongs to a phase other than d.Phase.
func (st *State) Apply(d Delta) error {
	for _, field := range d.touched() {
		if owner := owners[field]; owner != d.Phase {
			return &OwnershipError{Phase: d.Phase, Field: field, Owner: owner}
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	s := &st.s
	if d.ClarifiedIdea != nil {
		idea := *d.ClarifiedIdea
		s.ClarifiedIdea = &idea
	}
	if len(d.Transcript) > 0 {
		s.Transcript = append(slices.Clone(s.Transcript), d.Transcript...)
	}
	if d.ClearPending {
		s.PendingQuestion = nil
	}
	if d.PendingQuestion != nil {
		q := *d.PendingQuestion
		s.PendingQuestion = &q
	}
	if d.Clarification != nil {
		c := *d.Clarification
		c.Signals = slices.Clone(c.Signals)
		s.Clarification = c
	}
	if d.Variations != nil {
		s.Variations = slices.Clone(d.Variations)
	}
	if d.Critique != nil {
		c := *d.Critique
		s.Critique = &c
	}
	if d.ValidationQuestions != nil {
		s.ValidationQuestions = slices.Clone(d.ValidationQuestions)
	}
	if d.ValidationAnswers != nil {
		s.ValidationAnswers = slices.Clone(d.ValidationAnswers)
	}
	if d.Validation != nil {
		v := *d.Validation
		s.Validation = &v
	}
	if d.Research != nil {
		r := *d.Research
		s.Research = &r
	}
	if d.Report != nil {
		s.Report = *d.Report
	}
	if len(d.Warnings) > 0 {
		s.Warnings = append(slices.Clone(s.Warnings), d.Warnings...)
	}
	return nil
}

func (st *State) enter(p Phase) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Phase = p
	st.s.Visited = append(st.s.Visited, p)
}

func (st *State) step() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Steps++
	return st.s.Steps
}

func (st *State) fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Fatal = err.Error()
	st.s.Phase = PhaseError
	st.s.Visited = append(st.s.Visited, PhaseError)
}

// clone copies the slices and pointed-to artifacts. Nested slices inside
// artifacts are shared; they are never mutated after being applied.
func (s Snapshot) clone() Snapshot {
	out := s
	out.Visited = slices.Clone(s.Visited)
	out.Transcript = slices.Clone(s.Transcript)
	out.Variations = slices.Clone(s.Variations)
	out.ValidationQuestions = slices.Clone(s.ValidationQuestions)
	out.ValidationAnswers = slices.Clone(s.ValidationAnswers)
	out.Warnings = slices.Clone(s.Warnings)
	out.Clarification.Signals = slices.Clone(s.Clarification.Signals)
	if s.ClarifiedIdea != nil {
		v := *s.ClarifiedIdea
		out.ClarifiedIdea = &v
	}
	if s.PendingQuestion != nil {
		v := *s.PendingQuestion
		out.PendingQuestion = &v
	}
	if s.Critique != nil {
		v := *s.Critique
		out.Critique = &v
	}
	if s.Validation != nil {
		v := *s.Validation
		out.Validation = &v
	}
	if s.Research != nil {
		v := *s.Research
		out.Research = &v
	}
	return out
}
