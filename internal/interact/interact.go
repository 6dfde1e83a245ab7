// Package interact is the human boundary of the clarification loop: it
// presents one pending question with optional suggested answers and returns
// the answer that was chosen or typed.
package interact

import (
	"context"
)

// Tier is the risk/complexity level of a suggested answer.
type Tier string

const (
	TierConservative Tier = "conservative"
	TierBalanced     Tier = "balanced"
	TierAmbitious    Tier = "ambitious"
)

// Suggestion is a candidate answer generated for one pending question.
type Suggestion struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
	Tier      Tier   `json:"tier"`
}

// Prompt is one question presented to the answer source.
type Prompt struct {
	Question    string
	Rationale   string
	Category    string
	Sequence    int
	Suggestions []Suggestion
}

// Answer is the response to a Prompt. Suggestion is the zero-based index of
// the chosen suggestion, nil when the text was written by hand.
type Answer struct {
	Text       string
	Suggestion *int
	Custom     bool
}

// AnswerSource collects answers for clarification and validation questions.
// Returning faults.ErrCanceled aborts the run at the question boundary.
type AnswerSource interface {
	Answer(ctx context.Context, p Prompt) (Answer, error)
	// WantsSuggestions reports whether suggestions should be generated
	// before Answer is called.
	WantsSuggestions() bool
}
