package interact

import (
	"context"
	"strings"
	"sync"
)

// FallbackAnswer is used by Auto when it has neither a scripted answer nor a
// suggestion to pick.
const FallbackAnswer = "Not sure yet"

// Auto answers without a human. Scripted answers are consumed in order;
// after that it picks the first suggestion.
type Auto struct {
	mu       sync.Mutex
	scripted []string
	asked    []Prompt
}

// NewAuto returns an Auto that replays scripted before falling back to
// suggestions.
func NewAuto(scripted ...string) *Auto {
	return &Auto{scripted: append([]string(nil), scripted...)}
}

func (a *Auto) WantsSuggestions() bool { return true }

func (a *Auto) Answer(ctx context.Context, p Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asked = append(a.asked, p)

	for len(a.scripted) > 0 {
		next := strings.TrimSpace(a.scripted[0])
		a.scripted = a.scripted[1:]
		if next != "" {
			return Answer{Text: next, Custom: true}, nil
		}
	}
	for i, s := range p.Suggestions {
		if strings.TrimSpace(s.Text) != "" {
			idx := i
			return Answer{Text: s.Text, Suggestion: &idx}, nil
		}
	}
	return Answer{Text: FallbackAnswer, Custom: true}, nil
}

// Asked returns the prompts answered so far.
func (a *Auto) Asked() []Prompt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Prompt(nil), a.asked...)
}
