package interact

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

func samplePrompt() Prompt {
	return Prompt{
		Question:  "Who pays for this?",
		Rationale: "monetization is unclear",
		Category:  "monetization",
		Sequence:  2,
		Suggestions: []Suggestion{
			{Text: "Parents, monthly subscription", Tier: TierConservative},
			{Text: "Schools, per-seat license", Tier: TierAmbitious},
		},
	}
}

func TestConsoleRepromptsInvalidChoice(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("abc\n9\n0\n2\n"), &out, true)
	ans, err := c.Answer(context.Background(), samplePrompt())
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if ans.Suggestion == nil || *ans.Suggestion != 1 || ans.Text != "Schools, per-seat license" || ans.Custom {
		t.Fatalf("answer = %+v", ans)
	}
	if got := strings.Count(out.String(), "Please enter a number between 1 and 3"); got != 3 {
		t.Fatalf("expected 3 re-prompts, got %d\n%s", got, out.String())
	}
	if !strings.Contains(out.String(), "3. Write your own") {
		t.Fatalf("missing write-your-own option:\n%s", out.String())
	}
}

func TestConsoleWriteYourOwnRejectsEmpty(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("3\n\n   \nTeachers pay\n"), &out, true)
	ans, err := c.Answer(context.Background(), samplePrompt())
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !ans.Custom || ans.Suggestion != nil || ans.Text != "Teachers pay" {
		t.Fatalf("answer = %+v", ans)
	}
	if got := strings.Count(out.String(), "An answer is required."); got != 2 {
		t.Fatalf("empty text re-prompts = %d", got)
	}
}

func TestConsoleFreeTextWithoutSuggestions(t *testing.T) {
	c := NewConsole(strings.NewReader("that's all\n"), &bytes.Buffer{}, false)
	p := samplePrompt()
	p.Suggestions = nil
	ans, err := c.Answer(context.Background(), p)
	if err != nil || ans.Text != "that's all" || !ans.Custom {
		t.Fatalf("answer = %+v err=%v", ans, err)
	}
	if c.WantsSuggestions() {
		t.Fatalf("suggestions disabled")
	}
}

func TestConsoleCancel(t *testing.T) {
	for _, input := range []string{"q\n", "QUIT\n", ""} {
		c := NewConsole(strings.NewReader(input), &bytes.Buffer{}, true)
		if _, err := c.Answer(context.Background(), samplePrompt()); !errors.Is(err, faults.ErrCanceled) {
			t.Fatalf("input %q: expected ErrCanceled, got %v", input, err)
		}
	}
}

func TestConsoleLastLineWithoutNewline(t *testing.T) {
	c := NewConsole(strings.NewReader("1"), &bytes.Buffer{}, true)
	ans, err := c.Answer(context.Background(), samplePrompt())
	if err != nil || ans.Suggestion == nil || *ans.Suggestion != 0 {
		t.Fatalf("answer = %+v err=%v", ans, err)
	}
}

func TestAutoScriptedThenSuggestion(t *testing.T) {
	a := NewAuto("first", "", "second")
	ctx := context.Background()
	for _, want := range []string{"first", "second", "Parents, monthly subscription"} {
		ans, err := a.Answer(ctx, samplePrompt())
		if err != nil || ans.Text != want {
			t.Fatalf("answer = %+v want %q err=%v", ans, want, err)
		}
	}
	ans, _ := a.Answer(ctx, Prompt{Question: "x"})
	if ans.Text != FallbackAnswer {
		t.Fatalf("fallback = %q", ans.Text)
	}
	if len(a.Asked()) != 4 {
		t.Fatalf("asked = %d", len(a.Asked()))
	}
}

func TestAutoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAuto().Answer(ctx, samplePrompt()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
