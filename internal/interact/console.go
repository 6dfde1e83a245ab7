package interact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	tierStyle     = map[Tier]lipgloss.Style{
		TierConservative: lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		TierBalanced:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		TierAmbitious:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// Console asks questions on a terminal. With suggestions it shows a numbered
// menu plus a "write your own" entry; invalid choices and empty text are
// asked again.
type Console struct {
	in          *bufio.Reader
	out         io.Writer
	suggestions bool
}

// NewConsole reads answers from in and writes prompts to out.
func NewConsole(in io.Reader, out io.Writer, suggestions bool) *Console {
	return &Console{in: bufio.NewReader(in), out: out, suggestions: suggestions}
}

func (c *Console) WantsSuggestions() bool { return c.suggestions }

// Answer blocks until a valid answer is read. "q", "quit" and end of input
// return faults.ErrCanceled.
func (c *Console) Answer(ctx context.Context, p Prompt) (Answer, error) {
	c.render(p)
	if len(p.Suggestions) == 0 {
		text, err := c.readText(ctx, "> ")
		if err != nil {
			return Answer{}, err
		}
		return Answer{Text: text, Custom: true}, nil
	}

	own := len(p.Suggestions) + 1
	for {
		line, err := c.readLine(ctx, fmt.Sprintf("Choose 1-%d: ", own))
		if err != nil {
			return Answer{}, err
		}
		n, convErr := strconv.Atoi(line)
		switch {
		case convErr != nil || n < 1 || n > own:
			fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf("Please enter a number between 1 and %d.", own)))
		case n == own:
			text, err := c.readText(ctx, "Your answer: ")
			if err != nil {
				return Answer{}, err
			}
			return Answer{Text: text, Custom: true}, nil
		default:
			idx := n - 1
			return Answer{Text: p.Suggestions[idx].Text, Suggestion: &idx}, nil
		}
	}
}

func (c *Console) render(p Prompt) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, questionStyle.Render(fmt.Sprintf("Q%d. %s", p.Sequence, p.Question)))
	if p.Rationale != "" || p.Category != "" {
		fmt.Fprintln(c.out, mutedStyle.Render(fmt.Sprintf("   [%s] %s", p.Category, p.Rationale)))
	}
	for i, s := range p.Suggestions {
		style, ok := tierStyle[s.Tier]
		if !ok {
			style = mutedStyle
		}
		fmt.Fprintf(c.out, "  %d. %s %s\n", i+1, s.Text, style.Render("("+string(s.Tier)+")"))
		if s.Rationale != "" {
			fmt.Fprintln(c.out, mutedStyle.Render("     "+s.Rationale))
		}
	}
	if len(p.Suggestions) > 0 {
		fmt.Fprintf(c.out, "  %d. Write your own\n", len(p.Suggestions)+1)
	}
}

// readText reads until a non-empty line is entered.
func (c *Console) readText(ctx context.Context, prompt string) (string, error) {
	for {
		line, err := c.readLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
		fmt.Fprintln(c.out, errorStyle.Render("An answer is required."))
	}
}

func (c *Console) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", faults.ErrCanceled
		}
		return "", fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(line) {
	case "q", "quit":
		return "", faults.ErrCanceled
	}
	return line, nil
}
