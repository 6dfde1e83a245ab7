// Package pipeline runs a proposal through clarification, critique,
// validation, market research and synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/llm"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

// Generator is the text-generation surface agents need. *llm.Client
// implements it.
type Generator interface {
	Generate(ctx context.Context, task llm.Task, system, prompt string, s *schema.Schema) (string, error)
	GenerateRecord(ctx context.Context, task llm.Task, system, prompt string, s *schema.Schema) (schema.Record, schema.Report, error)
}

// Agent is one workflow step. Run reads a snapshot and returns the delta for
// the phase it owns. A returned error ends the run; recoverable problems are
// reported as warnings inside the delta.
type Agent interface {
	Name() string
	Phase() Phase
	Run(ctx context.Context, s Snapshot) (Delta, error)
}

type base struct {
	name   string
	phase  Phase
	gen    Generator
	logger *log.Logger
}

func newBase(name string, phase Phase, gen Generator, logger *log.Logger) base {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return base{name: name, phase: phase, gen: gen, logger: logger}
}

func (b base) Name() string { return b.name }
func (b base) Phase() Phase { return b.phase }

func (b base) warning(err error) faults.Warning {
	w := faults.NewWarning(string(b.phase), b.name, err)
	b.logger.Printf("warn: %s", w)
	return w
}

func (b base) requireIdea(s Snapshot) error {
	if s.ClarifiedIdea == nil {
		return &faults.UpstreamMissingError{Phase: string(b.phase), Field: "clarified_idea"}
	}
	return nil
}

// structured generates a record for sch and decodes it into out. A
// generation or repair failure is downgraded to a warning and out receives
// the placeholder record. Only cancellation is returned as an error.
func (b base) structured(ctx context.Context, task llm.Task, system, prompt string, sch *schema.Schema, out any) ([]faults.Warning, error) {
	var warnings []faults.Warning
	rec, rep, err := b.gen.GenerateRecord(ctx, task, system, prompt, sch)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		warnings = append(warnings, b.warning(fmt.Errorf("%s: %w", sch.Name, err)))
		rec = schema.Placeholder(sch)
	} else if v := rep.Violation(); v != nil {
		warnings = append(warnings, b.warning(v))
	}
	if err := schema.Decode(rec, out); err != nil {
		return warnings, fmt.Errorf("decode %s: %w", sch.Name, err)
	}
	return warnings, nil
}

// usedPlaceholder reports whether structured substituted the placeholder.
func usedPlaceholder(ws []faults.Warning) bool {
	for _, w := range ws {
		if w.Kind != faults.KindSchemaViolation {
			return true
		}
	}
	return false
}
