package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
)

// Sink persists a finished run.
type Sink interface {
	Save(ctx context.Context, res Result) error
}

// Service runs submissions and hands successful results to the sinks.
// Failed runs are never persisted.
type Service struct {
	orch   *Orchestrator
	sinks  []Sink
	logger *log.Logger
}

func NewService(orch *Orchestrator, logger *log.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{orch: orch, sinks: sinks, logger: logger}
}

// NewRun creates the state for a submission without starting it.
func (s *Service) NewRun(sub Submission) *State {
	return NewState(uuid.NewString(), sub)
}

// Run executes sub to completion.
func (s *Service) Run(ctx context.Context, sub Submission) (Result, error) {
	return s.Execute(ctx, s.NewRun(sub))
}

// Execute drives st to a terminal phase and persists it on success. The
// error reports persistence failures only; run failures are in the Result.
func (s *Service) Execute(ctx context.Context, st *State) (Result, error) {
	res := s.orch.RunState(ctx, st)
	if !res.Success {
		s.logger.Printf("run %s did not succeed, nothing persisted", res.RunID)
		return res, nil
	}
	var errs []error
	for _, sink := range s.sinks {
		// Persist even when the run context was canceled after DONE.
		if err := sink.Save(context.WithoutCancel(ctx), res); err != nil {
			errs = append(errs, fmt.Errorf("persist run %s: %w", res.RunID, err))
		}
	}
	return res, errors.Join(errs...)
}
