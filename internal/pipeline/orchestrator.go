package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/ideascope/internal/faults"
)

var orchestratorTracer trace.Tracer = otel.Tracer("ideascope/internal/pipeline")

// PhaseObserver receives one event per executed step.
type PhaseObserver interface {
	ObservePhase(phase string, elapsed time.Duration, err error)
}

// Result is what a run reports to its caller.
type Result struct {
	RunID      string           `json:"run_id"`
	Success    bool             `json:"success"`
	State      Snapshot         `json:"state"`
	Errors     []faults.Warning `json:"errors"`
	Fatal      error            `json:"-"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Orchestrator drives one run through the phase graph. It owns the State;
// agents only see snapshots.
type Orchestrator struct {
	loop     *ClarificationLoop
	agents   map[Phase]Agent
	maxSteps int
	logger   *log.Logger
	observer PhaseObserver
}

// Agents are the per-phase steps of the linear part of the graph.
type Agents struct {
	Brainstormer Agent
	Critic       Agent
	Questioner   Agent
	Validator    Agent
	Miner        Agent
	Synthesizer  Agent
}

// NewOrchestrator wires the loop and agents. Every linear phase must have an
// agent.
func NewOrchestrator(loop *ClarificationLoop, a Agents, logger *log.Logger, observer PhaseObserver) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if loop == nil {
		return nil, errors.New("clarification loop is required")
	}
	agents := map[Phase]Agent{
		PhaseBrainstorming: a.Brainstormer,
		PhaseCritiquing:    a.Critic,
		PhaseQuestioning:   a.Questioner,
		PhaseValidating:    a.Validator,
		PhaseMining:        a.Miner,
		PhaseSynthesizing:  a.Synthesizer,
	}
	for p, ag := range agents {
		if ag == nil {
			return nil, fmt.Errorf("no agent for phase %s", p)
		}
		if ag.Phase() != p {
			return nil, fmt.Errorf("agent %s runs in %s, wired to %s", ag.Name(), ag.Phase(), p)
		}
	}
	return &Orchestrator{
		loop:     loop,
		agents:   agents,
		maxSteps: MaxSteps(loop.cfg.MaxRounds),
		logger:   logger,
		observer: observer,
	}, nil
}

// Advance executes the current phase once and moves to the next phase.
// CLARIFYING may stay where it is; every other phase moves forward or to
// ERROR. A non-nil error is the fatal cause; the state is already in ERROR.
func (o *Orchestrator) Advance(ctx context.Context, st *State) error {
	phase := st.Phase()
	if phase.Terminal() {
		return nil
	}
	if n := st.step(); n > o.maxSteps {
		err := fmt.Errorf("step bound %d exceeded in phase %s", o.maxSteps, phase)
		st.fail(err)
		return err
	}

	start := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "pipeline."+string(phase),
		trace.WithAttributes(attribute.String("run.id", st.Snapshot().RunID)))
	defer span.End()

	next, err := o.execute(ctx, st, phase)
	if o.observer != nil {
		o.observer.ObservePhase(string(phase), time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Printf("%s failed (%s): %v", phase, faults.KindOf(err), err)
		st.fail(err)
		return err
	}
	span.SetAttributes(attribute.String("phase.next", string(next)))
	span.SetStatus(codes.Ok, "completed")
	if next != phase {
		o.logger.Printf("%s -> %s", phase, next)
		st.enter(next)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, st *State, phase Phase) (Phase, error) {
	if err := ctx.Err(); err != nil {
		return phase, err
	}
	snap := st.Snapshot()
	switch phase {
	case PhaseInit:
		if strings.TrimSpace(snap.Proposal) == "" && snap.ClarifiedIdea == nil {
			return phase, &faults.UpstreamMissingError{Phase: string(phase), Field: "proposal"}
		}
		if snap.ClarifiedIdea != nil {
			// Resumed run: the idea was clarified by an earlier run.
			idea := *snap.ClarifiedIdea
			idea.Complete = true
			status := snap.Clarification
			status.Finished = true
			status.Reason = SignalResumed
			status.Signals = []Signal{SignalResumed}
			if err := st.Apply(Delta{Phase: PhaseClarifying, ClarifiedIdea: &idea, Clarification: &status}); err != nil {
				return phase, err
			}
			o.logger.Printf("resuming %s with a clarified idea, skipping clarification", snap.RunID)
			return PhaseBrainstorming, nil
		}
		return PhaseClarifying, nil

	case PhaseClarifying:
		d, done, err := o.loop.Cycle(ctx, snap)
		if applyErr := o.apply(st, d); applyErr != nil {
			return phase, applyErr
		}
		if err != nil {
			return phase, err
		}
		if done {
			return phase.next(), nil
		}
		return phase, nil
	}

	agent, ok := o.agents[phase]
	if !ok {
		return phase, fmt.Errorf("no agent for phase %s", phase)
	}
	d, err := agent.Run(ctx, snap)
	if applyErr := o.apply(st, d); applyErr != nil {
		return phase, applyErr
	}
	if err != nil {
		return phase, fmt.Errorf("%s: %w", agent.Name(), err)
	}
	return phase.next(), nil
}

func (o *Orchestrator) apply(st *State, d Delta) error {
	if d.Phase == "" && d.Empty() {
		return nil
	}
	for _, w := range d.Warnings {
		o.logger.Printf("warning: %s", w)
	}
	return st.Apply(d)
}

// Run executes a submission from INIT until DONE or ERROR. Success requires
// DONE and a non-empty report.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) Result {
	return o.RunState(ctx, NewState(uuid.NewString(), sub))
}

// RunState drives an already created state. Callers that want to inspect the
// state while the run progresses create it with NewState.
func (o *Orchestrator) RunState(ctx context.Context, st *State) Result {
	ctx, span := orchestratorTracer.Start(ctx, "pipeline.run")
	defer span.End()

	st.enter(PhaseInit)
	var fatal error
	for !st.Phase().Terminal() {
		if err := o.Advance(ctx, st); err != nil {
			fatal = err
		}
	}

	snap := st.Snapshot()
	res := Result{
		RunID:      snap.RunID,
		State:      snap,
		Errors:     snap.Warnings,
		Fatal:      fatal,
		StartedAt:  snap.StartedAt,
		FinishedAt: time.Now().UTC(),
	}
	res.Success = snap.Phase == PhaseDone && strings.TrimSpace(snap.Report) != ""
	if fatal != nil {
		res.Errors = append(res.Errors, faults.NewWarning(string(lastPhase(snap)), "orchestrator", fatal))
		span.RecordError(fatal)
		span.SetStatus(codes.Error, fatal.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	span.SetAttributes(
		attribute.String("run.id", snap.RunID),
		attribute.Bool("run.success", res.Success),
		attribute.Int("run.steps", snap.Steps),
		attribute.Int("run.warnings", len(snap.Warnings)),
	)
	o.logger.Printf("run %s finished in %s: success=%v steps=%d warnings=%d",
		snap.RunID, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond), res.Success, snap.Steps, len(snap.Warnings))
	return res
}

// lastPhase is the phase that was running when the run ended.
func lastPhase(s Snapshot) Phase {
	for i := len(s.Visited) - 1; i >= 0; i-- {
		if !s.Visited[i].Terminal() {
			return s.Visited[i]
		}
	}
	return PhaseInit
}
