package pipeline

// Phase is a state of the orchestrator.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseClarifying    Phase = "clarifying"
	PhaseBrainstorming Phase = "brainstorming"
	PhaseCritiquing    Phase = "critiquing"
	PhaseQuestioning   Phase = "questioning"
	PhaseValidating    Phase = "validating"
	PhaseMining        Phase = "mining"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseDone          Phase = "done"
	PhaseError         Phase = "error"
)

// linear is the graph after clarification. CLARIFYING is the only phase
// allowed to repeat.
var linear = []Phase{
	PhaseBrainstorming,
	PhaseCritiquing,
	PhaseQuestioning,
	PhaseValidating,
	PhaseMining,
	PhaseSynthesizing,
	PhaseDone,
}

// Terminal reports whether p absorbs the run.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseError }

// next returns the successor of p in the linear part of the graph.
func (p Phase) next() Phase {
	if p == PhaseClarifying {
		return linear[0]
	}
	for i, q := range linear[:len(linear)-1] {
		if q == p {
			return linear[i+1]
		}
	}
	return PhaseError
}

// MaxSteps is the hard bound on Advance calls for a run whose clarification
// loop is capped at rounds.
func MaxSteps(rounds int) int { return rounds + 9 }
