package pipeline

import (
	"log"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/aggregate"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
)

// Deps are the collaborators shared by every run. Only the answer source
// differs between runs.
type Deps struct {
	Generator Generator
	Searcher  forum.Searcher
	Window    forum.Window
	Config    config.PipelineConfig
	Logger    *log.Logger
	AggLogger *log.Logger
	Observer  PhaseObserver
}

// NewDefaultOrchestrator wires the standard agent set around answers.
func NewDefaultOrchestrator(d Deps, answers interact.AnswerSource) (*Orchestrator, error) {
	cfg := d.Config.Normalize()
	suggester := NewSuggester(d.Generator, cfg.SuggestionCount, d.Logger)
	loop := NewClarificationLoop(NewClarifier(d.Generator, d.Logger), suggester, answers, LoopConfigFrom(cfg), d.Logger)
	agg := aggregate.New(nil, cfg.BatchSize, cfg.BatchWorkers, cfg.TopN, cfg.LargeDatasetThreshold, d.AggLogger)
	return NewOrchestrator(loop, Agents{
		Brainstormer: NewBrainstormer(d.Generator, d.Logger),
		Critic:       NewCritic(d.Generator, d.Logger),
		Questioner:   NewQuestioner(d.Generator, answers, suggester, d.Logger),
		Validator:    NewValidator(d.Generator, d.Logger),
		Miner:        NewMiner(d.Generator, d.Searcher, agg, d.Window, d.Logger),
		Synthesizer:  NewSynthesizer(d.Generator, d.Logger),
	}, d.Logger, d.Observer)
}
