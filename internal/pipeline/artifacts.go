package pipeline

import (
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/aggregate"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
)

// ClarifiedIdea is the structured form of the proposal produced by the
// clarification loop. Complete is forced to true when the loop exits.
type ClarifiedIdea struct {
	Title            string   `json:"title"`
	Problem          string   `json:"problem"`
	TargetUsers      string   `json:"target_users"`
	Solution         string   `json:"solution"`
	ValueProposition string   `json:"value_proposition"`
	BusinessModel    string   `json:"business_model"`
	Keywords         []string `json:"keywords"`
	Scopes           []string `json:"scopes"`
	Assumptions      []string `json:"assumptions"`
	Complete         bool     `json:"complete"`
}

// ClarificationQuestion is one question asked by the clarifier.
type ClarificationQuestion struct {
	Question  string `json:"question"`
	Rationale string `json:"rationale"`
	Category  string `json:"category"`
	Sequence  int    `json:"sequence"`
}

// QAEntry is an answered question. Transcript entries are never modified
// after they are appended.
type QAEntry struct {
	Sequence  int       `json:"sequence"`
	Question  string    `json:"question"`
	Rationale string    `json:"rationale,omitempty"`
	Category  string    `json:"category"`
	Answer    string    `json:"answer"`
	Suggested bool      `json:"suggested"`
	At        time.Time `json:"at"`
}

// Signal is a reason the clarification loop stopped.
type Signal string

const (
	SignalComplete Signal = "complete"
	SignalClosing  Signal = "closing_phrase"
	SignalBreadth  Signal = "breadth"
	SignalCap      Signal = "iteration_cap"
	// SignalResumed marks a run that skipped clarification entirely.
	SignalResumed Signal = "resumed"
)

// ClarificationStatus tracks the loop counters.
type ClarificationStatus struct {
	Rounds   int      `json:"rounds"`
	Finished bool     `json:"finished"`
	Reason   Signal   `json:"reason,omitempty"`
	Signals  []Signal `json:"signals,omitempty"`
	Forced   bool     `json:"forced"`
}

type Variation struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	TargetSegment  string `json:"target_segment"`
	Differentiator string `json:"differentiator"`
}

type Critique struct {
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Risks       []string `json:"risks"`
	Competitors []string `json:"competitors"`
	Verdict     string   `json:"verdict"`
	Score       float64  `json:"score"`
}

type ValidationQuestion struct {
	Question string `json:"question"`
	Purpose  string `json:"purpose"`
	Category string `json:"category"`
}

type ValidationScores struct {
	Problem      int `json:"problem"`
	Market       int `json:"market"`
	Solution     int `json:"solution"`
	Feasibility  int `json:"feasibility"`
	Monetization int `json:"monetization"`
}

type RoadmapStep struct {
	Phase      string   `json:"phase"`
	Goal       string   `json:"goal"`
	Duration   string   `json:"duration"`
	Milestones []string `json:"milestones"`
}

// Validation is the scored assessment with its roadmap.
type Validation struct {
	Scores         ValidationScores `json:"scores"`
	Overall        float64          `json:"overall"`
	Recommendation string           `json:"recommendation"`
	Summary        string           `json:"summary"`
	Roadmap        []RoadmapStep    `json:"roadmap"`
}

// Research status values.
const (
	ResearchOK          = "ok"
	ResearchNoData      = "no_data"
	ResearchUnavailable = "unavailable"
)

// Research is the forum evidence and its reality check.
type Research struct {
	Status       string             `json:"status"`
	Query        forum.Query        `json:"query"`
	Documents    int                `json:"documents"`
	Sample       []forum.Document   `json:"sample,omitempty"`
	Metrics      *aggregate.Metrics `json:"metrics,omitempty"`
	Chunked      bool               `json:"chunked"`
	Verdict      string             `json:"verdict"`
	RealityCheck string             `json:"reality_check"`
	Evidence     []string           `json:"evidence"`
}
