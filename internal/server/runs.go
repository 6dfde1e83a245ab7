package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/ideascope/internal/faults"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/mohammad-safakhou/ideascope/internal/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var runsTracer = otel.Tracer("ideascope/internal/server/runs")

// ServiceFactory builds a run service whose human boundary is answers.
type ServiceFactory func(answers interact.AnswerSource) (*pipeline.Service, error)

// BundleStore looks up runs persisted by earlier processes.
type BundleStore interface {
	Bundle(ctx context.Context, runID string) (report.Bundle, bool, error)
}

// RunRecorder is told about every run that reaches a terminal phase.
type RunRecorder interface {
	RecordRun(res pipeline.Result)
}

type CreateRunRequest struct {
	Proposal          string                  `json:"proposal"`
	Answers           []string                `json:"answers,omitempty"`
	ClarifiedIdea     *pipeline.ClarifiedIdea `json:"clarified_idea,omitempty"`
	ValidationAnswers []pipeline.QAEntry      `json:"validation_answers,omitempty"`
}

type IDResponse struct {
	ID string `json:"run_id"`
}

// RunStatus is the summary returned by GET /api/runs/:id.
type RunStatus struct {
	RunID      string           `json:"run_id"`
	Phase      pipeline.Phase   `json:"phase"`
	Steps      int              `json:"steps"`
	Finished   bool             `json:"finished"`
	Success    *bool            `json:"success,omitempty"`
	Error      string           `json:"error,omitempty"`
	Warnings   []faults.Warning `json:"warnings"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

type runEntry struct {
	state      *pipeline.State
	result     *pipeline.Result
	finishedAt time.Time
}

// RunsHandler starts runs in the background and keeps them in memory for
// inspection. Finished runs are dropped after the retention period; a
// BundleStore still serves them afterwards.
type RunsHandler struct {
	newService ServiceFactory
	store      BundleStore
	recorder   RunRecorder
	timeout    time.Duration
	retention  time.Duration
	logger     *log.Logger
	now        func() time.Time

	mu   sync.RWMutex
	runs map[string]*runEntry
	wg   sync.WaitGroup
}

type RunsOption func(*RunsHandler)

func WithBundleStore(s BundleStore) RunsOption  { return func(h *RunsHandler) { h.store = s } }
func WithRecorder(r RunRecorder) RunsOption     { return func(h *RunsHandler) { h.recorder = r } }
func WithRunTimeout(d time.Duration) RunsOption { return func(h *RunsHandler) { h.timeout = d } }
func WithLogger(l *log.Logger) RunsOption       { return func(h *RunsHandler) { h.logger = l } }

// WithRetention sets how long finished runs stay in memory. Zero keeps the default.
func WithRetention(d time.Duration) RunsOption {
	return func(h *RunsHandler) {
		if d > 0 {
			h.retention = d
		}
	}
}

func NewRunsHandler(factory ServiceFactory, opts ...RunsOption) *RunsHandler {
	h := &RunsHandler{
		newService: factory,
		timeout:    15 * time.Minute,
		retention:  time.Hour,
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
		runs:       make(map[string]*runEntry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:id", h.status)
	g.GET("/:id/state", h.state)
	g.GET("/:id/report", h.report)
}

// Wait blocks until every background run has finished.
func (h *RunsHandler) Wait() { h.wg.Wait() }

func (h *RunsHandler) create(c echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Proposal) == "" && req.ClarifiedIdea == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "proposal is required")
	}
	svc, err := h.newService(interact.NewAuto(req.Answers...))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sub := pipeline.Submission{Proposal: req.Proposal}
	if req.ClarifiedIdea != nil || len(req.ValidationAnswers) > 0 {
		sub.Resume = &pipeline.Resume{ClarifiedIdea: req.ClarifiedIdea, ValidationAnswers: req.ValidationAnswers}
	}
	st := svc.NewRun(sub)
	runID := st.Snapshot().RunID

	h.mu.Lock()
	h.evictLocked()
	h.runs[runID] = &runEntry{state: st}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		ctx, span := runsTracer.Start(ctx, "run.execute")
		span.SetAttributes(attribute.String("run_id", runID))
		defer span.End()

		res, err := svc.Execute(ctx, st)
		if err != nil {
			h.logger.Printf("run %s: %v", runID, err)
		}
		h.mu.Lock()
		if e, ok := h.runs[runID]; ok {
			e.result = &res
			e.finishedAt = h.now()
		}
		h.mu.Unlock()
		if h.recorder != nil {
			h.recorder.RecordRun(res)
		}
	}()

	return c.JSON(http.StatusAccepted, IDResponse{ID: runID})
}

// evictLocked drops finished runs older than the retention period. Callers
// hold h.mu.
func (h *RunsHandler) evictLocked() {
	cutoff := h.now().Add(-h.retention)
	for id, e := range h.runs {
		if e.result != nil && e.finishedAt.Before(cutoff) {
			delete(h.runs, id)
			h.logger.Printf("run %s evicted from memory", id)
		}
	}
}

func (h *RunsHandler) lookup(id string) (*pipeline.State, *pipeline.Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictLocked()
	e, ok := h.runs[id]
	if !ok {
		return nil, nil, false
	}
	return e.state, e.result, true
}

func (h *RunsHandler) status(c echo.Context) error {
	id := c.Param("id")
	st, res, ok := h.lookup(id)
	if ok {
		s := st.Snapshot()
		out := RunStatus{RunID: id, Phase: s.Phase, Steps: s.Steps, Warnings: s.Warnings, StartedAt: s.StartedAt}
		if res != nil {
			out.Finished = true
			out.Success = &res.Success
			out.FinishedAt = &res.FinishedAt
			if res.Fatal != nil {
				out.Error = res.Fatal.Error()
			}
		}
		return c.JSON(http.StatusOK, out)
	}
	b, err := h.stored(c.Request().Context(), id)
	if err != nil {
		return err
	}
	phase := pipeline.PhaseError
	if b.Success {
		phase = pipeline.PhaseDone
	}
	return c.JSON(http.StatusOK, RunStatus{
		RunID: id, Phase: phase, Steps: b.Steps, Finished: true, Success: &b.Success,
		Warnings: b.Warnings, StartedAt: b.StartedAt, FinishedAt: &b.FinishedAt,
	})
}

// state returns the full snapshot, including partial artifacts of a run that
// is still going or has failed.
func (h *RunsHandler) state(c echo.Context) error {
	st, _, ok := h.lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, st.Snapshot())
}

func (h *RunsHandler) report(c echo.Context) error {
	id := c.Param("id")
	var b report.Bundle
	if _, res, ok := h.lookup(id); ok {
		if res == nil {
			return echo.NewHTTPError(http.StatusConflict, "run is still in progress")
		}
		if !res.Success {
			return echo.NewHTTPError(http.StatusNotFound, "run did not produce a report")
		}
		b = report.NewBundle(*res)
	} else {
		var err error
		if b, err = h.stored(c.Request().Context(), id); err != nil {
			return err
		}
	}
	md, err := report.Render(b)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (h *RunsHandler) stored(ctx context.Context, id string) (report.Bundle, error) {
	if h.store == nil {
		return report.Bundle{}, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	b, ok, err := h.store.Bundle(ctx, id)
	if err != nil {
		return b, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return b, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return b, nil
}
