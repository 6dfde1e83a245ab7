package telemetry

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry tracks run, phase and LLM activity in process and exports the
// same numbers as prometheus collectors. It implements llm.Observer and
// pipeline.PhaseObserver.
type Telemetry struct {
	config   config.TelemetryConfig
	logger   *log.Logger
	metrics  *Metrics
	mu       sync.RWMutex
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	phaseTime   *prometheus.HistogramVec
	phaseErrors *prometheus.CounterVec
	generations *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
	llmLatency  *prometheus.HistogramVec
}

// Metrics is a point-in-time copy of the in-process counters.
type Metrics struct {
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration
	Warnings       int64

	PhaseExecutions   map[string]int64
	PhaseFailures     map[string]int64
	PhaseAverageTimes map[string]time.Duration

	LLMRequests       map[string]int64
	LLMAttempts       map[string]int64
	LLMFailures       map[string]int64
	LLMAverageLatency map[string]time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{
		PhaseExecutions:   make(map[string]int64),
		PhaseFailures:     make(map[string]int64),
		PhaseAverageTimes: make(map[string]time.Duration),
		LLMRequests:       make(map[string]int64),
		LLMAttempts:       make(map[string]int64),
		LLMFailures:       make(map[string]int64),
		LLMAverageLatency: make(map[string]time.Duration),
	}
}

// NewTelemetry creates a telemetry instance with its own prometheus registry.
func NewTelemetry(cfg config.TelemetryConfig, logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	t := &Telemetry{
		config:   cfg,
		logger:   logger,
		metrics:  newMetrics(),
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideascope", Name: "runs_total", Help: "Finished runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ideascope", Name: "run_duration_seconds", Help: "Wall time of finished runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		phaseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ideascope", Name: "phase_duration_seconds", Help: "Time spent per phase step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		phaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideascope", Name: "phase_errors_total", Help: "Phase steps that ended the run in error.",
		}, []string{"phase"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideascope", Name: "llm_generations_total", Help: "Text generation calls by task and outcome.",
		}, []string{"task", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ideascope", Name: "llm_attempts", Help: "Provider attempts per generation.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"task"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ideascope", Name: "llm_latency_seconds", Help: "Generation latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
	t.registry.MustRegister(t.runs, t.runDuration, t.phaseTime, t.phaseErrors, t.generations, t.attempts, t.llmLatency)
	return t
}

// Handler serves the collectors in the prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// ObserveGeneration records one finished text generation.
func (t *Telemetry) ObserveGeneration(task string, attempts int, elapsed time.Duration, err error) {
	if !t.config.Enabled {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.generations.WithLabelValues(task, outcome).Inc()
	t.attempts.WithLabelValues(task).Observe(float64(attempts))
	t.llmLatency.WithLabelValues(task).Observe(elapsed.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.LLMRequests[task]++
	m.LLMAttempts[task] += int64(attempts)
	if err != nil {
		m.LLMFailures[task]++
	}
	m.LLMAverageLatency[task] = runningAverage(m.LLMAverageLatency[task], elapsed, m.LLMRequests[task])
	if err != nil {
		t.logger.Printf("LLM Event: Task=%s, Attempts=%d, Duration=%v, Error=%v", task, attempts, elapsed, err)
	}
}

// ObservePhase records one orchestrator step.
func (t *Telemetry) ObservePhase(phase string, elapsed time.Duration, err error) {
	if !t.config.Enabled {
		return
	}
	t.phaseTime.WithLabelValues(phase).Observe(elapsed.Seconds())
	if err != nil {
		t.phaseErrors.WithLabelValues(phase).Inc()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.PhaseExecutions[phase]++
	if err != nil {
		m.PhaseFailures[phase]++
	}
	m.PhaseAverageTimes[phase] = runningAverage(m.PhaseAverageTimes[phase], elapsed, m.PhaseExecutions[phase])
}

// RecordRun records a run that reached a terminal phase.
func (t *Telemetry) RecordRun(res pipeline.Result) {
	if !t.config.Enabled {
		return
	}
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	t.runs.WithLabelValues(outcome).Inc()
	t.runDuration.Observe(elapsed.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.TotalRuns++
	if res.Success {
		m.SuccessfulRuns++
	} else {
		m.FailedRuns++
	}
	m.Warnings += int64(len(res.Errors))
	m.AverageRunTime = runningAverage(m.AverageRunTime, elapsed, m.TotalRuns)

	t.logger.Printf("Run Event: ID=%s, Success=%t, Phase=%s, Duration=%v, Warnings=%d",
		res.RunID, res.Success, res.State.Phase, elapsed, len(res.Errors))
}

func runningAverage(avg, sample time.Duration, n int64) time.Duration {
	if n <= 1 {
		return sample
	}
	return (avg*time.Duration(n-1) + sample) / time.Duration(n)
}

// GetMetrics returns a copy of the current counters.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := *t.metrics
	m.PhaseExecutions = copyMap(t.metrics.PhaseExecutions)
	m.PhaseFailures = copyMap(t.metrics.PhaseFailures)
	m.PhaseAverageTimes = copyMap(t.metrics.PhaseAverageTimes)
	m.LLMRequests = copyMap(t.metrics.LLMRequests)
	m.LLMAttempts = copyMap(t.metrics.LLMAttempts)
	m.LLMFailures = copyMap(t.metrics.LLMFailures)
	m.LLMAverageLatency = copyMap(t.metrics.LLMAverageLatency)
	return m
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetPerformanceReport renders the counters as plain text.
func (t *Telemetry) GetPerformanceReport() string {
	m := t.GetMetrics()
	var b strings.Builder
	fmt.Fprintf(&b, "=== PERFORMANCE REPORT ===\nRuns: %d (%d succeeded, %d failed), avg %v, %d warning(s)\n",
		m.TotalRuns, m.SuccessfulRuns, m.FailedRuns, m.AverageRunTime, m.Warnings)

	b.WriteString("\nPhases:\n")
	for _, phase := range sortedKeys(m.PhaseExecutions) {
		fmt.Fprintf(&b, "  %s: %d step(s), %d failed, %v avg\n",
			phase, m.PhaseExecutions[phase], m.PhaseFailures[phase], m.PhaseAverageTimes[phase])
	}
	b.WriteString("\nLLM Usage:\n")
	for _, task := range sortedKeys(m.LLMRequests) {
		fmt.Fprintf(&b, "  %s: %d request(s), %d attempt(s), %d failed, %v avg\n",
			task, m.LLMRequests[task], m.LLMAttempts[task], m.LLMFailures[task], m.LLMAverageLatency[task])
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shutdown logs a final report.
func (t *Telemetry) Shutdown() {
	if !t.config.Enabled {
		return
	}
	t.logger.Println("Shutting down telemetry system...")
	for _, line := range strings.Split(strings.TrimSpace(t.GetPerformanceReport()), "\n") {
		t.logger.Print(line)
	}
}
