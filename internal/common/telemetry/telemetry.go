// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	initOnce sync.Once
	registry *prometheus.Registry

	checkpointActions *prometheus.CounterVec
	phaseTasks        *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	agentInvocations  *prometheus.CounterVec
	debounceDecisions *prometheus.CounterVec
	activeTimers      prometheus.Gauge
	pollCycles        *prometheus.CounterVec
	queueDepth        prometheus.Gauge
)

func ensureInit() {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		checkpointActions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_actions_total",
			Help: "Checkpoint actions applied by checkpoint and action.",
		}, []string{"checkpoint", "action"})
		phaseTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "phase_tasks_total",
			Help: "Finished phase tasks by phase and outcome.",
		}, []string{"phase", "outcome"})
		phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "phase_duration_seconds",
			Help:    "Phase task execution time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"})
		agentInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_invocations_total",
			Help: "Agent invocations by backend and outcome.",
		}, []string{"backend", "outcome"})
		debounceDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "debounce_evaluations_total",
			Help: "Debounce evaluations by decision.",
		}, []string{"decision"})
		activeTimers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "debounce_active_timers",
			Help: "Debounce timers currently armed.",
		})
		pollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_cycles_total",
			Help: "Response poll cycles by outcome.",
		}, []string{"outcome"})
		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "task_queue_in_flight",
			Help: "Phase tasks queued or running.",
		})
		registry.MustRegister(checkpointActions, phaseTasks, phaseDuration, agentInvocations,
			debounceDecisions, activeTimers, pollCycles, queueDepth)
	})
}

// Registry returns the collector registry backing /metrics.
func Registry() *prometheus.Registry {
	ensureInit()
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	ensureInit()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// StartSpan logs the start of a named operation and returns a func that logs
// its end with the elapsed time.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", time.Since(sp.start)}, attrs...)...)
	}
}

// SpanDuration returns the time elapsed since the span in ctx started.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}

func RecordCheckpointAction(checkpoint, action string) {
	ensureInit()
	checkpointActions.WithLabelValues(label(checkpoint, "none"), label(action, "unknown")).Inc()
}

func RecordPhaseTask(phase, outcome string, duration time.Duration) {
	ensureInit()
	phaseTasks.WithLabelValues(label(phase, "unknown"), label(outcome, "unknown")).Inc()
	if duration > 0 {
		phaseDuration.WithLabelValues(label(phase, "unknown")).Observe(duration.Seconds())
	}
}

func RecordAgentInvocation(backend, outcome string) {
	ensureInit()
	agentInvocations.WithLabelValues(label(backend, "cli"), label(outcome, "unknown")).Inc()
}

func RecordDebounceDecision(decision string) {
	ensureInit()
	debounceDecisions.WithLabelValues(label(decision, "noop")).Inc()
}

func SetActiveTimers(n int) {
	ensureInit()
	activeTimers.Set(float64(n))
}

func RecordPollCycle(outcome string) {
	ensureInit()
	pollCycles.WithLabelValues(label(outcome, "ok")).Inc()
}

func SetQueueDepth(n int) {
	ensureInit()
	queueDepth.Set(float64(n))
}

func label(value, fallback string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return fallback
	}
	return key
}
