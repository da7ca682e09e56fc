package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skillrun/agentcore/internal/engine"
)

// Metrics is the Prometheus surface for the loop and executor, scoped to
// what a run's own event stream can report: tool calls, LLM turns,
// approval decisions, and compaction events.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	LLMTurnsTotal    *prometheus.CounterVec
	ApprovalsTotal   *prometheus.CounterVec
	CompactionsTotal *prometheus.CounterVec
	ContextOverflows prometheus.Counter
}

// NewMetrics registers the full metric set against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "runs_total",
			Help:      "Total agent runs by terminal outcome.",
		}, []string{"outcome"}),

		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a run from run_started to its terminal event.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),

		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "tool_calls_total",
			Help:      "Total tool calls dispatched, by tool name and outcome.",
		}, []string{"tool", "outcome"}),

		ToolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool execution duration by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		LLMTurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "llm_turns_total",
			Help:      "LLM request turns started, by model.",
		}, []string{"model"}),

		ApprovalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "approvals_total",
			Help:      "Non-cached approval decisions, by decision.",
		}, []string{"decision"}),

		CompactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "compactions_total",
			Help:      "Context-recovery actions taken after a context_length_exceeded event.",
		}, []string{"action"}),

		ContextOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Name:      "context_overflows_total",
			Help:      "Times a turn finished with FinishLength, triggering context recovery.",
		}),
	}
}

// Hook builds a wal.Hook that updates every counter/histogram above from
// the run's own event stream, so wiring observability into a run never
// touches loop.AgentLoop's turn-execution logic — it only subscribes to
// what that logic already emits.
func (m *Metrics) Hook() func(e engine.Event) {
	var mu sync.Mutex
	starts := map[string]time.Time{}

	return func(e engine.Event) {
		switch e.Type {
		case engine.EventRunStarted:
			mu.Lock()
			starts[e.RunID] = e.Timestamp
			mu.Unlock()

		case engine.EventLLMRequestStarted:
			model := fmt.Sprint(e.Payload["model"])
			m.LLMTurnsTotal.WithLabelValues(model).Inc()

		case engine.EventToolCallFinished:
			name, _ := e.Payload["name"].(string)
			outcome := "ok"
			var durationSec float64
			if result, ok := e.Payload["result"].(engine.ToolResultPayload); ok {
				if !result.OK {
					outcome = "error"
					if result.ErrorKind != "" {
						outcome = string(result.ErrorKind)
					}
				}
				durationSec = float64(result.DurationMs) / 1000.0
			}
			m.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
			m.ToolCallDuration.WithLabelValues(name).Observe(durationSec)

		case engine.EventContextLenExceeded:
			m.ContextOverflows.Inc()

		case engine.EventContextCompacted:
			m.CompactionsTotal.WithLabelValues("compact").Inc()

		case engine.EventApprovalDecided:
			decision := fmt.Sprint(e.Payload["decision"])
			m.ApprovalsTotal.WithLabelValues(decision).Inc()

		case engine.EventRunCompleted, engine.EventRunFailed, engine.EventRunCancelled:
			outcome := "completed"
			switch e.Type {
			case engine.EventRunFailed:
				outcome = "failed"
			case engine.EventRunCancelled:
				outcome = "cancelled"
			}
			m.RunsTotal.WithLabelValues(outcome).Inc()

			mu.Lock()
			started, ok := starts[e.RunID]
			delete(starts, e.RunID)
			mu.Unlock()
			if ok {
				m.RunDuration.WithLabelValues(outcome).Observe(e.Timestamp.Sub(started).Seconds())
			}
		}
	}
}
