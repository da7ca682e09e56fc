// Package observability provides the ambient tracing and metrics layer
// every run passes through: one OTel span per run and per tool call, and
// a fixed set of Prometheus counters/histograms for turns, tool calls,
// approval decisions, and compaction events, narrowed to the spans and
// counters this engine's event stream can actually produce. It stays
// thin: no custom exporters, one hook per signal, driven entirely off
// wal.Emitter's event stream.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillrun/agentcore/internal/engine"
)

// TraceConfig configures Tracer construction.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Tracer wraps an OTel tracer scoped to one process. There is no OTLP
// exporter wiring here: this stays the minimal "spans exist and carry
// attributes" layer. Its spans reach only span processors registered on
// its own provider; a later otel.SetTracerProvider call replaces the
// global provider but does not redirect this Tracer's spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer with an always-on sampler and a resource
// describing this service, and registers its provider as the global one
// (otel.GetTracerProvider returns it afterwards). No exporter is attached.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentcore"
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	t := &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}
	return t, provider.Shutdown
}

// spanTracker keys live spans by the run/turn/step coordinate an event
// carries, since WAL hooks see events, not contexts — there is no
// request-scoped context to thread a span through at the call site.
type spanTracker struct {
	mu    sync.Mutex
	runs  map[string]trace.Span
	tools map[string]trace.Span // keyed by run_id + "/" + call_id
}

func newSpanTracker() *spanTracker {
	return &spanTracker{runs: map[string]trace.Span{}, tools: map[string]trace.Span{}}
}

// Hook builds a wal.Hook (accepted as engine.Event -> consumer) that
// starts a run span at run_started, a child tool span per
// tool_call_started/tool_call_finished pair, and ends the run span at
// whichever terminal event closes the run.
func (t *Tracer) Hook() func(e engine.Event) {
	tracker := newSpanTracker()
	return func(e engine.Event) {
		switch e.Type {
		case engine.EventRunStarted:
			_, span := t.tracer.Start(context.Background(), "agent_run", trace.WithAttributes(
				attribute.String("run_id", e.RunID),
			))
			tracker.mu.Lock()
			tracker.runs[e.RunID] = span
			tracker.mu.Unlock()

		case engine.EventToolCallStarted:
			callID, _ := e.Payload["call_id"].(string)
			name, _ := e.Payload["name"].(string)
			parent := context.Background()
			tracker.mu.Lock()
			if runSpan, ok := tracker.runs[e.RunID]; ok {
				parent = trace.ContextWithSpan(parent, runSpan)
			}
			tracker.mu.Unlock()
			_, span := t.tracer.Start(parent, "tool_call", trace.WithAttributes(
				attribute.String("run_id", e.RunID),
				attribute.String("tool.name", name),
				attribute.String("call_id", callID),
			))
			tracker.mu.Lock()
			tracker.tools[e.RunID+"/"+callID] = span
			tracker.mu.Unlock()

		case engine.EventToolCallFinished:
			callID, _ := e.Payload["call_id"].(string)
			key := e.RunID + "/" + callID
			tracker.mu.Lock()
			span, ok := tracker.tools[key]
			delete(tracker.tools, key)
			tracker.mu.Unlock()
			if !ok {
				return
			}
			if result, ok := e.Payload["result"].(engine.ToolResultPayload); ok && !result.OK {
				kind := string(result.ErrorKind)
				if kind == "" {
					kind = "tool_error"
				}
				span.SetStatus(codes.Error, kind)
			}
			span.End()

		case engine.EventRunCompleted, engine.EventRunFailed, engine.EventRunCancelled:
			tracker.mu.Lock()
			span, ok := tracker.runs[e.RunID]
			delete(tracker.runs, e.RunID)
			tracker.mu.Unlock()
			if !ok {
				return
			}
			if e.Type == engine.EventRunFailed {
				span.SetStatus(codes.Error, stringOr(e.Payload["error_kind"], "run_failed"))
			}
			span.End()
		}
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
