package internal

import (
	"context"
	"sync"
)

// Telemetry hooks for the search pipeline. The emitter is a no-op until a
// caller registers one (an OpenTelemetry meter, a test recorder).

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

// Search stages reported through EmitLatency.
const (
	stageCount   = "count"
	stagePage    = "page"
	stageHydrate = "hydrate"
)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(context.Context, string, map[string]string, any) {}
)

// RegisterTelemetryEmitter replaces the emitter. nil restores the no-op.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(context.Context, string, map[string]string, any) {}
		return
	}
	teleImpl = fn
}

func emitter() telemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitLatency records the latency of a search stage in milliseconds.
// name: "formtab_search_latency_ms" with label {"stage": "count"|"page"|"hydrate"}
func EmitLatency(ctx context.Context, stage string, ms int64) {
	emitter()(ctx, "formtab_search_latency_ms", map[string]string{"stage": stage}, ms)
}

// EmitRowCount records the rows a stage produced on a backend.
// name: "formtab_search_rows" with label {"backend": "postgres"|"duckdb", "stage": ...}
func EmitRowCount(ctx context.Context, backend, stage string, rows int64) {
	emitter()(ctx, "formtab_search_rows", map[string]string{"backend": backend, "stage": stage}, rows)
}
