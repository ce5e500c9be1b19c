// Package telemetry defines the logging, metrics and tracing façade shared
// by every component, so none of them import a concrete logging library
// directly.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger is a structured, leveled logger scoped to a request or
	// execution. Key-values are passed as alternating key/value pairs,
	// mirroring goa.design/clue/log's Fielder convention.
	Logger interface {
		Debug(ctx context.Context, msg string, kvs ...any)
		Info(ctx context.Context, msg string, kvs ...any)
		Warn(ctx context.Context, msg string, kvs ...any)
		Error(ctx context.Context, msg string, kvs ...any)
		// With returns a logger that always includes the given key-values.
		With(kvs ...any) Logger
	}

	// Metrics records counters, timers and gauges tagged with free-form
	// key-values.
	Metrics interface {
		IncCounter(name string, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer opens spans for a unit of work.
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single open tracing span.
	Span interface {
		SetAttribute(key string, value any)
		RecordError(err error)
		End()
	}
)
