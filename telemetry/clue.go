package telemetry

import (
	"context"
	"time"

	"goa.design/clue/log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClueLogger adapts goa.design/clue/log to the Logger interface.
type ClueLogger struct {
	fields []any
}

// NewClueLogger returns a Logger backed by clue's context-scoped logger.
// The caller is expected to have already called log.Context on the base
// context used to derive request contexts (as clue's own examples do).
func NewClueLogger() *ClueLogger { return &ClueLogger{} }

func (l *ClueLogger) Debug(ctx context.Context, msg string, kvs ...any) {
	log.Debug(ctx, msg, l.fielders(kvs)...)
}

func (l *ClueLogger) Info(ctx context.Context, msg string, kvs ...any) {
	log.Info(ctx, msg, l.fielders(kvs)...)
}

func (l *ClueLogger) Warn(ctx context.Context, msg string, kvs ...any) {
	log.Error(ctx, nil, append(l.fielders(kvs), log.KV{K: "level", V: "warn"}, log.KV{K: "msg", V: msg})...)
}

func (l *ClueLogger) Error(ctx context.Context, msg string, kvs ...any) {
	log.Error(ctx, nil, append(l.fielders(kvs), log.KV{K: "msg", V: msg})...)
}

func (l *ClueLogger) With(kvs ...any) Logger {
	return &ClueLogger{fields: append(append([]any{}, l.fields...), kvs...)}
}

func (l *ClueLogger) fielders(kvs []any) []log.Fielder {
	all := kvSliceToClue(append(append([]any{}, l.fields...), kvs...))
	return all
}

func kvSliceToClue(kvs []any) []log.Fielder {
	out := make([]log.Fielder, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		key, _ := kvs[i].(string)
		out = append(out, log.KV{K: key, V: kvs[i+1]})
	}
	return out
}

// ClueMetrics adapts the global OpenTelemetry MeterProvider to the Metrics
// interface. Gauges are recorded via a synchronous histogram suffixed
// "_gauge" since OTEL's stable metric API has no synchronous gauge
// instrument.
type ClueMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewClueMetrics builds a ClueMetrics recorder scoped to the given
// instrumentation name.
func NewClueMetrics(meter metric.Meter) *ClueMetrics {
	return &ClueMetrics{
		meter:      meter,
		counters:   map[string]metric.Float64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
}

func (m *ClueMetrics) IncCounter(name string, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), 1, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h := m.histogramFor(name)
	if h == nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	h := m.histogramFor(name + "_gauge")
	if h == nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) histogramFor(name string) metric.Float64Histogram {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			return nil
		}
		m.histograms[name] = h
	}
	return h
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}

// ClueTracer adapts an OpenTelemetry Tracer to the Tracer interface.
type ClueTracer struct {
	tracer trace.Tracer
}

// NewClueTracer builds a ClueTracer.
func NewClueTracer(tracer trace.Tracer) *ClueTracer {
	return &ClueTracer{tracer: tracer}
}

func (t *ClueTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &clueSpan{span: span}
}

type clueSpan struct {
	span trace.Span
}

func (s *clueSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *clueSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *clueSpan) End() { s.span.End() }

func toString(v any) string {
	if v == nil {
		return ""
	}
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "unsupported"
}
