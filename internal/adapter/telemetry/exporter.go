package telemetry

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans as logrus entries.
type LogExporter struct {
	Log   *logrus.Entry
	Level logrus.Level
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		fields := logrus.Fields{
			"span":        span.Name(),
			"trace_id":    sc.TraceID().String(),
			"span_id":     sc.SpanID().String(),
			"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		}
		if span.Parent().IsValid() {
			fields["parent_id"] = span.Parent().SpanID().String()
		}
		if st := span.Status(); st.Code == codes.Error {
			fields["error"] = st.Description
		}
		for _, kv := range span.Attributes() {
			fields[string(kv.Key)] = attrValue(kv.Value)
		}
		e.Log.WithFields(fields).Log(e.Level, "Span finished")
	}
	return nil
}

func (e *LogExporter) Shutdown(ctx context.Context) error { return nil }

func attrValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.BOOL:
		return v.AsBool()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.STRING:
		return v.AsString()
	}
	return v.Emit()
}

// Setup installs a global tracer provider that logs every span at level.
// The returned function flushes and shuts the provider down.
func Setup(log *logrus.Entry, level logrus.Level, version string) (func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "narwhal"),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(&LogExporter{Log: log, Level: level}),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
