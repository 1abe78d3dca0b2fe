// Package observability is the Observability Sink: a fire-and-forget
// event/message recorder backed by OpenTelemetry trace and log providers.
// Grounded on nevindra-oasis/observer/observer.go's Init, trimmed to
// trace+log — this sink records discrete UpsertEvent/AppendMessage calls,
// not the metrics histogram set an LLM-cost dashboard needs.
package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nextlevelbuilder/goclaw/observability"

// Sink records execution events and chat messages as OTel spans/log
// records. Every method is fire-and-forget: a recording failure is logged
// internally (via the OTel SDK's own error handler) and never propagated
// to callers, matching spec §4.4's "swallow failures" posture for
// ancillary reporting paths.
type Sink struct {
	tracer trace.Tracer
	logger otellog.Logger
}

// Init wires the OTLP HTTP trace and log exporters from standard OTEL_*
// env vars and returns a ready Sink plus a shutdown func.
func Init(ctx context.Context, serviceName string) (*Sink, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	sink := &Sink{
		tracer: otel.Tracer(scopeName),
		logger: global.GetLoggerProvider().Logger(scopeName),
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return sink, shutdown, nil
}

// UpsertEvent records a point-in-time event (batch promoted, retried,
// delegated, etc.) as a span with the given attributes.
func (s *Sink) UpsertEvent(ctx context.Context, sessionKey, name string, attrs map[string]string) {
	if s == nil || s.tracer == nil {
		return
	}
	_, span := s.tracer.Start(ctx, name)
	defer span.End()
	span.SetAttributes(traceAttrs(sessionKey, attrs)...)
}

// AppendMessage records one chat turn (role + content, truncated) as a
// structured log record.
func (s *Sink) AppendMessage(ctx context.Context, sessionKey, role, content string) {
	if s == nil || s.logger == nil {
		return
	}
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetBody(otellog.StringValue(truncate(content, 2000)))
	rec.AddAttributes(
		otellog.String("session_key", sessionKey),
		otellog.String("role", role),
	)
	s.logger.Emit(ctx, rec)
}

func traceAttrs(sessionKey string, attrs map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+1)
	out = append(out, attribute.String("session_key", sessionKey))
	for k, v := range attrs {
		out = append(out, attribute.String(k, v))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
