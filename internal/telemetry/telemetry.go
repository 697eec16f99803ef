// Package telemetry wraps OpenTelemetry tracing, adapted from the
// teacher's internal/telemetry: Init wires an OTLP exporter when enabled,
// otherwise installs a no-op tracer so a disabled feature costs nothing
// on the hot path. tinyrpc spans one per dispatched frame rather than one
// per NFS procedure call, and derives the span's trace id deterministically
// from the wire header's 32-byte trace_id instead of letting the SDK mint
// a random one, so a trace started by a client call and a trace recorded
// by the worker that served it share an id without any out-of-band
// correlation.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	tracer         trace.Tracer
	tracerOnce     sync.Once
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Init initializes the OpenTelemetry SDK per cfg. Returns a shutdown func
// to flush/close the exporter; when disabled, shutdown is a no-op and the
// global tracer stays a noop.Tracer.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		enabled = false
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}
	enabled = true

	var opts []otlptracegrpc.Option
	opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = tracerProvider.Tracer(cfg.ServiceName)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tracerProvider.Shutdown(shutdownCtx)
	}, nil
}

// Tracer returns the global tracer, installing a no-op one on first use
// if Init was never called (e.g. in unit tests).
func Tracer() trace.Tracer {
	tracerOnce.Do(func() {
		if tracer == nil {
			tracer = noop.NewTracerProvider().Tracer("tinyrpc")
		}
	})
	return tracer
}

func IsEnabled() bool { return enabled }

// SpanContextFromFrameTraceID builds a remote SpanContext whose TraceID is
// the frame header's first 16 bytes and whose SpanID is the next 8 —
// deterministic rather than random, so the same wire trace_id always maps
// to the same OTel trace.
func SpanContextFromFrameTraceID(traceID [32]byte) trace.SpanContext {
	var tid trace.TraceID
	var sid trace.SpanID
	copy(tid[:], traceID[0:16])
	copy(sid[:], traceID[16:24])
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

// StartFrameSpan starts a span for dispatching one frame, parented to the
// frame's wire trace_id via SpanContextFromFrameTraceID.
func StartFrameSpan(ctx context.Context, name string, traceID [32]byte) (context.Context, trace.Span) {
	sc := SpanContextFromFrameTraceID(traceID)
	ctx = trace.ContextWithSpanContext(ctx, sc)
	return Tracer().Start(ctx, name)
}

// RecordError records err on the span in ctx and sets its status to Error.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
