// Package otel traces es.Adapter calls with OpenTelemetry.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aminnairi/cristaline/core/es"
)

const instrumentationName = "github.com/aminnairi/cristaline"

// Option configures the tracing decorator.
type Option func(*Adapter)

// WithTracerProvider sets a custom tracer provider. The global provider is
// used otherwise.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(a *Adapter) {
		a.tracer = provider.Tracer(instrumentationName)
	}
}

// WithName adds a store name attribute to every span.
func WithName(name string) Option {
	return func(a *Adapter) {
		a.attrs = append(a.attrs, attribute.String("cristaline.store", name))
	}
}

// Adapter wraps an es.Adapter and records a span for every call.
type Adapter struct {
	next   es.Adapter
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

// archivingAdapter also forwards Archive; it is only used when the wrapped
// adapter supports snapshots.
type archivingAdapter struct {
	*Adapter
	archiver es.Archiver
}

// Wrap decorates next. The result implements es.Archiver exactly when next
// does, so snapshot support is preserved.
func Wrap(next es.Adapter, opts ...Option) es.Adapter {
	a := &Adapter{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(a)
	}
	if archiver, ok := next.(es.Archiver); ok {
		return &archivingAdapter{Adapter: a, archiver: archiver}
	}
	return a
}

func (a *Adapter) Append(ctx context.Context, records ...es.Record) (err error) {
	ctx, span := a.start(ctx, "cristaline.append", attribute.Int("cristaline.records", len(records)))
	defer func() { end(span, err) }()
	return a.next.Append(ctx, records...)
}

func (a *Adapter) ReadAll(ctx context.Context) (records []es.Record, err error) {
	ctx, span := a.start(ctx, "cristaline.read_all")
	defer func() {
		span.SetAttributes(attribute.Int("cristaline.records", len(records)))
		end(span, err)
	}()
	return a.next.ReadAll(ctx)
}

func (a *archivingAdapter) Archive(ctx context.Context, covered int, snapshot es.Record) (err error) {
	ctx, span := a.start(ctx, "cristaline.archive",
		attribute.Int("cristaline.snapshot_bytes", len(snapshot)),
		attribute.Int("cristaline.records", covered),
	)
	defer func() { end(span, err) }()
	return a.archiver.Archive(ctx, covered, snapshot)
}

func (a *Adapter) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(a.attrs...),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var (
	_ es.Adapter  = (*Adapter)(nil)
	_ es.Archiver = (*archivingAdapter)(nil)
)
