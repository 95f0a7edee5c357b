package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, Option) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, WithTracerProvider(provider)
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestOtel_Conformance(t *testing.T) {
	estest.RunAdapterSuite(t, func(t *testing.T) (es.Adapter, func() es.Adapter) {
		inner := es.NewMemoryAdapter()
		return Wrap(inner), func() es.Adapter { return Wrap(inner) }
	})
}

func TestOtel_Spans(t *testing.T) {
	recorder, withProvider := newRecorder(t)
	a := Wrap(es.NewMemoryAdapter(), withProvider, WithName("todo"))

	e := estest.NewEngine(a)
	require.NoError(t, e.Initialize(t.Context()))
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(1)))
	require.NoError(t, e.TakeSnapshot(t.Context()))

	require.Equal(t, []string{"cristaline.read_all", "cristaline.append", "cristaline.archive"}, spanNames(recorder))

	appendSpan := recorder.Ended()[1]
	require.Contains(t, appendSpan.Attributes(), attribute.String("cristaline.store", "todo"))
	require.Contains(t, appendSpan.Attributes(), attribute.Int("cristaline.records", 1))
	require.Equal(t, codes.Unset, appendSpan.Status().Code)
}

type failingAdapter struct{ err error }

func (f failingAdapter) Append(context.Context, ...es.Record) error   { return f.err }
func (f failingAdapter) ReadAll(context.Context) ([]es.Record, error) { return nil, f.err }

func TestOtel_Errors(t *testing.T) {
	recorder, withProvider := newRecorder(t)
	boom := errors.New("boom")
	a := Wrap(failingAdapter{err: boom}, withProvider)

	_, isArchiver := a.(es.Archiver)
	require.False(t, isArchiver)

	require.ErrorIs(t, a.Append(t.Context(), es.Record(`{}`)), boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}
