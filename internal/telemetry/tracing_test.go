package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), Options{
		ServiceName: "fraud-test",
		Exporter:    exporter,
		Sync:        true,
	})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := Tracer("test").Start(context.Background(), "predict")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "predict", spans[0].Name)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestInitTracerProviderRequiresName(t *testing.T) {
	_, err := InitTracerProvider(context.Background(), Options{})
	require.Error(t, err)
}

func TestLogExporterWritesSpans(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tp, err := InitTracerProvider(context.Background(), Options{
		ServiceName: "fraud-test",
		Exporter:    NewLogExporter(zap.New(core)),
		Sync:        true,
	})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := Tracer("test").Start(context.Background(), "score")
	span.End()

	entries := logs.FilterMessage("span").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "score", entries[0].ContextMap()["name"])
}
