package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: true, Exporter: ExporterStdout, ServiceName: "talent-test", Writer: &buf}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("talent-test").Start(ctx, "talent.Diff")
	span.End()
	require.NoError(t, shutdown(ctx))

	require.Contains(t, buf.String(), "talent.Diff")
	require.Contains(t, buf.String(), "talent-test")
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	require.ErrorContains(t, err, "zipkin")
}
