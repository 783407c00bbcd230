package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "x")
	require.False(t, span.SpanContext().IsValid())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")

	_, err = NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter")
}

func TestStartEnd_RecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, ok := Start(context.Background(), tracer, SpanLaunch, attribute.String(AttrEnginePath, "/opt/engine"))
	End(ok, nil)
	_, bad := Start(context.Background(), tracer, SpanSearch)
	End(bad, errors.New("engine busy"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, SpanLaunch, spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String(AttrEnginePath, "/opt/engine"))
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "engine busy", spans[1].Status().Description)
}

func TestStart_NilTracer(t *testing.T) {
	_, span := Start(context.Background(), nil, SpanReady)
	End(span, nil)
	require.False(t, span.SpanContext().IsValid())
}

func TestFileExporter_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traces.jsonl")
	exporter, err := NewFileExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	ctx, parent := Start(context.Background(), tp.Tracer("test"), SpanLaunch)
	_, child := Start(ctx, tp.Tracer("test"), SpanReady, attribute.Int(AttrSessionID, 7))
	child.AddEvent(EventHandshakeDone)
	End(child, nil)
	End(parent, nil)
	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []SpanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	require.Equal(t, SpanReady, records[0].Name)
	require.Equal(t, records[1].SpanID, records[0].ParentSpanID)
	require.Equal(t, "OK", records[0].Status)
	require.Equal(t, float64(7), records[0].Attributes[AttrSessionID])
	require.Equal(t, []string{EventHandshakeDone}, records[0].Events)

	require.Error(t, exporter.ExportSpans(context.Background(), nil))
}
