package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string)
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func TestTraceQuery_Success(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "GetAttempt", "SELECT id FROM checkout_attempts WHERE id = $1")
	end(nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "db.GetAttempt" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	attrs := spanAttrs(spans[0])
	if attrs["db.system"] != "postgresql" {
		t.Errorf("db.system = %q", attrs["db.system"])
	}
	if attrs["db.statement"] != "SELECT id FROM checkout_attempts WHERE id = $1" {
		t.Errorf("db.statement = %q", attrs["db.statement"])
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("status = %v, want Unset", spans[0].Status.Code)
	}
}

func TestTraceRedis_Error(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceRedis(context.Background(), "SaveCart", "cart:s1")
	end(errors.New("READONLY You can't write against a read only replica"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := spanAttrs(spans[0])
	if attrs["db.system"] != "redis" || attrs["db.redis.key"] != "cart:s1" {
		t.Errorf("unexpected attributes %v", attrs)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}

func TestTraceQuery_PropagatesContext(t *testing.T) {
	setupTestTracer(t)

	ctx, end := TraceQuery(context.Background(), "Insert", "INSERT ...")
	defer end(nil)

	ctx2, end2 := TraceQuery(ctx, "Nested", "SELECT 1")
	end2(nil)
	if ctx2 == ctx {
		t.Error("expected a derived context")
	}
}

func TestSlowQueryLogging(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Millisecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "SlowOne", "SELECT pg_sleep(1)")
	time.Sleep(5 * time.Millisecond)
	end(nil)

	if !bytes.Contains(buf.Bytes(), []byte("slow query detected")) {
		t.Fatalf("expected slow query log, got %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("SlowOne")) {
		t.Errorf("expected operation name in log, got %q", buf.String())
	}
}

func TestSlowQueryLogging_Disabled(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	SetSlowQueryLogging(0, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "Any", "SELECT 1")
	time.Sleep(2 * time.Millisecond)
	end(nil)

	if buf.Len() != 0 {
		t.Errorf("expected no log, got %q", buf.String())
	}
}
