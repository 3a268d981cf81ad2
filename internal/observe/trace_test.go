package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points slog.Default at a text buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

// ── Session ID ───────────────────────────────────────────────────────────────

func TestSessionID_RoundTrip(t *testing.T) {
	t.Parallel()

	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
	ctx := WithSessionID(context.Background(), "s-42")
	if got := SessionID(ctx); got != "s-42" {
		t.Errorf("SessionID = %q, want s-42", got)
	}
}

// ── Spans ────────────────────────────────────────────────────────────────────

func TestStartSpan_TagsSession(t *testing.T) {
	exp := useTracer(t)

	tests := []struct {
		name    string
		ctx     context.Context
		wantTag bool
	}{
		{name: "with session", ctx: WithSessionID(context.Background(), "s-1"), wantTag: true},
		{name: "without session", ctx: context.Background()},
	}
	for _, tc := range tests {
		exp.Reset()
		ctx, span := StartSpan(tc.ctx, "tool searchProduct")
		if TraceID(ctx) == "" {
			t.Errorf("%s: no trace ID after StartSpan", tc.name)
		}
		span.End()

		spans := exp.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("%s: recorded %d spans, want 1", tc.name, len(spans))
		}
		if spans[0].Name != "tool searchProduct" {
			t.Errorf("%s: span name = %q", tc.name, spans[0].Name)
		}
		tagged := false
		for _, kv := range spans[0].Attributes {
			if kv.Key == "session.id" && kv.Value.AsString() == "s-1" {
				tagged = true
			}
		}
		if tagged != tc.wantTag {
			t.Errorf("%s: session.id tagged = %v, want %v", tc.name, tagged, tc.wantTag)
		}
	}
}

func TestTraceID_Format(t *testing.T) {
	useTracer(t)

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 20 {
		ctx, span := StartSpan(context.Background(), "connect")
		id := TraceID(ctx)
		span.End()
		if len(id) != 32 || strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("TraceID = %q, want 32 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate trace ID %s", id)
		}
		seen[id] = true
	}
}

// ── Logger ───────────────────────────────────────────────────────────────────

func TestLogger_Attributes(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name string
		ctx  func() (context.Context, func())
		want []string
		not  []string
	}{
		{
			name: "bare",
			ctx:  func() (context.Context, func()) { return context.Background(), func() {} },
			not:  []string{"session_id=", "trace_id="},
		},
		{
			name: "session only",
			ctx: func() (context.Context, func()) {
				return WithSessionID(context.Background(), "abc"), func() {}
			},
			want: []string{"session_id=abc"},
			not:  []string{"trace_id="},
		},
		{
			name: "session and span",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(WithSessionID(context.Background(), "abc"), "tool")
				return ctx, func() { span.End() }
			},
			want: []string{"session_id=abc", "trace_id=", "span_id="},
		},
	}
	for _, tc := range tests {
		buf := captureLogs(t)
		ctx, done := tc.ctx()
		Logger(ctx).Info("tool call failed")
		done()

		out := buf.String()
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Errorf("%s: log %q missing %q", tc.name, out, w)
			}
		}
		for _, n := range tc.not {
			if strings.Contains(out, n) {
				t.Errorf("%s: log %q should not contain %q", tc.name, out, n)
			}
		}
	}
}
