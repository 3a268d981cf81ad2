package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point carrying key=value,
// or -1 when no such point exists.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "searchProduct", "ok", 0.02)
	m.RecordToolCall(ctx, "searchProduct", "ok", 0.03)
	m.RecordToolCall(ctx, "getCustomerDebt", "error", 0.5)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "hardy.tool.calls", "status", "ok"); got != 2 {
		t.Errorf("ok calls = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "hardy.tool.calls", "status", "error"); got != 1 {
		t.Errorf("error calls = %d, want 1", got)
	}

	met := findMetric(rm, "hardy.tool.duration")
	if met == nil {
		t.Fatal("hardy.tool.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("hardy.tool.duration is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration samples = %d, want 3", total)
	}
}

func TestSessionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordConnect(ctx, "ok")
	m.RecordConnect(ctx, "device_error")
	m.RecordConnect(ctx, "ok")
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "hardy.session.connects", "status", "ok"); got != 2 {
		t.Errorf("ok connects = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "hardy.sessions.active", "", ""); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestMediaCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AudioFramesSent.Add(ctx, 10)
	m.AudioFramesDropped.Add(ctx, 2)
	m.PlaybackChunks.Add(ctx, 4)
	m.PlaybackInterruptions.Add(ctx, 1)
	m.RecordVideoFrame(ctx, true)
	m.RecordVideoFrame(ctx, false)
	m.RecordVideoFrame(ctx, false)

	rm := collect(t, reader)

	tests := []struct {
		name       string
		key, value string
		want       int64
	}{
		{name: "hardy.audio.frames_sent", want: 10},
		{name: "hardy.audio.frames_dropped", want: 2},
		{name: "hardy.playback.chunks", want: 4},
		{name: "hardy.playback.interruptions", want: 1},
		{name: "hardy.video.frames", key: "status", value: "sent", want: 1},
		{name: "hardy.video.frames", key: "status", value: "dropped", want: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name+tc.value, func(t *testing.T) {
			if got := sumWhere(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
