// Package observe provides application-wide observability primitives for
// Hardy: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus exporter bridge installed by
// [InitProvider]. [DefaultMetrics] is a package-level instance for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hardy metrics.
const meterName = "github.com/quilang-hardware/hardy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Sessions ---

	// ActiveSessions is 1 while a conversation is live, 0 otherwise.
	ActiveSessions metric.Int64UpDownCounter

	// SessionConnects counts connect attempts. Use with attribute:
	//   attribute.String("status", "ok"|"device_error"|"transport_error"|"cancelled")
	SessionConnects metric.Int64Counter

	// --- Tools ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool handler latency.
	ToolDuration metric.Float64Histogram

	// --- Media ---

	// AudioFramesSent counts microphone frames handed to the transport.
	AudioFramesSent metric.Int64Counter

	// AudioFramesDropped counts microphone frames discarded because the
	// outbound queue was full or the transport rejected them.
	AudioFramesDropped metric.Int64Counter

	// PlaybackChunks counts inbound speech chunks scheduled for playout.
	PlaybackChunks metric.Int64Counter

	// PlaybackInterruptions counts barge-in flushes.
	PlaybackInterruptions metric.Int64Counter

	// VideoFrames counts sampled camera frames. Use with attribute:
	//   attribute.String("status", "sent"|"dropped")
	VideoFrames metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control API latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// store round-trips inside a live conversation.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("hardy.sessions.active",
		metric.WithDescription("Number of live assistant sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionConnects, err = m.Int64Counter("hardy.session.connects",
		metric.WithDescription("Session connect attempts by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("hardy.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("hardy.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AudioFramesSent, err = m.Int64Counter("hardy.audio.frames_sent",
		metric.WithDescription("Microphone frames sent to the assistant."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("hardy.audio.frames_dropped",
		metric.WithDescription("Microphone frames dropped before reaching the assistant."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("hardy.playback.chunks",
		metric.WithDescription("Speech chunks scheduled for playout."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackInterruptions, err = m.Int64Counter("hardy.playback.interruptions",
		metric.WithDescription("Playback flushes caused by the user talking over the assistant."),
	); err != nil {
		return nil, err
	}
	if met.VideoFrames, err = m.Int64Counter("hardy.video.frames",
		metric.WithDescription("Camera frames sampled, by whether they were sent or dropped."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("hardy.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall increments the tool call counter and records the handler
// latency in seconds.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordConnect increments the connect counter for the given outcome.
func (m *Metrics) RecordConnect(ctx context.Context, status string) {
	m.SessionConnects.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordVideoFrame counts one sampled camera frame.
func (m *Metrics) RecordVideoFrame(ctx context.Context, sent bool) {
	status := "dropped"
	if sent {
		status = "sent"
	}
	m.VideoFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
