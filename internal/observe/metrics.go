// Package observe holds the OpenTelemetry metrics, tracing helpers and HTTP
// middleware shared by the session, the report pipeline and the HTTP server.
//
// [InitProvider] exports metrics through the Prometheus default registry.
// Production code records on [DefaultMetrics]; tests build their own with
// [NewMetrics] and an in-memory reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/soelive"

// Metrics holds the instruments. All of them are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long opening a live session takes, from the
	// connecting status to connected or error. Use with attribute:
	//   attribute.String("status", ...)
	ConnectDuration metric.Float64Histogram

	// RefineDuration tracks report refinement latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	RefineDuration metric.Float64Histogram

	// --- Audio pipeline counters ---

	// FramesSent counts microphone blocks delivered to the remote model.
	FramesSent metric.Int64Counter

	// FramesDropped counts microphone blocks discarded before sending. Use with
	// attribute:
	//   attribute.String("reason", ...): "queue_full", "inactive" or "send_error"
	FramesDropped metric.Int64Counter

	// FramesPlayed counts synthesised buffers fully rendered to the speaker.
	FramesPlayed metric.Int64Counter

	// DecodeErrors counts inbound audio payloads that could not be decoded.
	DecodeErrors metric.Int64Counter

	// Transcripts counts transcript fragments delivered to the host. Use with
	// attribute:
	//   attribute.String("speaker", ...)
	Transcripts metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time, labelled by
	// method, route pattern and status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

// instruments creates instruments on one meter and keeps the first error, so
// NewMetrics reads as a flat list.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) histogram(name, desc string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, append([]metric.Float64HistogramOption{
		metric.WithDescription(desc), metric.WithUnit("s"),
	}, opts...)...)
	b.keep(name, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("observe: instrument %s: %w", name, err)
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	latency := metric.WithExplicitBucketBoundaries(latencyBuckets...)

	met := &Metrics{
		ConnectDuration: b.histogram("soelive.session.connect.duration",
			"Time from connecting to connected or error.", latency),
		RefineDuration: b.histogram("soelive.report.refine.duration",
			"Latency of report refinement.", latency),

		FramesSent:    b.counter("soelive.audio.frames_sent", "Microphone blocks sent to the remote model."),
		FramesDropped: b.counter("soelive.audio.frames_dropped", "Microphone blocks dropped before sending, by reason."),
		FramesPlayed:  b.counter("soelive.audio.frames_played", "Synthesised audio buffers rendered to the speaker."),
		DecodeErrors:  b.counter("soelive.audio.decode_errors", "Inbound audio payloads that failed to decode."),
		Transcripts:   b.counter("soelive.transcripts", "Transcript fragments delivered to the host, by speaker."),

		ProviderRequests: b.counter("soelive.provider.requests", "Provider API requests by provider, kind and status."),
		ProviderErrors:   b.counter("soelive.provider.errors", "Provider errors by provider and kind."),

		ActiveSessions: b.upDown("soelive.active_sessions", "Number of live voice sessions."),

		HTTPRequestDuration: b.histogram("soelive.http.request.duration",
			"HTTP request latency by method, route and status."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared [Metrics], created on first use from
// [otel.GetMeterProvider]. It panics if an instrument cannot be created.
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFrameDropped records a dropped microphone block with its reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranscript records a delivered transcript fragment.
func (m *Metrics) RecordTranscript(ctx context.Context, speaker string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}
