// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge and HTTP
// middleware that records request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package
// level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/auricle-ai/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage processing latency. Use with
	// attribute.String("stage", "asr"|"llm"|"tts"|"playback").
	StageDuration metric.Float64Histogram

	// PipelineDuration tracks utterance-to-playback latency, from the
	// moment the monitor emitted the task to the start of audio output.
	PipelineDuration metric.Float64Histogram

	// UtterancesDetected counts utterances emitted by the speech monitor.
	UtterancesDetected metric.Int64Counter

	// SentencesPlayed counts answer sentences that reached the speaker.
	SentencesPlayed metric.Int64Counter

	// TasksDropped counts tasks discarded before playback. Use with
	// attributes: attribute.String("stage", ...), attribute.String("reason", ...).
	TasksDropped metric.Int64Counter

	// EngineErrors counts inference backend failures. Use with
	// attribute.String("engine", "asr"|"llm"|"tts").
	EngineErrors metric.Int64Counter

	// QueueDepth reports the live depth of each inter-stage queue. Use
	// with attribute.String("queue", ...).
	QueueDepth metric.Int64Gauge

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("auricle.stage.duration",
		metric.WithDescription("Processing latency per pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("auricle.pipeline.duration",
		metric.WithDescription("Latency from utterance detection to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.UtterancesDetected, err = m.Int64Counter("auricle.utterances.detected",
		metric.WithDescription("Total utterances emitted by the speech monitor."),
	); err != nil {
		return nil, err
	}
	if met.SentencesPlayed, err = m.Int64Counter("auricle.sentences.played",
		metric.WithDescription("Total answer sentences played."),
	); err != nil {
		return nil, err
	}
	if met.TasksDropped, err = m.Int64Counter("auricle.tasks.dropped",
		metric.WithDescription("Total tasks discarded before playback by stage and reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("auricle.engine.errors",
		metric.WithDescription("Total inference backend failures by engine."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64Gauge("auricle.queue.depth",
		metric.WithDescription("Current depth of each inter-stage queue."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("auricle.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one stage's processing latency.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDrop records a discarded task.
func (m *Metrics) RecordDrop(ctx context.Context, stage, reason string) {
	m.TasksDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("reason", reason),
		))
}

// RecordEngineError records an inference backend failure.
func (m *Metrics) RecordEngineError(ctx context.Context, engine string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("engine", engine)))
}

// RecordQueueDepth records the current depth of one queue.
func (m *Metrics) RecordQueueDepth(ctx context.Context, queue string, depth int) {
	m.QueueDepth.Record(ctx, int64(depth),
		metric.WithAttributes(attribute.String("queue", queue)))
}
