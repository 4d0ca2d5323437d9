package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"auricle.stage.duration", m.StageDuration},
		{"auricle.pipeline.duration", m.PipelineDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "asr", 250*time.Millisecond)
	m.RecordStage(ctx, "asr", 150*time.Millisecond)
	m.RecordStage(ctx, "tts", 400*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "auricle.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	// Find the data point with stage=asr.
	for _, dp := range hist.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "stage" && kv.Value.AsString() == "asr" {
				if dp.Count != 2 {
					t.Errorf("sample count = %d, want 2", dp.Count)
				}
				return
			}
		}
	}
	t.Error("data point with stage=asr not found")
}

func TestRecordDrop(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDrop(ctx, "tts", "interrupted")
	m.RecordDrop(ctx, "tts", "interrupted")
	m.RecordDrop(ctx, "llm", "stale_session")

	rm := collect(t, reader)
	met := findMetric(rm, "auricle.tasks.dropped")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	// Find the data point with reason=interrupted.
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "reason" && kv.Value.AsString() == "interrupted" {
				if dp.Value != 2 {
					t.Errorf("counter value = %d, want 2", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with reason=interrupted not found")
}

func TestRecordEngineError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEngineError(ctx, "tts")

	rm := collect(t, reader)
	met := findMetric(rm, "auricle.engine.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("counter value = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestUtteranceAndSentenceCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.UtterancesDetected.Add(ctx, 1)
	m.UtterancesDetected.Add(ctx, 1)
	m.SentencesPlayed.Add(ctx, 3)

	rm := collect(t, reader)

	counters := []struct {
		name string
		want int64
	}{
		{"auricle.utterances.detected", 2},
		{"auricle.sentences.played", 3},
	}

	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordQueueDepth(ctx, "asr", 3)
	m.RecordQueueDepth(ctx, "asr", 5)

	rm := collect(t, reader)
	met := findMetric(rm, "auricle.queue.depth")
	if met == nil {
		t.Fatal("metric not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatal("metric is not a gauge")
	}
	if len(gauge.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	// Gauges keep the last recorded value.
	if got := gauge.DataPoints[0].Value; got != 5 {
		t.Errorf("gauge value = %d, want 5", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "auricle.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
