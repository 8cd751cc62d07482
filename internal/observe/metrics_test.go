package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumWhere returns the summed value of data points carrying key=value.
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
	var total int64
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecordCommand(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "voice", "next")
	m.RecordCommand(ctx, "voice", "next")
	m.RecordCommand(ctx, "manual", "pause")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "storyplated.commands", "source", "voice"); got != 2 {
		t.Errorf("voice commands = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "storyplated.commands", "command", "pause"); got != 1 {
		t.Errorf("pause commands = %d, want 1", got)
	}
}

func TestRecordRecognitionError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordRecognitionError(context.Background(), "no_speech")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "storyplated.recognition.errors", "kind", "no_speech"); got != 1 {
		t.Errorf("no_speech errors = %d, want 1", got)
	}
}

func TestRecordQuestion(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordQuestion(ctx, "Gandalf", "ok", 1200*time.Millisecond)
	m.RecordQuestion(ctx, "Gandalf", "ok", 300*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "storyplated.question.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Fatalf("unexpected data points %+v", hist.DataPoints)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "storyplated.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data %+v", met.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Fatal("DefaultMetrics returned different instances")
	}
}
