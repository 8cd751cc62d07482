// Package observe provides OpenTelemetry metrics for cooking sessions and a
// Prometheus scrape endpoint.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider];
// production code can use [DefaultMetrics], which binds to the global
// provider installed by [InitProvider] (or a no-op provider if none is).
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
const meterName = "github.com/hammamikhairi/storyplated"

// Metrics holds all metric instruments for the application. Safe for
// concurrent use.
type Metrics struct {
	// Commands counts applied step/playback commands. Attributes:
	// source (voice, manual) and command.
	Commands metric.Int64Counter

	// IgnoredUtterances counts recognized speech that matched no command.
	IgnoredUtterances metric.Int64Counter

	// RecognitionErrors counts recognizer failures by kind.
	RecognitionErrors metric.Int64Counter

	// NarrationErrors counts narration sink failures.
	NarrationErrors metric.Int64Counter

	// QuestionDuration tracks character Q&A latency. Attributes: character, status.
	QuestionDuration metric.Float64Histogram

	// CatalogLoads counts recipe list loads by status.
	CatalogLoads metric.Int64Counter

	// ActiveSessions tracks sessions that have been created and not stopped.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds, sized for remote
// chat completions.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Commands, err = m.Int64Counter("storyplated.commands",
		metric.WithDescription("Session commands applied, by source and command."),
	); err != nil {
		return nil, err
	}
	if met.IgnoredUtterances, err = m.Int64Counter("storyplated.utterances.ignored",
		metric.WithDescription("Recognized utterances that matched no command."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("storyplated.recognition.errors",
		metric.WithDescription("Speech recognition errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.NarrationErrors, err = m.Int64Counter("storyplated.narration.errors",
		metric.WithDescription("Narration sink failures."),
	); err != nil {
		return nil, err
	}
	if met.QuestionDuration, err = m.Float64Histogram("storyplated.question.duration",
		metric.WithDescription("Latency of character question answering."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CatalogLoads, err = m.Int64Counter("storyplated.catalog.loads",
		metric.WithDescription("Recipe list loads by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("storyplated.active_sessions",
		metric.WithDescription("Number of live cooking sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider].
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

// RecordCommand counts one applied command.
func (m *Metrics) RecordCommand(ctx context.Context, source, command string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("command", command),
		),
	)
}

// RecordIgnoredUtterance counts one utterance outside the vocabulary.
func (m *Metrics) RecordIgnoredUtterance(ctx context.Context) {
	m.IgnoredUtterances.Add(ctx, 1)
}

// RecordRecognitionError counts one recognizer error.
func (m *Metrics) RecordRecognitionError(ctx context.Context, kind string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordNarrationError counts one narration failure.
func (m *Metrics) RecordNarrationError(ctx context.Context, op string) {
	m.NarrationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordQuestion records the latency and outcome of one question.
func (m *Metrics) RecordQuestion(ctx context.Context, character, status string, d time.Duration) {
	m.QuestionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("character", character),
			attribute.String("status", status),
		),
	)
}

// RecordCatalogLoad counts one recipe list load.
func (m *Metrics) RecordCatalogLoad(ctx context.Context, status string) {
	m.CatalogLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// SessionStarted increments the live session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) { m.ActiveSessions.Add(ctx, 1) }

// SessionStopped decrements the live session gauge.
func (m *Metrics) SessionStopped(ctx context.Context) { m.ActiveSessions.Add(ctx, -1) }
