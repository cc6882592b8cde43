// Package observe holds the OpenTelemetry metric instruments for the server
// and the provider setup that exposes them to Prometheus.
//
// Tests should build instruments with [NewMetrics] over their own
// [metric.MeterProvider]; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/himanishpuri/sonicres"

// Metrics holds every instrument used by the streaming pipeline.
type Metrics struct {
	// ActiveSessions tracks connections that hold a live session.
	ActiveSessions metric.Int64UpDownCounter

	// FramesReceived counts binary audio frames appended to session buffers.
	FramesReceived metric.Int64Counter

	// BytesReceived counts audio bytes appended to session buffers.
	BytesReceived metric.Int64Counter

	// Outcomes counts terminal outcomes. Attribute "code" is "ok" or an error code.
	Outcomes metric.Int64Counter

	// JobsRejected counts jobs that could not be queued.
	JobsRejected metric.Int64Counter

	JobDuration    metric.Float64Histogram
	DecodeDuration metric.Float64Histogram
	MatchDuration  metric.Float64Histogram

	// HTTPRequestDuration covers the REST surface. Attributes "method", "path".
	HTTPRequestDuration metric.Float64Histogram
}

// Decode and match can legitimately take tens of seconds on long uploads.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("sonicres.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}
	if met.FramesReceived, err = m.Int64Counter("sonicres.frames.received",
		metric.WithDescription("Binary audio frames accepted into session buffers."),
	); err != nil {
		return nil, err
	}
	if met.BytesReceived, err = m.Int64Counter("sonicres.bytes.received",
		metric.WithDescription("Audio bytes accepted into session buffers."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("sonicres.outcomes",
		metric.WithDescription("Terminal outcomes delivered, by code."),
	); err != nil {
		return nil, err
	}
	if met.JobsRejected, err = m.Int64Counter("sonicres.jobs.rejected",
		metric.WithDescription("Processing jobs that could not be queued."),
	); err != nil {
		return nil, err
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.JobDuration, "sonicres.job.duration", "Latency of a processing job from finalize to delivery."},
		{&met.DecodeDuration, "sonicres.decode.duration", "Latency of decoding a session to canonical PCM."},
		{&met.MatchDuration, "sonicres.match.duration", "Latency of matching decoded audio."},
		{&met.HTTPRequestDuration, "sonicres.http.request.duration", "HTTP request latency by method and path."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider. Panics if instrument creation fails.
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

// RecordOutcome increments the outcome counter for code.
func (m *Metrics) RecordOutcome(ctx context.Context, code string) {
	m.Outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordFrame accounts one accepted binary frame of n bytes.
func (m *Metrics) RecordFrame(ctx context.Context, n int) {
	m.FramesReceived.Add(ctx, 1)
	m.BytesReceived.Add(ctx, int64(n))
}
