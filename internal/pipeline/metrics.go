package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "listory/internal/pipeline"

// metrics records to the global meter provider, which is a no-op unless the
// host process installs an SDK.
type metrics struct {
	attempts       metric.Int64Counter
	fallbackFields metric.Int64Counter
	failures       metric.Int64Counter
	latency        metric.Float64Histogram
}

// newMetrics creates the pipeline instruments. An instrument that fails to
// register stays nil and is skipped when recording; the joined errors are
// returned so the caller can report them once.
func newMetrics(m metric.Meter) (*metrics, error) {
	if m == nil {
		m = otel.GetMeterProvider().Meter(meterName)
	}
	out := &metrics{}
	var errs []error
	var err error
	out.attempts, err = m.Int64Counter("listory.generation.attempts",
		metric.WithDescription("Model calls made by the generation pipeline"))
	errs = append(errs, err)
	out.fallbackFields, err = m.Int64Counter("listory.generation.fallback_fields",
		metric.WithDescription("Fields synthesized without model output"))
	errs = append(errs, err)
	out.failures, err = m.Int64Counter("listory.generation.failures",
		metric.WithDescription("Generations that ended in an error"))
	errs = append(errs, err)
	out.latency, err = m.Float64Histogram("listory.generation.model_latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of model calls"))
	errs = append(errs, err)
	return out, errors.Join(errs...)
}

func marketAttrs(marketplace, platform string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("marketplace", marketplace),
		attribute.String("platform", platform),
	)
}

func (m *metrics) attempt(ctx context.Context, marketplace, platform string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, marketAttrs(marketplace, platform))
	}
	if m.latency != nil {
		attrs := []attribute.KeyValue{attribute.String("marketplace", marketplace)}
		if err != nil {
			attrs = append(attrs, attribute.String("kind", string(classify(ctx, err))))
		}
		m.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func (m *metrics) fallback(ctx context.Context, marketplace, platform string, n int) {
	if m == nil || m.fallbackFields == nil || n == 0 {
		return
	}
	m.fallbackFields.Add(ctx, int64(n), marketAttrs(marketplace, platform))
}

func (m *metrics) failure(ctx context.Context, kind Kind) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
