package assess

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/pkg/models"
)

const meterName = "github.com/thebtf/contraceptiq/internal/assess"

// serviceMetrics holds the facade's instruments.
type serviceMetrics struct {
	assessments metric.Int64Counter
	fallbacks   metric.Int64Counter
	coalesced   metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

func newServiceMetrics(meter metric.Meter) *serviceMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m, err := buildInstruments(meter)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create assessment metrics, using no-op instruments")
		m, _ = buildInstruments(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildInstruments(meter metric.Meter) (*serviceMetrics, error) {
	var (
		m   serviceMetrics
		err error
	)
	if m.assessments, err = meter.Int64Counter("contraceptiq.assessments",
		metric.WithDescription("Completed risk assessments by source"),
		metric.WithUnit("{assessment}")); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("contraceptiq.assessments.fallbacks",
		metric.WithDescription("On-device failures that fell back to the remote service"),
		metric.WithUnit("{assessment}")); err != nil {
		return nil, err
	}
	if m.coalesced, err = meter.Int64Counter("contraceptiq.assessments.coalesced",
		metric.WithDescription("Requests that joined an identical in-flight assessment"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("contraceptiq.assessments.failures",
		metric.WithDescription("Assessments that failed on every path, by error kind"),
		metric.WithUnit("{assessment}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("contraceptiq.assessments.duration",
		metric.WithDescription("Assessment latency by source"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *serviceMetrics) recordSuccess(ctx context.Context, source models.AssessmentSource, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("source", string(source)))
	m.assessments.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}

func (m *serviceMetrics) recordFallback(ctx context.Context, cause error) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(apperr.KindOf(cause)))))
}

func (m *serviceMetrics) recordCoalesced(ctx context.Context) {
	m.coalesced.Add(ctx, 1)
}

func (m *serviceMetrics) recordFailure(ctx context.Context, kind apperr.Kind) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
