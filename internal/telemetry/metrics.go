// Package telemetry installs the OpenTelemetry meter provider used by the
// risk service and reports collected totals through the process logger.
package telemetry

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// NewMeterProvider returns a provider that logs counter and histogram
// totals every interval. Call Shutdown on it to flush the final totals.
func NewMeterProvider(interval time.Duration) *sdkmetric.MeterProvider {
	reader := sdkmetric.NewPeriodicReader(logExporter{}, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// InstallGlobal makes provider the process-wide meter provider.
func InstallGlobal(provider *sdkmetric.MeterProvider) {
	otel.SetMeterProvider(provider)
}

// Totals flattens collected int64 counters into a map keyed by instrument
// name, with attributes appended as "name{k=v,...}". Histograms are keyed
// by name with a ".count" suffix.
func Totals(rm metricdata.ResourceMetrics) map[string]int64 {
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name, dp.Attributes)] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[seriesName(m.Name+".count", dp.Attributes)] += int64(dp.Count)
				}
			}
		}
	}
	return out
}

func seriesName(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	return name + "{" + attrs.Encoded(attribute.DefaultEncoder()) + "}"
}

// logExporter writes every collected series as one log line.
type logExporter struct{}

func (logExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (logExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (logExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	totals := Totals(*rm)
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		log.Info().Str("series", name).Int64("total", totals[name]).Msg("Metric")
	}
	return nil
}

func (logExporter) ForceFlush(ctx context.Context) error { return nil }

func (logExporter) Shutdown(ctx context.Context) error { return nil }
