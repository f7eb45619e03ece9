package assess

import (
	"context"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/internal/telemetry"
)

// meteredService returns a facade recording into a manual reader.
func (s *ServiceSuite) meteredService(opts ...Option) (*Service, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s.T().Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return s.service(append(opts, WithMeter(provider.Meter(meterName)))...), reader
}

func (s *ServiceSuite) totals(reader *sdkmetric.ManualReader) map[string]int64 {
	var rm metricdata.ResourceMetrics
	s.Require().NoError(reader.Collect(context.Background(), &rm))
	return telemetry.Totals(rm)
}

func (s *ServiceSuite) TestMetrics_GoodScenarios_OnDeviceSuccess() {
	svc, reader := s.meteredService()

	_, err := svc.AssessRisk(context.Background(), s.answers)
	s.Require().NoError(err)

	got := s.totals(reader)
	s.EqualValues(1, got["contraceptiq.assessments{source=on-device}"])
	s.EqualValues(1, got["contraceptiq.assessments.duration.count{source=on-device}"])
	s.Zero(got["contraceptiq.assessments.fallbacks{kind=model_load}"])
}

func (s *ServiceSuite) TestMetrics_GoodScenarios_FallbackCounted() {
	s.predictor.err = apperr.New(apperr.KindModelLoad, "riskmodel.Load", "artifact missing", nil)
	svc, reader := s.meteredService()

	_, err := svc.AssessRisk(context.Background(), s.answers)
	s.Require().NoError(err)

	got := s.totals(reader)
	s.EqualValues(1, got["contraceptiq.assessments.fallbacks{kind=model_load}"])
	s.EqualValues(1, got["contraceptiq.assessments{source=remote}"])
	s.Zero(got["contraceptiq.assessments.failures{kind=model_load}"])
}

func (s *ServiceSuite) TestMetrics_GoodScenarios_CoalescedCounted() {
	s.predictor.gate = make(chan struct{})
	svc, reader := s.meteredService()
	key := RequestKey(s.answers)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.AssessRisk(context.Background(), s.answers)
			errs <- err
		}()
	}
	s.Eventually(func() bool { return svc.dedup.Waiters(key) == 1 }, time.Second, time.Millisecond)
	close(s.predictor.gate)
	s.Require().NoError(<-errs)
	s.Require().NoError(<-errs)

	got := s.totals(reader)
	s.EqualValues(1, got["contraceptiq.assessments.coalesced"])
	s.EqualValues(1, got["contraceptiq.assessments{source=on-device}"], "the shared execution is counted once")
}

func (s *ServiceSuite) TestMetrics_BadScenarios_FailureCountedByKind() {
	s.predictor.err = apperr.New(apperr.KindInference, "riskmodel.Predict", "crashed", nil)
	s.remote.err = apperr.New(apperr.KindNetwork, "remote", "connection refused", nil)
	svc, reader := s.meteredService()

	_, err := svc.AssessRisk(context.Background(), s.answers)
	s.Require().Error(err)

	got := s.totals(reader)
	s.EqualValues(1, got["contraceptiq.assessments.failures{kind=inference}"])
	s.EqualValues(1, got["contraceptiq.assessments.fallbacks{kind=inference}"])
	s.Zero(got["contraceptiq.assessments{source=remote}"])
}

func (s *ServiceSuite) TestMetrics_EdgeCases_NoRemoteSkipsFallback() {
	s.predictor.err = apperr.New(apperr.KindModelLoad, "riskmodel.Load", "artifact missing", nil)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	svc := NewService(s.predictor, WithMeter(provider.Meter(meterName)))

	_, err := svc.AssessRisk(context.Background(), s.answers)
	s.Require().Error(err)

	got := s.totals(reader)
	s.EqualValues(1, got["contraceptiq.assessments.failures{kind=model_load}"])
	s.Zero(got["contraceptiq.assessments.fallbacks{kind=model_load}"])
}
