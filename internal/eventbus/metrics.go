package eventbus

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type dispatcherMetrics struct {
	publications       metric.Int64Counter
	subscriberFailures metric.Int64Counter
	quarantined        metric.Int64Counter
	publishDuration    metric.Float64Histogram
}

func newDispatcherMetrics(provider metric.MeterProvider) (dispatcherMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("convention-outbox.eventbus")

	var (
		metrics dispatcherMetrics
		err     error
	)

	metrics.publications, err = meter.Int64Counter(
		"outbox.publications",
		metric.WithDescription("Number of publication rounds recorded on outbox events"),
		metric.WithUnit("{publication}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create outbox.publications counter: %w", err)
	}

	metrics.subscriberFailures, err = meter.Int64Counter(
		"outbox.subscriber.failures",
		metric.WithDescription("Number of subscriber callbacks that failed, panicked or timed out"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create outbox.subscriber.failures counter: %w", err)
	}

	metrics.quarantined, err = meter.Int64Counter(
		"outbox.events.quarantined",
		metric.WithDescription("Number of events that reached failed-to-many-times"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create outbox.events.quarantined counter: %w", err)
	}

	metrics.publishDuration, err = meter.Float64Histogram(
		"outbox.publish.duration",
		metric.WithDescription("Time taken to run one publication round"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create outbox.publish.duration histogram: %w", err)
	}

	return metrics, nil
}
