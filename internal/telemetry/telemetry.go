// Package telemetry wires the OpenTelemetry metrics pipeline into the
// Prometheus exposition endpoint served at /metrics.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Telemetry owns the SDK meter provider backing the global otel API.
// Instruments created through otel.Meter before Setup runs record into
// the no-op provider and are lost, so Setup must precede server
// construction.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	logger        *zap.Logger
}

// Setup creates a meter provider that exports through a Prometheus
// collector and installs it as the global provider. A nil registerer
// uses the default Prometheus registry, which is what the promhttp
// handler on /metrics serves.
func Setup(registerer prometheus.Registerer, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []otelprom.Option{}
	if registerer != nil {
		opts = append(opts, otelprom.WithRegisterer(registerer))
	}

	exporter, err := otelprom.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	logger.Debug("metrics pipeline initialized")

	return &Telemetry{meterProvider: mp, logger: logger}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down meter provider: %w", err)
	}
	return nil
}
