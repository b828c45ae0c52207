package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

var (
	// TelemetrySystem receives dispatcher, cache and HTTP metrics. Nil means
	// telemetry is disabled and every Record* helper is a no-op.
	TelemetrySystem *telemetry.System

	// PrometheusExporter backs TelemetrySystem and serves /metrics on its
	// own listener.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts a Prometheus exporter on port (0 picks a free one) and
// routes telemetry through it. Metric names are prefixed with namespace.
func InitMetrics(namespace string, port int) error {
	if port < 0 {
		port = 0
	}

	exporter := exporters.NewPrometheusExporter(namespace, net.JoinHostPort("", strconv.Itoa(port)))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return fmt.Errorf("telemetry system: %w", err)
	}

	bound, err := boundPort(exporter.GetAddr())
	if err != nil {
		bound = port
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	metricsPort = bound
	return nil
}

// ShutdownMetrics stops the exporter listener and disables telemetry.
func ShutdownMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort = 0
	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// GetMetricsPort reports the exporter's bound port, or 0 before InitMetrics.
func GetMetricsPort() int {
	return metricsPort
}

func boundPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
