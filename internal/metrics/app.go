package metrics

import (
	"time"

	"github.com/textlens/textlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	CommandsTotal = "app_commands_total"
	RetriesTotal  = "app_retries_total"

	JanitorSweepsTotal  = "app_cache_janitor_sweeps_total"
	JanitorRemovedTotal = "app_cache_janitor_removed_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordCommand records a CLI command run with status
func RecordCommand(command string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CommandsTotal,
			1,
			map[string]string{
				"command": command,
				"status":  status,
			},
		)
	}
}

// RecordRetry records one caller-side retry of a failed request.
func RecordRetry(endpoint string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetriesTotal,
			1,
			map[string]string{"endpoint": endpoint},
		)
	}
}

// RecordJanitorSweep records one expired-entry sweep and how many entries it removed.
func RecordJanitorSweep(removed int, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(JanitorSweepsTotal, 1, map[string]string{"status": status})
	if removed > 0 {
		_ = observability.TelemetrySystem.Counter(JanitorRemovedTotal, float64(removed), nil)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
