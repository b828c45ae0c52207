package metrics

import (
	"strconv"

	"github.com/textlens/textlens/internal/observability"
)

// Error metrics
const (
	ErrorsTotal        = "errors_total"
	ErrorsByRouteTotal = "errors_by_route_total"
	PanicsTotal        = "panics_total"
)

// Where a panic was recovered
const (
	PanicSourceHTTP     = "http"
	PanicSourceQueue    = "queue"
	PanicSourceThrottle = "throttle"
)

// RecordError counts an error response by code and HTTP status.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ErrorsTotal,
			1,
			map[string]string{
				"error_code":  errorCode,
				"http_status": strconv.Itoa(httpStatus),
			},
		)
	}
}

// RecordErrorByRoute counts an error response against the matched route
// pattern and the dispatcher operation it targeted. Both labels must come
// from bounded sets, never from raw request paths.
func RecordErrorByRoute(route, operation, errorCode string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ErrorsByRouteTotal,
			1,
			map[string]string{
				"route":      route,
				"operation":  operation,
				"error_code": errorCode,
			},
		)
	}
}

// RecordPanic counts a recovered panic by where it was caught and the
// operation that was running.
func RecordPanic(source, operation string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			PanicsTotal,
			1,
			map[string]string{
				"source":    source,
				"operation": operation,
			},
		)
	}
}
