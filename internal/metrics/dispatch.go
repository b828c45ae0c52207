package metrics

import (
	"time"

	"github.com/textlens/textlens/internal/observability"
)

// Dispatch metrics
const (
	DispatchRequestsTotal           = "dispatch_requests_total"
	DispatchRequestDuration         = "dispatch_request_duration_ms"
	DispatchQueueDepth              = "dispatch_queue_depth"
	DispatchInFlight                = "dispatch_in_flight"
	DispatchCacheLookupsTotal       = "dispatch_cache_lookups_total"
	DispatchThrottleSupersededTotal = "dispatch_throttle_superseded_total"
)

// Cache lookup results
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheCorrupt = "corrupt"
)

// RecordDispatch records one settled request with where it was served from.
func RecordDispatch(endpoint string, source string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchRequestsTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
				"source":   source,
				"outcome":  outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			DispatchRequestDuration,
			duration,
			map[string]string{
				"endpoint": endpoint,
			},
		)
	}
}

// SetQueueDepth sets the number of requests waiting to be dispatched.
func SetQueueDepth(depth int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(DispatchQueueDepth, float64(depth), nil)
	}
}

// SetInFlight sets the number of requests currently executing.
func SetInFlight(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(DispatchInFlight, float64(count), nil)
	}
}

// RecordCacheLookup records a cache read by result (hit, miss, expired, corrupt).
func RecordCacheLookup(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchCacheLookupsTotal,
			1,
			map[string]string{
				"result": result,
			},
		)
	}
}

// RecordThrottleSuperseded records a trailing call replaced by a newer one.
func RecordThrottleSuperseded(action string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchThrottleSupersededTotal,
			1,
			map[string]string{
				"action": action,
			},
		)
	}
}
