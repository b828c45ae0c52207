package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/observability"
)

// SourceHeader is set by dispatcher handlers to "network" or "cache".
const SourceHeader = "X-Textlens-Source"

// HTTP metrics
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDuration   = "http_request_duration_ms"
	HTTPRequestSizeBytes  = "http_request_size_bytes"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
	GatewayResponsesTotal = "gateway_responses_total"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// RequestMetrics records every request under its route pattern and, for
// dispatcher calls, the operation and whether the answer came from the
// network or the cache. The completed request is logged either way.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		route, operation := RouteLabel(r), Operation(r)
		status := rec.code()
		source := rec.Header().Get(SourceHeader)

		if sys := observability.TelemetrySystem; sys != nil {
			labels := map[string]string{
				"method":    r.Method,
				"route":     route,
				"operation": operation,
				"status":    strconv.Itoa(status),
			}
			sizeLabels := map[string]string{"method": r.Method, "route": route}

			_ = sys.Counter(HTTPRequestsTotal, 1, labels)
			_ = sys.Histogram(HTTPRequestDuration, duration, labels)
			if r.ContentLength > 0 {
				_ = sys.Gauge(HTTPRequestSizeBytes, float64(r.ContentLength), sizeLabels)
			}
			_ = sys.Gauge(HTTPResponseSizeBytes, float64(rec.written), sizeLabels)

			if status >= http.StatusBadRequest {
				errorLabels := map[string]string{
					"method":     r.Method,
					"route":      route,
					"operation":  operation,
					"status":     strconv.Itoa(status),
					"error_type": errorType(status),
				}
				_ = sys.Counter(HTTPErrorsTotal, 1, errorLabels)
			}

			if operation != OperationNone && source != "" {
				_ = sys.Counter(GatewayResponsesTotal, 1, map[string]string{
					"operation": operation,
					"source":    source,
					"status":    strconv.Itoa(status),
				})
			}
		}

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.String("operation", operation),
				zap.String("source", source),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.Int64("request_size", r.ContentLength),
				zap.Int64("response_size", rec.written),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		}
	})
}

func errorType(status int) string {
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}
