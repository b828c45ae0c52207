package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

// newGateway mimics the server's middleware chain in front of a stub
// dispatcher route.
func newGateway() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, RequestMetrics, Recovery)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/{endpoint}", func(w http.ResponseWriter, r *http.Request) {
			switch endpoint := chi.URLParam(r, "endpoint"); endpoint {
			case "summarize":
				SetOperation(r, endpoint)
				w.Header().Set(SourceHeader, "cache")
				_, _ = w.Write([]byte(`{"summary":"s"}`))
			case "sentiment":
				SetOperation(r, endpoint)
				panic("sentiment executor failed")
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})
	})
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func tagsOf(t *testing.T, collector *telemetrytesting.FakeCollector, name string) []map[string]string {
	t.Helper()
	recorded := collector.GetMetricsByName(name)
	tags := make([]map[string]string, 0, len(recorded))
	for _, m := range recorded {
		tags = append(tags, m.Tags)
	}
	return tags
}

func TestRequestMetricsLabelsDispatcherCalls(t *testing.T) {
	collector := setupTelemetry(t)

	rec := serve(newGateway(), http.MethodPost, "/api/summarize", `{"text":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	requests := tagsOf(t, collector, HTTPRequestsTotal)
	require.Len(t, requests, 1)
	assert.Equal(t, map[string]string{
		"method":    http.MethodPost,
		"route":     "/api/{endpoint}",
		"operation": "summarize",
		"status":    "200",
	}, requests[0])

	gateway := tagsOf(t, collector, GatewayResponsesTotal)
	require.Len(t, gateway, 1)
	assert.Equal(t, "cache", gateway[0]["source"])

	assert.Equal(t, 1, collector.CountMetricsByName(HTTPRequestDuration))
	assert.Equal(t, 1, collector.CountMetricsByName(HTTPRequestSizeBytes))
	assert.Equal(t, 1, collector.CountMetricsByName(HTTPResponseSizeBytes))
	assert.Zero(t, collector.CountMetricsByName(HTTPErrorsTotal))
}

func TestRequestMetricsKeepsLabelsBounded(t *testing.T) {
	collector := setupTelemetry(t)
	h := newGateway()

	serve(h, http.MethodPost, "/api/translate-1", "{}")
	serve(h, http.MethodPost, "/api/translate-2", "{}")
	serve(h, http.MethodGet, "/users/123", "")
	serve(h, http.MethodGet, "/health", "")

	var routes []string
	for _, tags := range tagsOf(t, collector, HTTPRequestsTotal) {
		routes = append(routes, tags["route"])
		if tags["route"] != "/health" {
			assert.Equal(t, OperationNone, tags["operation"])
		}
	}
	assert.Equal(t, []string{"/api/{endpoint}", "/api/{endpoint}", RouteUnmatched, "/health"}, routes)

	errorsByType := tagsOf(t, collector, HTTPErrorsTotal)
	require.Len(t, errorsByType, 3)
	assert.Equal(t, "client_error", errorsByType[0]["error_type"])
	assert.Zero(t, collector.CountMetricsByName(GatewayResponsesTotal))
}

func TestRecoveryReportsPanickingOperation(t *testing.T) {
	collector := setupTelemetry(t)

	rec := serve(newGateway(), http.MethodPost, "/api/sentiment", `{"text":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body panicResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Equal(t, "sentiment", body.Error.Details["operation"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body.Error.RequestID)
	assert.NotContains(t, rec.Body.String(), "executor failed")

	panics := tagsOf(t, collector, metrics.PanicsTotal)
	require.Len(t, panics, 1)
	assert.Equal(t, map[string]string{"source": metrics.PanicSourceHTTP, "operation": "sentiment"}, panics[0])

	byRoute := tagsOf(t, collector, metrics.ErrorsByRouteTotal)
	require.Len(t, byRoute, 1)
	assert.Equal(t, "/api/{endpoint}", byRoute[0]["route"])

	requests := tagsOf(t, collector, HTTPRequestsTotal)
	require.Len(t, requests, 1)
	assert.Equal(t, "500", requests[0]["status"])
}

func TestRecoveryReraisesAbortHandler(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, http.MethodGet, "/", "")
	})
}

func TestRequestMetricsWithTelemetryDisabled(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	rec := serve(newGateway(), http.MethodPost, "/api/summarize", `{"text":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"summary":"s"}`, rec.Body.String())
}

func TestRouteLabelFallbackBuckets(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/healthz", RouteUnmatched},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/api/summarize", "/api/*"},
		{"/admin/signal", "/admin/*"},
		{"/users/123", RouteUnmatched},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expected, RouteLabel(req))
		})
	}
	assert.Equal(t, RouteUnmatched, RouteLabel(nil))
	assert.Equal(t, OperationNone, Operation(nil))
}
