package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/textlens/textlens/internal/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func testProxy(rt roundTripFunc) *metricsProxy {
	return &metricsProxy{
		client:  &http.Client{Transport: rt},
		enabled: func() bool { return true },
		port:    func() int { return 9464 },
	}
}

func TestMetricsProxyRelaysExporterOutput(t *testing.T) {
	var requested string
	proxy := testProxy(func(req *http.Request) (*http.Response, error) {
		requested = req.URL.String()
		body := "# HELP dispatch_requests_total Settled dispatcher requests\n" +
			"dispatch_requests_total{endpoint=\"summarize\",source=\"network\",outcome=\"success\"} 1\n"
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{},
		}
		resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
		resp.Header.Set("Connection", "close")
		return resp, nil
	})

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://127.0.0.1:9464/metrics", requested)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), `dispatch_requests_total{endpoint="summarize"`)
}

func TestMetricsProxyErrors(t *testing.T) {
	t.Run("ExporterDisabled", func(t *testing.T) {
		proxy := testProxy(nil)
		proxy.enabled = func() bool { return false }

		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, apperrors.CodeServiceUnavailable, body.Error.Code)
	})

	t.Run("ExporterUnreachable", func(t *testing.T) {
		proxy := testProxy(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, apperrors.CodeExternalService, body.Error.Code)
	})
}

func TestGatewayServesMetricsRoute(t *testing.T) {
	srv := New("127.0.0.1", 0)
	srv.metrics = testProxy(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("up 1\n")), Header: http.Header{}}, nil
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up 1\n", rec.Body.String())
}
