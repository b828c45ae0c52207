package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/config"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/observability"
)

// defaultMetricsPort is where the exporter listens when neither the exporter
// nor the configuration reports a port.
const defaultMetricsPort = 9090

// hopHeaders are connection-scoped and never copied from the exporter.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// metricsProxy serves the Prometheus exporter's output on the gateway port so
// one scrape target covers both dispatcher and HTTP metrics.
type metricsProxy struct {
	client  *http.Client
	enabled func() bool
	port    func() int
}

func newMetricsProxy() *metricsProxy {
	return &metricsProxy{
		client:  &http.Client{Timeout: 5 * time.Second},
		enabled: func() bool { return observability.PrometheusExporter != nil },
		port:    exporterPort,
	}
}

// exporterPort prefers the port the exporter actually bound, then the
// configured one.
func exporterPort() int {
	if port := observability.GetMetricsPort(); port > 0 {
		return port
	}
	if cfg := config.GetConfig(); cfg != nil && cfg.Metrics.Port > 0 {
		return cfg.Metrics.Port
	}
	return defaultMetricsPort
}

func (p *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.enabled() {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("metrics exporter not initialized"))
		return
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", p.port())
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "unable to build metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		envelope, _ := apperrors.NewExternalServiceError("prometheus exporter unavailable").
			WithContext(map[string]any{"metrics_url": url, "original_error": err.Error()})
		apperrors.RespondWithError(w, r, envelope)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to relay metrics response", zap.Error(err))
	}
}
