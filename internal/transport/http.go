package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/textlens/textlens/internal/core"
	apperrors "github.com/textlens/textlens/internal/errors"
)

// DefaultBaseURL is the backend API root used when none is configured.
const DefaultBaseURL = "http://localhost:8080/api"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// HTTP sends requests to the backend as JSON over HTTP.
type HTTP struct {
	BaseURL    string
	CSRFToken  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewHTTP returns a client with defaults applied.
func NewHTTP(baseURL, csrfToken string) *HTTP {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = DefaultBaseURL
	}

	return &HTTP{
		BaseURL:   url,
		CSRFToken: strings.TrimSpace(csrfToken),
	}
}

// Send posts payload to the endpoint path under BaseURL and returns the raw
// JSON response body.
func (c *HTTP) Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("http transport not configured")
	}
	if !endpoint.Valid() {
		return nil, apperrors.NewUnknownEndpointError(endpoint.String())
	}
	if strings.TrimSpace(method) == "" {
		method = http.MethodPost
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	var (
		reqBody []byte
		reader  io.Reader
	)
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = encoded
		reader = bytes.NewReader(encoded)
	}

	url := strings.TrimRight(c.BaseURL, "/") + endpoint.Path()
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.CSRFToken != "" {
		httpReq.Header.Set("X-CSRF-TOKEN", c.CSRFToken)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	entry := TraceEntry{
		Transport:   "http",
		Endpoint:    endpoint.String(),
		Method:      method,
		URL:         url,
		RequestBody: reqBody,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		entry.DurationMs = time.Since(start).Milliseconds()
		Trace(entry)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	entry.StatusCode = resp.StatusCode
	entry.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		entry.Error = err.Error()
		Trace(entry)
		return nil, fmt.Errorf("read response: %w", err)
	}
	if json.Valid(respBody) {
		entry.Response = respBody
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{
			Endpoint:   endpoint.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       respBody,
		}
		entry.Error = statusErr.Error()
		Trace(entry)
		return nil, statusErr
	}

	if !json.Valid(respBody) {
		entry.Error = "response is not valid JSON"
		Trace(entry)
		return nil, fmt.Errorf("decode response: body is not valid JSON")
	}

	Trace(entry)
	return json.RawMessage(respBody), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
