package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textlens/textlens/internal/client"
	"github.com/textlens/textlens/internal/connectivity"
	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/store"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/output"
	"github.com/textlens/textlens/internal/server/handlers"
	"github.com/textlens/textlens/internal/transport"
)

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

type gateway struct {
	srv    *httptest.Server
	kv     *store.Memory
	oracle *connectivity.Static
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	kv := store.NewMemory()
	oracle := connectivity.NewStatic(true)
	c := client.New(transport.NewMock(0), cache.New(kv), oracle)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	srv := httptest.NewServer(New("127.0.0.1", 0, WithAPI(handlers.NewAPI(c, nil))).Handler())
	t.Cleanup(srv.Close)
	return &gateway{srv: srv, kv: kv, oracle: oracle}
}

func (g *gateway) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, g.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestGatewaySummarize(t *testing.T) {
	g := newGateway(t)

	resp := g.do(t, http.MethodPost, "/api/summarize", `{"text":"gateway text"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(core.SourceNetwork), resp.Header.Get(handlers.SourceHeader))

	var summary core.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, "Summary of: gateway text...", summary.Summary)
	assert.Equal(t, 1, g.kv.Len())

	g.oracle.Set(false)
	cached := g.do(t, http.MethodPost, "/api/summarize", `{"text":"gateway text"}`)
	require.Equal(t, http.StatusOK, cached.StatusCode)
	assert.Equal(t, string(core.SourceCache), cached.Header.Get(handlers.SourceHeader))
}

func TestGatewayUnknownEndpoint(t *testing.T) {
	g := newGateway(t)

	resp := g.do(t, http.MethodPost, "/api/translate", `{"text":"x"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperrors.CodeUnknownEndpoint, decodeError(t, resp).Error.Code)
}

func TestGatewayRejectsBadBody(t *testing.T) {
	g := newGateway(t)

	cases := map[string]struct {
		path string
		body string
	}{
		"malformed":        {"/api/sentiment", `{"text":`},
		"unknown field":    {"/api/sentiment", `{"text":"x","tone":"dry"}`},
		"missing text":     {"/api/summarize", `{}`},
		"missing question": {"/api/qa", `{"text":"doc"}`},
		"missing answer":   {"/api/follow-up", `{"text":"doc"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := g.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, resp).Error.Code)
		})
	}
}

func TestGatewayOfflineWithoutCache(t *testing.T) {
	g := newGateway(t)
	g.oracle.Set(false)

	resp := g.do(t, http.MethodPost, "/api/qa", `{"text":"doc","question":"why?"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, string(core.SourceCache), resp.Header.Get(handlers.SourceHeader))
	assert.Equal(t, apperrors.CodeOfflineNoCache, decodeError(t, resp).Error.Code)
}

func TestGatewayStatusAndClearCache(t *testing.T) {
	g := newGateway(t)
	require.NoError(t, g.kv.Set(t.Context(), "settings", "{}"))

	resp := g.do(t, http.MethodPost, "/api/related-questions", `{"text":"doc","question":"q"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statusResp := g.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	var status output.Status
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.True(t, status.Online)
	require.NotNil(t, status.Cache)
	assert.Equal(t, 1, status.Cache.Entries)
	require.NotNil(t, status.Queue)
	assert.Equal(t, uint64(1), status.Queue.Completed)

	clearResp := g.do(t, http.MethodDelete, "/api/cache", "")
	require.Equal(t, http.StatusOK, clearResp.StatusCode)
	var cleared output.Status
	require.NoError(t, json.NewDecoder(clearResp.Body).Decode(&cleared))
	require.NotNil(t, cleared.Removed)
	assert.Equal(t, 1, *cleared.Removed)
	assert.Equal(t, 1, g.kv.Len())
}

func TestGatewayMethodNotAllowed(t *testing.T) {
	g := newGateway(t)

	resp := g.do(t, http.MethodGet, "/api/cache", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
