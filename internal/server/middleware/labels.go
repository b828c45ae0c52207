package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// OperationNone labels requests that do not target a dispatcher operation.
const OperationNone = "none"

// RouteUnmatched labels requests no route or known prefix accounts for.
const RouteUnmatched = "/unknown"

type requestLabels struct {
	operation string
}

// SetOperation records the dispatcher operation r targets. It is a no-op
// unless RequestID ran first. Callers must pass a name from a fixed set.
func SetOperation(r *http.Request, operation string) {
	if l, ok := r.Context().Value(labelsKey).(*requestLabels); ok && operation != "" {
		l.operation = operation
	}
}

// Operation returns the operation recorded by SetOperation, or OperationNone.
func Operation(r *http.Request) string {
	if r == nil {
		return OperationNone
	}
	if l, ok := r.Context().Value(labelsKey).(*requestLabels); ok {
		return l.operation
	}
	return OperationNone
}

// RouteLabel returns the chi pattern that matched r, such as
// "/api/{endpoint}", or a coarse bucket when routing found nothing. Raw paths
// never become labels.
func RouteLabel(r *http.Request) string {
	if r == nil {
		return RouteUnmatched
	}
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}
	return routeBucket(r.URL.Path)
}

var exactRoutes = map[string]bool{
	"/":        true,
	"/version": true,
	"/metrics": true,
}

func routeBucket(path string) string {
	switch {
	case exactRoutes[path]:
		return path
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	case strings.HasPrefix(path, "/admin/"):
		return "/admin/*"
	default:
		return RouteUnmatched
	}
}
