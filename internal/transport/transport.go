// Package transport sends analysis requests to the backend service.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/textlens/textlens/internal/core"
)

// Transport performs one request against the backend.
type Transport interface {
	Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error)

// Send calls f.
func (f Func) Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
	return f(ctx, endpoint, method, payload)
}

// StatusError is returned when the backend responds with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Status != "" {
		return fmt.Sprintf("%s request failed: %s", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s request failed: status %d", e.Endpoint, e.StatusCode)
}
