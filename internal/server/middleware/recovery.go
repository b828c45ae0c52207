package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR response. The
// panic is counted against the dispatcher operation that was running and
// logged with its stack; neither the panic value nor the stack reaches the
// caller. http.ErrAbortHandler is re-raised.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			route, operation := RouteLabel(r), Operation(r)
			requestID := GetRequestID(r.Context())
			metrics.RecordPanic(metrics.PanicSourceHTTP, operation)
			metrics.RecordErrorByRoute(route, operation, "INTERNAL_ERROR")

			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Handler panicked",
					zap.Any("panic", recovered),
					zap.String("route", route),
					zap.String("operation", operation),
					zap.String("request_id", requestID),
					zap.ByteString("stack", debug.Stack()))
			}

			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
				WithCorrelationID(requestID)
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)
			writePanicResponse(w, envelope, operation)
		}()

		next.ServeHTTP(w, r)
	})
}

// panicResponse mirrors the gateway's error body. It is written here because
// the errors package depends on this one.
type panicResponse struct {
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details,omitempty"`
		RequestID string         `json:"request_id,omitempty"`
	} `json:"error"`
}

func writePanicResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, operation string) {
	var body panicResponse
	body.Error.Code = envelope.Code
	body.Error.Message = envelope.Message
	body.Error.RequestID = envelope.CorrelationID
	if operation != OperationNone {
		body.Error.Details = map[string]any{"operation": operation}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(body)
}
