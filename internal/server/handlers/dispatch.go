package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/textlens/textlens/internal/client"
	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/future"
	"github.com/textlens/textlens/internal/core/queue"
	"github.com/textlens/textlens/internal/core/throttle"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/output"
	"github.com/textlens/textlens/internal/server/middleware"
)

// maxRequestBytes bounds the size of an analysis request body.
const maxRequestBytes = 1 << 20

// SourceHeader tells callers whether a response came from the network or the
// cache. It reflects connectivity at the time the request was accepted.
const SourceHeader = middleware.SourceHeader

// Operation labels for the non-analysis gateway routes.
const (
	OperationClearCache = "clear-cache"
	OperationStatus     = "status"
)

// API exposes the dispatcher over HTTP.
type API struct {
	client  *client.Client
	actions *client.Actions
	now     func() time.Time
}

// NewAPI returns handlers backed by c. When actions is non-nil, analysis
// requests pass through its throttle guards first.
func NewAPI(c *client.Client, actions *client.Actions) *API {
	return &API{client: c, actions: actions, now: time.Now}
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// Analyze handles POST /api/{endpoint}.
func (a *API) Analyze(w http.ResponseWriter, r *http.Request) {
	endpoint, err := core.ParseEndpoint(chi.URLParam(r, "endpoint"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	middleware.SetOperation(r, endpoint.String())

	var body analyzeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	args := client.Args{Text: body.Text, Question: body.Question, Answer: body.Answer}
	if err := args.Validate(endpoint); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	source := core.SourceNetwork
	if !a.client.Online() {
		source = core.SourceCache
	}
	w.Header().Set(SourceHeader, string(source))

	var pending *future.Future[json.RawMessage]
	if a.actions != nil {
		pending = a.actions.Do(r.Context(), endpoint, args)
	} else {
		pending = a.client.Request(r.Context(), endpoint, args.Payload(endpoint))
	}

	result, err := pending.Await(r.Context())
	if err != nil {
		if stderrors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
		respondWithError(w, r, dispatchError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// ClearCache handles DELETE /api/cache.
func (a *API) ClearCache(w http.ResponseWriter, r *http.Request) {
	middleware.SetOperation(r, OperationClearCache)
	removed, err := a.client.ClearCache(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to clear cache"))
		return
	}
	writeJSON(w, http.StatusOK, output.Status{Online: a.client.Online(), Removed: &removed})
}

// Status handles GET /api/status.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	middleware.SetOperation(r, OperationStatus)
	status, err := a.Snapshot(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to read cache stats"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Snapshot collects connectivity, cache, queue and throttle state.
func (a *API) Snapshot(ctx context.Context) (*output.Status, error) {
	cacheStats, err := a.client.Cache().Stats(ctx, a.now())
	if err != nil {
		return nil, err
	}
	queueStats := a.client.QueueStats()

	status := &output.Status{
		Online: a.client.Online(),
		Cache:  &cacheStats,
		Queue:  &queueStats,
	}
	if a.actions != nil {
		status.Throttle = a.actions.Stats()
	}
	return status, nil
}

// dispatchError maps scheduling failures onto envelopes; request failures
// are left for EnsureEnvelope.
func dispatchError(err error) error {
	switch {
	case stderrors.Is(err, throttle.ErrSuperseded), stderrors.Is(err, throttle.ErrCanceled):
		return apperrors.NewSupersededError("request was superseded by a newer request for the same operation")
	case stderrors.Is(err, throttle.ErrStopped), stderrors.Is(err, queue.ErrQueueClosed):
		return apperrors.NewServiceUnavailableError("dispatcher is shutting down")
	default:
		return err
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
