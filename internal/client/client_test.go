package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textlens/textlens/internal/connectivity"
	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/store"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/transport"
)

type sentRequest struct {
	Endpoint core.Endpoint
	Method   string
	Payload  core.Payload
}

type recordingTransport struct {
	mu       sync.Mutex
	requests []sentRequest
	next     transport.Transport
}

func (r *recordingTransport) Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
	r.mu.Lock()
	r.requests = append(r.requests, sentRequest{Endpoint: endpoint, Method: method, Payload: payload.Clone()})
	r.mu.Unlock()
	return r.next.Send(ctx, endpoint, method, payload)
}

func (r *recordingTransport) Requests() []sentRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentRequest(nil), r.requests...)
}

func newRecorder() *recordingTransport {
	return &recordingTransport{next: transport.NewMock(0)}
}

type failingKV struct {
	*store.Memory
}

func (f failingKV) Set(ctx context.Context, key, value string) error {
	return errors.New("disk full")
}

func await[T any](t *testing.T, get func(context.Context) (T, error)) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return get(ctx)
}

func TestOfflineWithEmptyCacheRejects(t *testing.T) {
	rec := newRecorder()
	c := New(rec, cache.New(store.NewMemory()), connectivity.NewStatic(false))

	_, err := await(t, c.Summarize(context.Background(), "hello").Await)
	require.Error(t, err)

	var offline *apperrors.OfflineNoCacheError
	require.True(t, errors.As(err, &offline))
	assert.Equal(t, "summarize", offline.Endpoint)
	assert.ErrorIs(t, err, apperrors.ErrOfflineNoCache)
	assert.Empty(t, rec.Requests())
}

func TestOnlineSummarizeCallsTransportOnceAndCaches(t *testing.T) {
	rec := newRecorder()
	kv := store.NewMemory()
	oracle := connectivity.NewStatic(true)
	c := New(rec, cache.New(kv), oracle)

	summary, err := await(t, c.Summarize(context.Background(), "a short text").Await)
	require.NoError(t, err)
	assert.Equal(t, "Summary of: a short text...", summary.Summary)

	requests := rec.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, core.EndpointSummarize, requests[0].Endpoint)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, core.Payload{"text": "a short text"}, requests[0].Payload)
	assert.Equal(t, 1, kv.Len())

	oracle.Set(false)
	cached, err := await(t, c.Summarize(context.Background(), "a short text").Await)
	require.NoError(t, err)
	assert.Equal(t, summary, cached)
	assert.Len(t, rec.Requests(), 1)
}

func TestNetworkFailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	failing := transport.Func(func(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
		calls.Add(1)
		return nil, &transport.StatusError{Endpoint: endpoint.String(), StatusCode: http.StatusBadGateway}
	})
	kv := store.NewMemory()
	c := New(failing, cache.New(kv), connectivity.NewStatic(true))

	_, err := await(t, c.AnswerQuestion(context.Background(), "doc", "why?").Await)
	require.Error(t, err)

	var netErr *apperrors.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "qa", netErr.Endpoint)
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
	assert.Equal(t, "Bad Gateway", netErr.Message)
	assert.True(t, netErr.Retryable())

	assert.Equal(t, int32(1), calls.Load(), "no retries inside the dispatcher")
	assert.Equal(t, 0, kv.Len())
}

func TestTransportErrorBecomesNetworkError(t *testing.T) {
	down := transport.Func(func(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	})
	c := New(down, cache.New(store.NewMemory()), connectivity.NewStatic(true))

	_, err := await(t, c.FollowUpQuestion(context.Background(), "doc", "an answer").Await)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.ErrorContains(t, err, "connection refused")
}

func TestCacheWriteFailureDoesNotFailRequest(t *testing.T) {
	c := New(newRecorder(), cache.New(failingKV{store.NewMemory()}), connectivity.NewStatic(true))

	related, err := await(t, c.RelatedQuestions(context.Background(), "doc", "q").Await)
	require.NoError(t, err)
	assert.Equal(t, []string{"Related Q1?", "Related Q2?"}, related)
}

func TestUnknownEndpointFailsFast(t *testing.T) {
	rec := newRecorder()
	c := New(rec, cache.New(store.NewMemory()), connectivity.NewStatic(true))

	_, err := await(t, c.Request(context.Background(), core.Endpoint(42), nil).Await)
	require.ErrorIs(t, err, apperrors.ErrUnknownEndpoint)
	assert.Empty(t, rec.Requests())
}

func TestConcurrencyBoundAcrossOperations(t *testing.T) {
	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	slow := transport.Func(func(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return transport.NewMock(0).Send(ctx, endpoint, method, payload)
	})
	c := New(slow, cache.New(store.NewMemory()), connectivity.NewStatic(true), WithMaxConcurrent(2))
	ctx := context.Background()

	summary := c.Summarize(ctx, "one")
	sentiment := c.AnalyzeSentiment(ctx, "two")
	answer := c.AnswerQuestion(ctx, "three", "q")
	related := c.RelatedQuestions(ctx, "four", "q")
	followUp := c.FollowUpQuestion(ctx, "five", "a")

	_, err := await(t, summary.Await)
	require.NoError(t, err)
	_, err = await(t, sentiment.Await)
	require.NoError(t, err)
	_, err = await(t, answer.Await)
	require.NoError(t, err)
	_, err = await(t, related.Await)
	require.NoError(t, err)
	_, err = await(t, followUp.Await)
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	stats := c.QueueStats()
	assert.Equal(t, uint64(5), stats.Completed)
	assert.LessOrEqual(t, stats.PeakInFlight, 2)
}

func TestClearCache(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, kv.Set(context.Background(), "settings", "{}"))
	c := New(newRecorder(), cache.New(kv), connectivity.NewStatic(true))
	ctx := context.Background()

	_, err := await(t, c.Summarize(ctx, "a").Await)
	require.NoError(t, err)
	_, err = await(t, c.Summarize(ctx, "b").Await)
	require.NoError(t, err)

	removed, err := c.ClearCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, kv.Len())
}

func TestCloseRejectsLaterRequests(t *testing.T) {
	c := New(newRecorder(), cache.New(store.NewMemory()), connectivity.NewStatic(true))
	require.NoError(t, c.Close(context.Background()))

	_, err := await(t, c.Summarize(context.Background(), "late").Await)
	require.Error(t, err)
}

func TestActionsCoalesceIdenticalCalls(t *testing.T) {
	rec := newRecorder()
	c := New(rec, cache.New(store.NewMemory()), connectivity.NewStatic(true))
	actions := NewActions(c, time.Second)
	defer actions.Stop()
	ctx := context.Background()

	first := actions.Summarize(ctx, "same text")
	second := actions.Summarize(ctx, "same text")

	a, err := await(t, first.Await)
	require.NoError(t, err)
	b, err := await(t, second.Await)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Len(t, rec.Requests(), 1)
	assert.Equal(t, uint64(1), actions.Stats()["summarize"].Coalesced)
}

func TestActionsRunLatestCallAfterWindow(t *testing.T) {
	rec := newRecorder()
	c := New(rec, cache.New(store.NewMemory()), connectivity.NewStatic(true))
	actions := NewActions(c, 50*time.Millisecond)
	defer actions.Stop()
	ctx := context.Background()

	first := actions.AnswerQuestion(ctx, "doc", "q1")
	stale := actions.AnswerQuestion(ctx, "doc", "q2")
	latest := actions.AnswerQuestion(ctx, "doc", "q3")

	_, err := await(t, first.Await)
	require.NoError(t, err)
	_, err = await(t, stale.Await)
	require.Error(t, err)

	answer, err := await(t, latest.Await)
	require.NoError(t, err)
	assert.Equal(t, "Answer to: q3", answer.Answer)

	requests := rec.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "q1", requests[0].Payload["question"])
	assert.Equal(t, "q3", requests[1].Payload["question"])
}

func TestArgsPayload(t *testing.T) {
	args := Args{Text: "t", Question: "q", Answer: "a"}

	assert.Equal(t, core.Payload{"text": "t"}, args.Payload(core.EndpointSentiment))
	assert.Equal(t, core.Payload{"text": "t", "question": "q"}, args.Payload(core.EndpointRelatedQuestions))
	assert.Equal(t, core.Payload{"text": "t", "answer": "a"}, args.Payload(core.EndpointFollowUp))
	assert.Nil(t, args.Payload(core.Endpoint(0)))
	assert.Equal(t, args, ArgsFromPayload(core.Payload{"text": "t", "question": "q", "answer": "a", "extra": "x"}))
}

func TestArgsValidate(t *testing.T) {
	assert.NoError(t, Args{Text: "t"}.Validate(core.EndpointSummarize))
	assert.ErrorContains(t, Args{}.Validate(core.EndpointSentiment), "text is required")
	assert.ErrorContains(t, Args{Text: "t"}.Validate(core.EndpointQA), "question is required")
	assert.NoError(t, Args{Text: "t", Question: "q"}.Validate(core.EndpointRelatedQuestions))
	assert.ErrorContains(t, Args{Text: "t", Question: "q"}.Validate(core.EndpointFollowUp), "answer is required")
	assert.ErrorIs(t, Args{Text: "t"}.Validate(core.Endpoint(0)), apperrors.ErrUnknownEndpoint)
}
