// Package client is the single entry point front ends use to reach the
// analysis backend. Every operation is enqueued on a bounded-concurrency
// queue and satisfied from the network when online or from the cache when
// offline.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/connectivity"
	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/future"
	"github.com/textlens/textlens/internal/core/queue"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
	"github.com/textlens/textlens/internal/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithMaxConcurrent sets how many requests may execute at once.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) { c.maxConcurrent = n }
}

// WithLogger sets the logger shared by the client and its queue.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client dispatches analysis requests. It is safe for concurrent use.
type Client struct {
	transport     transport.Transport
	cache         *cache.Cache
	oracle        connectivity.Oracle
	queue         *queue.Queue
	maxConcurrent int
	logger        observability.Logger
	now           func() time.Time
}

// New builds a client over the given transport, cache and connectivity
// oracle.
func New(t transport.Transport, c *cache.Cache, oracle connectivity.Oracle, opts ...Option) *Client {
	cl := &Client{
		transport:     t,
		cache:         c,
		oracle:        oracle,
		maxConcurrent: queue.DefaultMaxConcurrent,
		logger:        observability.NopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.oracle == nil {
		cl.oracle = connectivity.NewStatic(true)
	}
	cl.queue = queue.New(cl.execute, cl.maxConcurrent,
		queue.WithLogger(cl.logger),
		queue.WithClock(cl.now),
	)
	return cl
}

// Request enqueues a call to endpoint. The returned future resolves with the
// raw response body.
func (c *Client) Request(ctx context.Context, endpoint core.Endpoint, payload core.Payload) *future.Future[json.RawMessage] {
	req, err := core.NewRequest(endpoint, payload, c.now())
	if err != nil {
		return future.Rejected[json.RawMessage](err)
	}
	return c.queue.Enqueue(ctx, req)
}

// Summarize requests a summary of text.
func (c *Client) Summarize(ctx context.Context, text string) *future.Future[core.Summary] {
	return future.Then(c.Request(ctx, core.EndpointSummarize, Args{Text: text}.Payload(core.EndpointSummarize)), decode[core.Summary])
}

// AnalyzeSentiment requests per-sentence emotions for text.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) *future.Future[core.Sentiment] {
	return future.Then(c.Request(ctx, core.EndpointSentiment, Args{Text: text}.Payload(core.EndpointSentiment)), decode[core.Sentiment])
}

// AnswerQuestion asks question about text.
func (c *Client) AnswerQuestion(ctx context.Context, text, question string) *future.Future[core.Answer] {
	args := Args{Text: text, Question: question}
	return future.Then(c.Request(ctx, core.EndpointQA, args.Payload(core.EndpointQA)), decode[core.Answer])
}

// RelatedQuestions suggests questions related to question.
func (c *Client) RelatedQuestions(ctx context.Context, text, question string) *future.Future[[]string] {
	args := Args{Text: text, Question: question}
	return future.Then(c.Request(ctx, core.EndpointRelatedQuestions, args.Payload(core.EndpointRelatedQuestions)), decode[[]string])
}

// FollowUpQuestion suggests a question following on from answer.
func (c *Client) FollowUpQuestion(ctx context.Context, text, answer string) *future.Future[string] {
	args := Args{Text: text, Answer: answer}
	return future.Then(c.Request(ctx, core.EndpointFollowUp, args.Payload(core.EndpointFollowUp)), decode[string])
}

// ClearCache removes every cached response and returns how many were
// removed.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	return c.cache.ClearAll(ctx)
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Online reports the current connectivity state.
func (c *Client) Online() bool { return c.oracle.IsOnline() }

// QueueStats returns a snapshot of the dispatch queue.
func (c *Client) QueueStats() queue.Stats { return c.queue.Stats() }

// Close stops accepting requests and waits for queued ones to finish.
func (c *Client) Close(ctx context.Context) error {
	return c.queue.Close(ctx)
}

// execute runs one request: from the cache when offline, otherwise from the
// network with the result written back to the cache.
func (c *Client) execute(ctx context.Context, req core.Request) (json.RawMessage, error) {
	start := c.now()
	endpoint := req.Endpoint.String()
	key := c.cache.Key(endpoint, req.Payload)

	if !c.oracle.IsOnline() {
		value, ok, err := c.cache.Get(ctx, key, c.now())
		if err != nil {
			c.logger.Warn("Cache read failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}
		if ok {
			metrics.RecordDispatch(endpoint, string(core.SourceCache), true, c.now().Sub(start))
			c.logger.Debug("Served from cache while offline",
				zap.String("request_id", req.ID),
				zap.String("endpoint", endpoint),
			)
			return value, nil
		}
		metrics.RecordDispatch(endpoint, string(core.SourceCache), false, c.now().Sub(start))
		return nil, apperrors.NewOfflineNoCacheError(endpoint, key)
	}

	body, err := c.transport.Send(ctx, req.Endpoint, http.MethodPost, req.Payload)
	if stderrors.Is(err, apperrors.ErrUnknownEndpoint) {
		return nil, err
	}
	if err != nil {
		netErr := networkError(endpoint, err)
		metrics.RecordDispatch(endpoint, string(core.SourceNetwork), false, c.now().Sub(start))
		c.logger.Warn("API request failed",
			zap.String("request_id", req.ID),
			zap.String("endpoint", endpoint),
			zap.Int("status", netErr.StatusCode),
			zap.Error(err),
		)
		return nil, netErr
	}

	if err := c.cache.Put(ctx, key, body, c.now()); err != nil {
		c.logger.Warn("Failed to cache response",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}

	metrics.RecordDispatch(endpoint, string(core.SourceNetwork), true, c.now().Sub(start))
	return body, nil
}

func networkError(endpoint string, err error) *apperrors.NetworkError {
	var netErr *apperrors.NetworkError
	if stderrors.As(err, &netErr) {
		return netErr
	}

	var statusErr *transport.StatusError
	if stderrors.As(err, &statusErr) {
		message := statusErr.Status
		if message == "" {
			message = http.StatusText(statusErr.StatusCode)
		}
		return apperrors.NewNetworkError(endpoint, statusErr.StatusCode, message, err)
	}
	return apperrors.NewNetworkError(endpoint, 0, "", err)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %T response: %w", v, err)
	}
	return v, nil
}
