package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/future"
	"github.com/textlens/textlens/internal/core/throttle"
	apperrors "github.com/textlens/textlens/internal/errors"
)

// DefaultThrottleDelay is the minimum spacing between runs of one action.
const DefaultThrottleDelay = time.Second

// Args is the user input of one action. Only the fields an endpoint uses are
// sent.
type Args struct {
	Text     string
	Question string
	Answer   string
}

// Payload returns the request payload endpoint expects.
func (a Args) Payload(endpoint core.Endpoint) core.Payload {
	switch endpoint {
	case core.EndpointSummarize, core.EndpointSentiment:
		return core.Payload{"text": a.Text}
	case core.EndpointQA, core.EndpointRelatedQuestions:
		return core.Payload{"text": a.Text, "question": a.Question}
	case core.EndpointFollowUp:
		return core.Payload{"text": a.Text, "answer": a.Answer}
	default:
		return nil
	}
}

// Validate reports the first missing field endpoint requires.
func (a Args) Validate(endpoint core.Endpoint) error {
	if !endpoint.Valid() {
		return apperrors.NewUnknownEndpointError(endpoint.String())
	}
	if strings.TrimSpace(a.Text) == "" {
		return errors.New("text is required")
	}
	switch endpoint {
	case core.EndpointQA, core.EndpointRelatedQuestions:
		if strings.TrimSpace(a.Question) == "" {
			return errors.New("question is required")
		}
	case core.EndpointFollowUp:
		if strings.TrimSpace(a.Answer) == "" {
			return errors.New("answer is required")
		}
	}
	return nil
}

// ArgsFromPayload is the inverse of Args.Payload. Unknown fields are dropped.
func ArgsFromPayload(p core.Payload) Args {
	return Args{Text: p["text"], Question: p["question"], Answer: p["answer"]}
}

// Actions throttles user-triggered operations, one guard per endpoint, in
// front of the client's queue.
type Actions struct {
	client *Client
	guards map[core.Endpoint]*throttle.Guard[Args, json.RawMessage]
}

// NewActions creates a guard per endpoint with the given delay.
func NewActions(c *Client, delay time.Duration, opts ...throttle.Option) *Actions {
	a := &Actions{
		client: c,
		guards: make(map[core.Endpoint]*throttle.Guard[Args, json.RawMessage], len(core.Endpoints)),
	}
	for _, endpoint := range core.Endpoints {
		guardOpts := append([]throttle.Option{throttle.WithName(endpoint.String()), throttle.WithLogger(c.logger)}, opts...)
		a.guards[endpoint] = throttle.New(func(ctx context.Context, args Args) (json.RawMessage, error) {
			return c.Request(ctx, endpoint, args.Payload(endpoint)).Await(ctx)
		}, delay, guardOpts...)
	}
	return a
}

// Do runs endpoint through its guard.
func (a *Actions) Do(ctx context.Context, endpoint core.Endpoint, args Args) *future.Future[json.RawMessage] {
	guard, ok := a.guards[endpoint]
	if !ok {
		return future.Rejected[json.RawMessage](apperrors.NewUnknownEndpointError(endpoint.String()))
	}
	return guard.Call(ctx, args)
}

// Summarize is the throttled form of Client.Summarize.
func (a *Actions) Summarize(ctx context.Context, text string) *future.Future[core.Summary] {
	return future.Then(a.Do(ctx, core.EndpointSummarize, Args{Text: text}), decode[core.Summary])
}

// AnalyzeSentiment is the throttled form of Client.AnalyzeSentiment.
func (a *Actions) AnalyzeSentiment(ctx context.Context, text string) *future.Future[core.Sentiment] {
	return future.Then(a.Do(ctx, core.EndpointSentiment, Args{Text: text}), decode[core.Sentiment])
}

// AnswerQuestion is the throttled form of Client.AnswerQuestion.
func (a *Actions) AnswerQuestion(ctx context.Context, text, question string) *future.Future[core.Answer] {
	return future.Then(a.Do(ctx, core.EndpointQA, Args{Text: text, Question: question}), decode[core.Answer])
}

// RelatedQuestions is the throttled form of Client.RelatedQuestions.
func (a *Actions) RelatedQuestions(ctx context.Context, text, question string) *future.Future[[]string] {
	return future.Then(a.Do(ctx, core.EndpointRelatedQuestions, Args{Text: text, Question: question}), decode[[]string])
}

// FollowUpQuestion is the throttled form of Client.FollowUpQuestion.
func (a *Actions) FollowUpQuestion(ctx context.Context, text, answer string) *future.Future[string] {
	return future.Then(a.Do(ctx, core.EndpointFollowUp, Args{Text: text, Answer: answer}), decode[string])
}

// Stats returns per-endpoint guard counters keyed by wire name.
func (a *Actions) Stats() map[string]throttle.Stats {
	out := make(map[string]throttle.Stats, len(a.guards))
	for endpoint, guard := range a.guards {
		out[endpoint.String()] = guard.Stats()
	}
	return out
}

// Stop drops pending trailing calls and rejects later ones.
func (a *Actions) Stop() {
	for _, guard := range a.guards {
		guard.Stop()
	}
}
