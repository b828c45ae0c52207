package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/textlens/textlens/internal/core"
	apperrors "github.com/textlens/textlens/internal/errors"
)

// DefaultMockDelay is the simulated latency of the mock backend.
const DefaultMockDelay = 500 * time.Millisecond

// Mock answers every endpoint with canned results after a fixed delay. It is
// used for local development when no backend is running.
type Mock struct {
	Delay time.Duration
	Now   func() time.Time
}

// NewMock returns a mock transport with the given delay.
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay, Now: time.Now}
}

// Send waits for the configured delay and returns a canned result.
func (m *Mock) Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	text := payload["text"]
	var result any
	switch endpoint {
	case core.EndpointSummarize:
		result = core.Summary{
			Summary:    fmt.Sprintf("Summary of: %s...", prefix(text, 50)),
			Topics:     []string{"mock"},
			Confidence: 0.95,
		}
	case core.EndpointSentiment:
		result = core.Sentiment{
			Dominant:   "positive",
			Confidence: 0.85,
			Sentences:  []core.SentenceEmotion{{Emotion: "joy", Text: prefix(text, 50)}},
			ID:         now().UnixMilli(),
		}
	case core.EndpointQA:
		result = core.Answer{
			Answer:     "Answer to: " + payload["question"],
			Confidence: 90,
			Context:    prefix(text, 50),
			Metrics:    core.AnswerMetrics{WordsAnalyzed: 10, SentencesAnalyzed: 2, MatchQuality: 88},
		}
	case core.EndpointRelatedQuestions:
		result = []string{"Related Q1?", "Related Q2?"}
	case core.EndpointFollowUp:
		result = "Follow-up question?"
	default:
		return nil, apperrors.NewUnknownEndpointError(endpoint.String())
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode mock response: %w", err)
	}

	Trace(TraceEntry{
		Transport:  "mock",
		Endpoint:   endpoint.String(),
		Method:     method,
		StatusCode: 200,
		Response:   body,
		DurationMs: m.Delay.Milliseconds(),
	})
	return body, nil
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
