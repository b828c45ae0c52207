package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/textlens/textlens/internal/errors"
)

// Endpoint identifies a supported analysis operation.
//
// The set is closed: every switch over Endpoint must handle all values listed
// in Endpoints, and adding an operation means extending both.
type Endpoint uint8

const (
	EndpointSummarize Endpoint = iota + 1
	EndpointSentiment
	EndpointQA
	EndpointRelatedQuestions
	EndpointFollowUp
)

// Endpoints lists every supported operation in declaration order.
var Endpoints = []Endpoint{
	EndpointSummarize,
	EndpointSentiment,
	EndpointQA,
	EndpointRelatedQuestions,
	EndpointFollowUp,
}

// String returns the wire name of the endpoint.
func (e Endpoint) String() string {
	switch e {
	case EndpointSummarize:
		return "summarize"
	case EndpointSentiment:
		return "sentiment"
	case EndpointQA:
		return "qa"
	case EndpointRelatedQuestions:
		return "related-questions"
	case EndpointFollowUp:
		return "follow-up"
	default:
		return "unknown"
	}
}

// Valid reports whether e is one of the declared endpoints.
func (e Endpoint) Valid() bool {
	return e >= EndpointSummarize && e <= EndpointFollowUp
}

// Path returns the backend path for the endpoint, relative to the base URL.
func (e Endpoint) Path() string {
	return "/" + e.String()
}

// MarshalText encodes the endpoint by wire name.
func (e Endpoint) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, apperrors.NewUnknownEndpointError(e.String())
	}
	return []byte(e.String()), nil
}

// UnmarshalText decodes a wire name.
func (e *Endpoint) UnmarshalText(text []byte) error {
	parsed, err := ParseEndpoint(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEndpoint resolves a wire name (with or without a leading slash).
func ParseEndpoint(name string) (Endpoint, error) {
	normalized := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")
	for _, e := range Endpoints {
		if e.String() == normalized {
			return e, nil
		}
	}
	return 0, apperrors.NewUnknownEndpointError(name)
}

// Payload is the structured input of a request. Keys are field names such as
// "text", "question" and "answer".
type Payload map[string]string

// Clone returns a copy that does not share storage with p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Request is a single dispatch unit. It is not modified after enqueue.
type Request struct {
	ID        string
	Endpoint  Endpoint
	Payload   Payload
	CreatedAt time.Time
}

// NewRequest builds a request stamped with a fresh ID and creation time.
func NewRequest(endpoint Endpoint, payload Payload, now time.Time) (Request, error) {
	if !endpoint.Valid() {
		return Request{}, apperrors.NewUnknownEndpointError(endpoint.String())
	}
	return Request{
		ID:        uuid.New().String(),
		Endpoint:  endpoint,
		Payload:   payload.Clone(),
		CreatedAt: now.UTC(),
	}, nil
}

// Source reports where a response came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
)

// Response is the opaque result of an executed request.
type Response struct {
	Endpoint Endpoint        `json:"endpoint"`
	Source   Source          `json:"source"`
	Body     json.RawMessage `json:"body"`
}

// Summary is the result of the summarize operation.
type Summary struct {
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	Confidence float64  `json:"confidence"`
}

// SentenceEmotion tags one sentence with its detected emotion.
type SentenceEmotion struct {
	Emotion string `json:"emotion"`
	Text    string `json:"text"`
}

// Sentiment is the result of the sentiment operation.
type Sentiment struct {
	Dominant   string            `json:"dominant"`
	Confidence float64           `json:"confidence"`
	Sentences  []SentenceEmotion `json:"sentences"`
	ID         int64             `json:"id,omitempty"`
}

// AnswerMetrics describes how an answer was derived.
type AnswerMetrics struct {
	WordsAnalyzed     int `json:"wordsAnalyzed"`
	SentencesAnalyzed int `json:"sentencesAnalyzed"`
	MatchQuality      int `json:"matchQuality"`
}

// Answer is the result of the qa operation.
type Answer struct {
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Context    string        `json:"context"`
	Metrics    AnswerMetrics `json:"metrics"`
}
