package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/queue"
	"github.com/textlens/textlens/internal/core/throttle"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleAnswer() *Result {
	return &Result{
		Operation: "qa",
		Value: core.Answer{
			Answer:     "Because | it works",
			Confidence: 90,
			Context:    "some context",
			Metrics:    core.AnswerMetrics{WordsAnalyzed: 10, SentencesAnalyzed: 2, MatchQuality: 88},
		},
	}
}

func TestJSONFormatterResult(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatResult(sampleAnswer())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	assert.Equal(t, "qa", decoded["operation"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "Because | it works", result["answer"])
	assert.Equal(t, float64(88), result["metrics"].(map[string]any)["matchQuality"])
}

func TestYAMLFormatterUsesJSONNames(t *testing.T) {
	rendered, err := NewFormatter(FormatYAML).FormatResult(sampleAnswer())
	require.NoError(t, err)
	assert.Contains(t, rendered, "matchQuality: 88")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &decoded))
	assert.Equal(t, "qa", decoded["operation"])
}

func TestTableFormatterResults(t *testing.T) {
	f := NewFormatter(FormatTable)

	rendered, err := f.FormatResult(&Result{
		Operation: "summarize",
		Value:     core.Summary{Summary: "Short", Topics: []string{"a", "b"}, Confidence: 0.95},
	})
	require.NoError(t, err)
	assert.Contains(t, rendered, "Short")
	assert.Contains(t, rendered, "a, b")
	assert.Contains(t, rendered, "0.95")

	rendered, err = f.FormatResult(&Result{
		Operation: "sentiment",
		Value: core.Sentiment{
			Dominant:   "positive",
			Confidence: 0.85,
			Sentences:  []core.SentenceEmotion{{Emotion: "joy", Text: "Great day."}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, rendered, "Great day.")
	assert.Contains(t, strings.ToLower(rendered), "dominant: positive (0.85)")

	rendered, err = f.FormatResult(&Result{Operation: "related-questions", Value: []string{"Q1?", "Q2?"}})
	require.NoError(t, err)
	assert.Contains(t, rendered, "Q2?")

	rendered, err = f.FormatResult(&Result{Operation: "follow-up", Value: "Next?"})
	require.NoError(t, err)
	assert.Contains(t, rendered, "Next?")

	rendered, err = f.FormatResult(nil)
	require.NoError(t, err)
	assert.Empty(t, rendered)
}

func TestMarkdownEscapesCells(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatResult(sampleAnswer())
	require.NoError(t, err)
	assert.Contains(t, rendered, "## qa")
	assert.Contains(t, rendered, `Because \| it works`)
	assert.Contains(t, rendered, "| Match quality | 88 |")
}

func TestFormatStatus(t *testing.T) {
	removed := 3
	status := &Status{
		Online: false,
		Cache:  &cache.Stats{Entries: 4, Live: 3, Expired: 1, TTL: 24 * time.Hour},
		Queue:  &queue.Stats{State: "idle", Completed: 7, PeakInFlight: 2},
		Throttle: map[string]throttle.Stats{
			"summarize": {Runs: 2, Superseded: 1},
			"qa":        {Runs: 1, Coalesced: 1},
		},
		Removed: &removed,
	}

	rendered, err := NewFormatter(FormatTable).FormatStatus(status)
	require.NoError(t, err)
	assert.Contains(t, rendered, "offline")
	assert.Contains(t, rendered, "24h0m0s")
	assert.Contains(t, rendered, "2 runs, 1 superseded, 0 coalesced")
	assert.Less(t, strings.Index(rendered, "Throttle qa"), strings.Index(rendered, "Throttle summarize"))

	rendered, err = NewFormatter(FormatJSON).FormatStatus(status)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"removed": 3`)
	assert.Contains(t, rendered, `"peak_in_flight": 2`)

	rendered, err = NewFormatter(FormatJSON).FormatStatus(&Status{Online: true})
	require.NoError(t, err)
	assert.NotContains(t, rendered, "cache")
}
