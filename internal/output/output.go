package output

import (
	"fmt"
	"strings"

	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/queue"
	"github.com/textlens/textlens/internal/core/throttle"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Result is one completed operation. Value holds the decoded response, e.g.
// core.Summary or []string.
type Result struct {
	Operation string `json:"operation"`
	Value     any    `json:"result"`
}

// Status describes the dispatcher: connectivity, cache contents and queue
// counters. Sections that were not collected are nil.
type Status struct {
	Online   bool                      `json:"online"`
	Cache    *cache.Stats              `json:"cache,omitempty"`
	Queue    *queue.Stats              `json:"queue,omitempty"`
	Throttle map[string]throttle.Stats `json:"throttle,omitempty"`
	Removed  *int                      `json:"removed,omitempty"`
}

// Formatter renders results and status reports.
type Formatter interface {
	FormatResult(result *Result) (string, error)
	FormatStatus(status *Status) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
