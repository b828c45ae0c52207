package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResult renders a result as Markdown.
func (f *MarkdownFormatter) FormatResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	return renderMarkdown(resultGrid(result)), nil
}

// FormatStatus renders a status report as Markdown.
func (f *MarkdownFormatter) FormatStatus(status *Status) (string, error) {
	if status == nil {
		return "", nil
	}
	return renderMarkdown(statusGrid(status)), nil
}

func renderMarkdown(g grid) string {
	var sb strings.Builder
	if g.title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(g.title)))
	}

	sb.WriteString("|")
	for _, h := range g.header {
		sb.WriteString(" " + escapeMarkdownCell(h) + " |")
	}
	sb.WriteString("\n|")
	for range g.header {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")

	for _, row := range g.rows {
		sb.WriteString("|")
		for _, cell := range row {
			sb.WriteString(" " + escapeMarkdownCell(cell) + " |")
		}
		sb.WriteString("\n")
	}

	if g.footer != "" {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", escapeMarkdownCell(g.footer)))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
