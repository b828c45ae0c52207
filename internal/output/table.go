package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResult renders a result as a table.
func (f *TableFormatter) FormatResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	return renderTable(resultGrid(result)), nil
}

// FormatStatus renders a status report as a table.
func (f *TableFormatter) FormatStatus(status *Status) (string, error) {
	if status == nil {
		return "", nil
	}
	return renderTable(statusGrid(status)), nil
}

func renderTable(g grid) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if g.title != "" {
		t.SetTitle(g.title)
	}
	t.AppendHeader(toRow(g.header))
	for _, row := range g.rows {
		t.AppendRow(toRow(row))
	}
	if g.footer != "" {
		footer := make(table.Row, len(g.header))
		footer[len(footer)-1] = g.footer
		t.AppendFooter(footer)
	}
	return t.Render()
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
