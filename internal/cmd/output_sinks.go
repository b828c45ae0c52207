package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/textlens/textlens/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatYAML:
		return "yaml"
	case output.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

func openSink(path string, stdout io.Writer) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// resolveOutPath returns target unchanged unless it names a directory
// (trailing slash), in which case the file is named after the operation.
func resolveOutPath(target, name string, format output.Format) string {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" || trimmed == "-" {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/") || strings.HasSuffix(trimmed, string(os.PathSeparator)) {
		return filepath.Join(trimmed, fmt.Sprintf("%s.%s", name, outputExtension(format)))
	}
	return trimmed
}

// writeOutput renders through the selected formatter and writes to the
// --out target or stdout.
func writeOutput(stdout io.Writer, name string, format output.Format, render func(output.Formatter) (string, error)) error {
	rendered, err := render(output.NewFormatter(format))
	if err != nil {
		return err
	}

	sink, err := openSink(resolveOutPath(outputPath, name, format), stdout)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(sink.writer, rendered); err != nil {
		_ = sink.close()
		return err
	}
	if !strings.HasSuffix(rendered, "\n") {
		_, _ = io.WriteString(sink.writer, "\n")
	}
	if err := sink.close(); err != nil {
		return err
	}
	if sink.path != "-" {
		cliLogger().Info(fmt.Sprintf("Wrote %s output to %s", format, sink.path))
	}
	return nil
}
