package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxInputBytes bounds text read from a file or stdin.
const maxInputBytes = 1 << 20

// resolveText returns the text to analyze: the positional arguments joined
// with spaces, or the contents of textFile ("-" reads stdin).
func resolveText(positional []string, textFile string) (string, error) {
	trimmed := strings.TrimSpace(textFile)
	if trimmed != "" {
		if len(positional) > 0 {
			return "", errors.New("cannot combine positional text with --file")
		}
		return readTextFile(trimmed, os.Stdin)
	}

	text := strings.TrimSpace(strings.Join(positional, " "))
	if text == "" {
		return "", errors.New("text is required (pass it as arguments or use --file)")
	}
	return text, nil
}

func readTextFile(path string, stdin io.Reader) (string, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", path, maxInputBytes)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return text, nil
}
