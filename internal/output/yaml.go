package output

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders results as YAML. Field names follow the JSON
// encoding.
type YAMLFormatter struct{}

// FormatResult renders a result as YAML.
func (f *YAMLFormatter) FormatResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	return toYAML(result)
}

// FormatStatus renders a status report as YAML.
func (f *YAMLFormatter) FormatStatus(status *Status) (string, error) {
	if status == nil {
		return "", nil
	}
	return toYAML(status)
}

func toYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("decode for yaml: %w", err)
	}

	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	return string(out), nil
}
