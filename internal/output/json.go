package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResult renders a result as JSON.
func (f *JSONFormatter) FormatResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.marshal(result)
}

// FormatStatus renders a status report as JSON.
func (f *JSONFormatter) FormatStatus(status *Status) (string, error) {
	if status == nil {
		return "", nil
	}
	return f.marshal(status)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
