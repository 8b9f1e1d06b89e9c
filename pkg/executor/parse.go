package executor

import (
	"encoding/json"
	"strings"
)

// ParseStructured interprets model output as JSON. When the whole text is not
// valid JSON it tries the largest {...} or [...] span; when that fails too the
// text is returned unchanged.
func ParseStructured(text string) any {
	trimmed := strings.TrimSpace(text)

	if value, ok := decodeJSON(trimmed); ok {
		return value
	}

	for _, span := range bracketSpans(trimmed) {
		if value, ok := decodeJSON(span); ok {
			return value
		}
	}

	return text
}

// bracketSpans returns the object and array candidates, longest first.
func bracketSpans(text string) []string {
	var spans []string

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])

		if start >= 0 && end > start {
			spans = append(spans, text[start:end+1])
		}
	}

	if len(spans) == 2 && len(spans[1]) > len(spans[0]) {
		spans[0], spans[1] = spans[1], spans[0]
	}

	return spans
}

func decodeJSON(text string) (any, bool) {
	if text == "" {
		return nil, false
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, false
	}

	return value, true
}
