// Package template resolves {{...}} tokens in node parameters against upstream input.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// InputToken is the token replaced by the whole upstream input.
const InputToken = "input"

var tokenPattern = regexp.MustCompile(`\{\{\s*([\w$-]+(?:\.[\w$-]+)*)\s*\}\}`)

// Resolve substitutes the tokens of tmpl.
//
// {{input}} becomes the input itself when it is a string, or its JSON form
// when it is structured. {{a.b.c}} follows the dotted path through the
// structured input. Any token that cannot be resolved is left verbatim; the
// function never fails.
func Resolve(tmpl string, input any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	structured := normalize(input)

	return tokenPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]

		if path == InputToken {
			return formatInput(input, structured, token)
		}

		value, ok := Lookup(structured, path)
		if !ok {
			return token
		}

		formatted, ok := format(value)
		if !ok {
			return token
		}

		return formatted
	})
}

// Lookup follows a dot-separated path through maps and slices. It reports
// false when any segment is missing, when an intermediate value is nil or a
// scalar, and when the final value is nil.
func Lookup(input any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := input

	for _, segment := range strings.Split(path, ".") {
		switch node := normalize(current).(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}

	return current, true
}

// Tokens returns the distinct token paths referenced by tmpl, in order of
// first appearance.
func Tokens(tmpl string) []string {
	matches := tokenPattern.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]bool, len(matches))
	paths := make([]string, 0, len(matches))

	for _, match := range matches {
		if seen[match[1]] {
			continue
		}

		seen[match[1]] = true
		paths = append(paths, match[1])
	}

	return paths
}

func formatInput(raw any, structured any, token string) string {
	switch v := raw.(type) {
	case nil:
		return token
	case string:
		return v
	}

	data, err := json.Marshal(structured)
	if err != nil {
		return token
	}

	return string(data)
}

// format renders a resolved value as text. Nested values are JSON encoded.
func format(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}

		return string(data), true
	}
}

// normalize turns arbitrary Go values (structs, typed maps, ints) into the
// generic JSON shape so that path lookups see the same fields the JSON form
// would show.
func normalize(input any) any {
	switch v := input.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	}

	data, err := json.Marshal(input)
	if err != nil {
		return input
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return input
	}

	return out
}
