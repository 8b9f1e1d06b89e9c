package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{name: "object", text: `{"a":1}`, want: map[string]any{"a": 1.0}},
		{name: "padded", text: "  [1,2]\n", want: []any{1.0, 2.0}},
		{name: "prose around object", text: `The answer is {"ok":true}. Done.`, want: map[string]any{"ok": true}},
		{name: "object containing array", text: `x {"items":[1,2]} y`, want: map[string]any{"items": []any{1.0, 2.0}}},
		{name: "array containing objects", text: `list: [{"a":1},{"b":2}]`, want: []any{map[string]any{"a": 1.0}, map[string]any{"b": 2.0}}},
		{name: "plain text", text: "hello", want: "hello"},
		{name: "unbalanced", text: "{ nope", want: "{ nope"},
		{name: "empty", text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStructured(tt.text))
		})
	}
}
