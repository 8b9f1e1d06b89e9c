package executor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/template"
	"github.com/sashabaranov/go-openai"
)

const (
	ResponseFormatText = "text"
	ResponseFormatJSON = "json"
)

// AIParams are the inference settings read from an AI node's data.
type AIParams struct {
	Model            string
	Provider         string
	SystemPrompt     string
	Prompt           string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	StopSequences    []string
	Stream           bool
	ResponseFormat   string
}

// ParseAIParams reads the parameter bag. Missing or mistyped values fall back
// to the defaults of the AI component template.
func ParseAIParams(data map[string]any) AIParams {
	params := AIParams{
		Model:            stringParam(data, "model"),
		Provider:         stringParam(data, "provider"),
		SystemPrompt:     textParam(data, "systemPrompt"),
		Prompt:           textParam(data, "prompt"),
		Temperature:      float32(numberParam(data, "temperature", 0.7)),
		MaxTokens:        int(numberParam(data, "maxTokens", 1000)),
		TopP:             float32(numberParam(data, "topP", 1)),
		FrequencyPenalty: float32(numberParam(data, "frequencyPenalty", 0)),
		PresencePenalty:  float32(numberParam(data, "presencePenalty", 0)),
		StopSequences:    stringsParam(data, "stopSequences"),
		Stream:           boolParam(data, "stream"),
		ResponseFormat:   strings.ToLower(stringParam(data, "responseFormat")),
	}

	if params.ResponseFormat == "structured" {
		params.ResponseFormat = ResponseFormatJSON
	}

	if params.ResponseFormat != ResponseFormatJSON {
		params.ResponseFormat = ResponseFormatText
	}

	return params
}

// ModelFor returns the model of an AI node. Nodes without a "model" parameter
// fall back to the id encoded in their "ai-" component type.
func ModelFor(node *models.WorkflowNode) string {
	if model := stringParam(node.Data, "model"); model != "" {
		return model
	}

	if strings.HasPrefix(node.Type, "ai-") {
		return strings.TrimPrefix(node.Type, "ai-")
	}

	return ""
}

// BuildRequest resolves the prompts against input and assembles the chat
// completion request: an optional system message followed by one user message.
func BuildRequest(params AIParams, input any) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)

	if system := template.Resolve(params.SystemPrompt, input); strings.TrimSpace(system) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: template.Resolve(params.Prompt, input),
	})

	req := openai.ChatCompletionRequest{
		Model:            params.Model,
		Messages:         messages,
		Temperature:      sampling(params.Temperature),
		MaxTokens:        params.MaxTokens,
		TopP:             sampling(params.TopP),
		FrequencyPenalty: sampling(params.FrequencyPenalty),
		PresencePenalty:  sampling(params.PresencePenalty),
		Stop:             params.StopSequences,
		Stream:           params.Stream,
	}

	if params.Stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	return req
}

// sampling keeps an explicit zero on the wire. go-openai drops zero values
// (omitempty) and the endpoint would then apply its own default.
func sampling(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}

	return v
}

// textParam reads a prompt verbatim; whitespace is part of the template.
func textParam(data map[string]any, key string) string {
	v, _ := data[key].(string)

	return v
}

func stringParam(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func numberParam(data map[string]any, key string, fallback float64) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}

	return fallback
}

func boolParam(data map[string]any, key string) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)

		return b
	default:
		return false
	}
}

func stringsParam(data map[string]any, key string) []string {
	var out []string

	switch v := data[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}

	return out
}
