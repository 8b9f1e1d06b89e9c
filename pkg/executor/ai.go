package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/otelhelper"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InferenceClient is the subset of *openai.Client the AI executor needs.
type InferenceClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// ClientFactory builds an inference client authenticated with cred.
type ClientFactory func(cred credentials.Credential) InferenceClient

type AIOption func(*AI)

func WithClock(now func() time.Time) AIOption {
	return func(a *AI) {
		a.now = now
	}
}

func WithAIMetrics(m *metrics.Metrics) AIOption {
	return func(a *AI) {
		a.metrics = m
	}
}

// AI executes nodes of the ai category against the inference endpoint.
type AI struct {
	credentials credentials.Provisioner
	clients     ClientFactory
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewAI(provisioner credentials.Provisioner, clients ClientFactory, logger *slog.Logger, opts ...AIOption) *AI {
	a := &AI{
		credentials: provisioner,
		clients:     clients,
		logger:      logger.With("module", "executor.ai"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Execute resolves the node's prompts against input, calls the model and
// wraps the answer in a Result. It never returns an error.
func (a *AI) Execute(ctx context.Context, node *models.WorkflowNode, input any) Result {
	params := ParseAIParams(node.Data)
	if params.Model == "" {
		params.Model = ModelFor(node)
	}

	if params.Model == "" {
		return a.failure("node has no model configured", CodeInvalidConfiguration, params, 0)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(otelhelper.ModelIDKey, params.Model),
		attribute.String(otelhelper.ProviderKey, params.Provider),
	)

	if strings.TrimSpace(params.Prompt) == "" {
		return a.failure("node has no prompt configured", CodeInvalidConfiguration, params, 0)
	}

	cred, err := a.credentials.Ensure(ctx)
	if err != nil {
		code := CodeUpstreamFailure
		if errors.Is(err, credentials.ErrNoCredential) {
			code = CodeMissingCredential
		}

		return a.failure(err.Error(), code, params, 0)
	}

	req := BuildRequest(params, input)

	a.logger.DebugContext(ctx, "Calling inference endpoint",
		"node_id", node.ID, "model", params.Model, "stream", params.Stream, "messages", len(req.Messages))

	answer, err := a.infer(ctx, cred, req)
	if rejected(err) {
		// The credential was revoked or expired upstream: drop it and retry once
		// with a freshly provisioned one.
		if r, ok := a.credentials.(interface{ Reset() }); ok {
			a.logger.WarnContext(ctx, "Credential rejected, re-provisioning", "node_id", node.ID, "model", params.Model)
			r.Reset()

			if cred, err = a.credentials.Ensure(ctx); err == nil {
				answer, err = a.infer(ctx, cred, req)
			}
		}
	}

	if err != nil {
		code, status := classify(err)
		a.logger.ErrorContext(ctx, "Inference failed", "node_id", node.ID, "model", params.Model, "code", code, "error", err)

		return a.failure(err.Error(), code, params, status)
	}

	a.metrics.TokensUsed(params.Model, answer.usage.PromptTokens, answer.usage.CompletionTokens)

	var data any = answer.text
	if params.ResponseFormat == ResponseFormatJSON {
		data = ParseStructured(answer.text)
	}

	return Succeeded(data, Metadata{
		Model:            params.Model,
		Provider:         params.Provider,
		PromptTokens:     answer.usage.PromptTokens,
		CompletionTokens: answer.usage.CompletionTokens,
		TotalTokens:      answer.usage.TotalTokens,
		FinishReason:     answer.finishReason,
		Timestamp:        a.now().UTC(),
	})
}

func (a *AI) infer(ctx context.Context, cred credentials.Credential, req openai.ChatCompletionRequest) (completion, error) {
	client := a.clients(cred)
	if req.Stream {
		return a.stream(ctx, client, req)
	}

	return a.complete(ctx, client, req)
}

func rejected(err error) bool {
	if err == nil {
		return false
	}

	_, status := classify(err)

	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

type completion struct {
	text         string
	finishReason string
	usage        openai.Usage
}

var errNoChoices = errors.New("inference endpoint returned no choices")

func (a *AI) complete(ctx context.Context, client InferenceClient, req openai.ChatCompletionRequest) (completion, error) {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return completion{}, err
	}

	if len(resp.Choices) == 0 {
		return completion{}, errNoChoices
	}

	return completion{
		text:         resp.Choices[0].Message.Content,
		finishReason: string(resp.Choices[0].FinishReason),
		usage:        resp.Usage,
	}, nil
}

func (a *AI) stream(ctx context.Context, client InferenceClient, req openai.ChatCompletionRequest) (completion, error) {
	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return completion{}, err
	}
	defer stream.Close()

	var (
		out      completion
		text     strings.Builder
		received bool
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return completion{}, err
		}

		if chunk.Usage != nil {
			out.usage = *chunk.Usage
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		received = true
		text.WriteString(chunk.Choices[0].Delta.Content)

		if reason := chunk.Choices[0].FinishReason; reason != "" {
			out.finishReason = string(reason)
		}
	}

	if !received {
		return completion{}, errNoChoices
	}

	out.text = text.String()

	return out, nil
}

func (a *AI) failure(message, code string, params AIParams, status int) Result {
	return Failed(message, ErrorDetails{
		Code:       code,
		Model:      params.Model,
		Provider:   params.Provider,
		StatusCode: status,
		Timestamp:  a.now().UTC(),
	})
}

// classify maps an inference error to a failure code and HTTP status.
func classify(err error) (string, int) {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode

		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			return CodeModelNotFound, status
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusNotFound:
		return CodeModelNotFound, status
	case http.StatusTooManyRequests:
		return CodeRateLimited, status
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeMissingCredential, status
	default:
		return CodeUpstreamFailure, status
	}
}
