package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCatalogClient_ListActiveModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "chat", r.URL.Query().Get("model_type"))
		assert.Empty(t, r.URL.Query().Get("provider"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`[{"id":"gpt-4o","name":"GPT-4o","provider":"openai","model_id":"gpt-4o",
			"model_type":"chat","capabilities":["chat"],"tags":["fast"],"is_active":true,
			"parameters":{"temperature":0.3},"created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-02T00:00:00Z"}]`))
	}))
	defer server.Close()

	client := NewCatalogClient(server.URL, credentials.NewStatic("sk-test", "u"), server.Client(), testLogger())

	entries, err := client.ListActiveModels(context.Background(), models.CatalogFilter{ModelType: "chat"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "gpt-4o", entries[0].ID)
	assert.Equal(t, "openai", entries[0].Provider)
	assert.True(t, entries[0].IsActive)
	assert.Equal(t, 0.3, entries[0].Parameters["temperature"])
	assert.Equal(t, 2025, entries[0].CreatedAt.Year())
}

func TestCatalogClient_EnvelopeResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"id":"a","is_active":true},{"id":"b","is_active":true}]}`))
	}))
	defer server.Close()

	client := NewCatalogClient(server.URL, credentials.NewStatic("k", ""), server.Client(), testLogger())

	entries, err := client.ListActiveModels(context.Background(), models.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCatalogClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client := NewCatalogClient(server.URL, credentials.NewStatic("k", ""), server.Client(), testLogger())

	_, err := client.ListActiveModels(context.Background(), models.CatalogFilter{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Contains(t, err.Error(), "maintenance")

	noKey := NewCatalogClient(server.URL, credentials.NewStatic("", ""), server.Client(), testLogger())
	_, err = noKey.ListActiveModels(context.Background(), models.CatalogFilter{})
	assert.ErrorIs(t, err, credentials.ErrNoCredential)
}

func TestNewChatClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-chat", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello"},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	defer server.Close()

	client := NewChatClient(server.URL+"/", credentials.Credential{APIKey: "sk-chat"}, server.Client())

	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
}
