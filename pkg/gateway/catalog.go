// Package gateway talks to the AI Gateway: the model catalog REST API and the
// OpenAI compatible inference endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/dukex/agentflow/pkg/models"
)

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: gateway answered %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError

	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

type CatalogClient struct {
	baseURL     string
	credentials credentials.Provisioner
	client      *http.Client
	logger      *slog.Logger
}

func NewCatalogClient(baseURL string, provisioner credentials.Provisioner, client *http.Client, logger *slog.Logger) *CatalogClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &CatalogClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: provisioner,
		client:      client,
		logger:      logger.With("module", "gateway.catalog"),
	}
}

type modelsEnvelope struct {
	Models []models.CatalogModel `json:"models"`
}

// ListActiveModels returns the active models matching filter.
func (c *CatalogClient) ListActiveModels(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogModel, error) {
	cred, err := c.credentials.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	query := url.Values{}
	query.Set("active", "true")

	if filter.ModelType != "" {
		query.Set("model_type", filter.ModelType)
	}

	if filter.Provider != "" {
		query.Set("provider", filter.Provider)
	}

	if filter.Tag != "" {
		query.Set("tag", filter.Tag)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Op: "list models", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	entries, err := decodeModels(body)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	c.logger.DebugContext(ctx, "Fetched model catalog", "models", len(entries))

	return entries, nil
}

// decodeModels accepts a bare array or an object with a "models" field.
func decodeModels(body []byte) ([]models.CatalogModel, error) {
	trimmed := bytes.TrimSpace(body)

	if bytes.HasPrefix(trimmed, []byte("[")) {
		var entries []models.CatalogModel
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode models: %w", err)
		}

		return entries, nil
	}

	var envelope modelsEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	return envelope.Models, nil
}
