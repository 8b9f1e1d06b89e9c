// Package credentials makes sure the current user holds an AI Gateway key
// before any catalog or inference call.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoCredential is returned when no key is available for the user.
var ErrNoCredential = errors.New("no credential available")

type Credential struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id,omitempty"`
}

// Provisioner is safe to call before every operation; repeated calls return
// the same credential.
type Provisioner interface {
	Ensure(ctx context.Context) (Credential, error)
}

// Static serves a key configured at startup.
type Static struct {
	credential Credential
}

func NewStatic(apiKey, userID string) *Static {
	return &Static{credential: Credential{APIKey: strings.TrimSpace(apiKey), UserID: userID}}
}

func (s *Static) Ensure(context.Context) (Credential, error) {
	if s.credential.APIKey == "" {
		return Credential{}, ErrNoCredential
	}

	return s.credential, nil
}

// Gateway asks the AI Gateway to create or return the user's key and caches
// the answer for the life of the process.
type Gateway struct {
	baseURL string
	userID  string
	client  *http.Client
	logger  *slog.Logger

	mu     sync.Mutex
	cached *Credential
}

func NewGateway(baseURL, userID string, client *http.Client, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  client,
		logger:  logger.With("module", "credentials"),
	}
}

type ensureRequest struct {
	UserID string `json:"user_id"`
}

type ensureResponse struct {
	APIKey  string `json:"api_key"`
	Created bool   `json:"created"`
}

func (g *Gateway) Ensure(ctx context.Context) (Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil {
		return *g.cached, nil
	}

	if g.userID == "" {
		return Credential{}, fmt.Errorf("%w: no user configured", ErrNoCredential)
	}

	body, err := json.Marshal(ensureRequest{UserID: g.userID})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to encode key request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/keys/ensure", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("failed to create key request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("key request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Credential{}, fmt.Errorf("%w: gateway answered %d", ErrNoCredential, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return Credential{}, fmt.Errorf("key request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded ensureResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Credential{}, fmt.Errorf("failed to decode key response: %w", err)
	}

	if decoded.APIKey == "" {
		return Credential{}, fmt.Errorf("%w: gateway returned an empty key", ErrNoCredential)
	}

	g.cached = &Credential{APIKey: decoded.APIKey, UserID: g.userID}
	g.logger.InfoContext(ctx, "AI Gateway key ensured", "user_id", g.userID, "created", decoded.Created)

	return *g.cached, nil
}

// Reset drops the cached key, e.g. after the gateway rejected it.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cached = nil
}
