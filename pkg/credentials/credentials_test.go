package credentials

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatic(t *testing.T) {
	cred, err := NewStatic(" sk-test ", "user-1").Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cred.APIKey)
	assert.Equal(t, "user-1", cred.UserID)

	_, err = NewStatic("", "user-1").Ensure(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGateway_EnsureCachesKey(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/keys/ensure", r.URL.Path)

		var body ensureRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body.UserID)

		_ = json.NewEncoder(w).Encode(ensureResponse{APIKey: "sk-user-1", Created: true})
	}))
	defer server.Close()

	g := NewGateway(server.URL+"/", "user-1", server.Client(), testLogger())

	var wg sync.WaitGroup

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			cred, err := g.Ensure(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "sk-user-1", cred.APIKey)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	g.Reset()
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGateway_EnsureFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		noCredError bool
	}{
		{name: "forbidden", status: http.StatusForbidden, noCredError: true},
		{name: "not found", status: http.StatusNotFound, noCredError: true},
		{name: "empty key", status: http.StatusOK, body: `{"api_key":""}`, noCredError: true},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down"},
		{name: "bad json", status: http.StatusOK, body: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewGateway(server.URL, "user-1", server.Client(), testLogger()).Ensure(context.Background())
			require.Error(t, err)

			if tt.noCredError {
				assert.ErrorIs(t, err, ErrNoCredential)
			} else {
				assert.NotErrorIs(t, err, ErrNoCredential)
			}
		})
	}
}

func TestGateway_NoUser(t *testing.T) {
	_, err := NewGateway("http://127.0.0.1:0", "", nil, testLogger()).Ensure(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}
