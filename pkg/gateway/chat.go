package gateway

import (
	"net/http"
	"strings"

	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/sashabaranov/go-openai"
)

// NewChatClient returns an OpenAI compatible client for the gateway's
// inference endpoint at {baseURL}/v1, authenticated with cred.
func NewChatClient(baseURL string, cred credentials.Credential, httpClient *http.Client) *openai.Client {
	config := openai.DefaultConfig(cred.APIKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return openai.NewClientWithConfig(config)
}
