// Package executor runs workflow nodes and normalizes their outcome into a
// Result envelope. Node failures are values, never errors.
package executor

import (
	"encoding/json"
	"time"
)

// Stable failure codes.
const (
	CodeMissingCredential    = "MISSING_CREDENTIAL"
	CodeModelNotFound        = "MODEL_NOT_FOUND"
	CodeRateLimited          = "RATE_LIMITED"
	CodeUpstreamFailure      = "UPSTREAM_FAILURE"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
)

type Metadata struct {
	Model            string    `json:"model,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	FinishReason     string    `json:"finishReason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type ErrorDetails struct {
	Code       string    `json:"code"`
	Model      string    `json:"model,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the envelope every node execution produces.
type Result struct {
	Success      bool
	Data         any
	Metadata     *Metadata
	Error        string
	ErrorDetails *ErrorDetails
}

func Succeeded(data any, metadata Metadata) Result {
	return Result{Success: true, Data: data, Metadata: &metadata}
}

func Failed(message string, details ErrorDetails) Result {
	return Result{Error: message, ErrorDetails: &details}
}

// Code returns the failure code, empty on success.
func (r Result) Code() string {
	if r.Success || r.ErrorDetails == nil {
		return ""
	}

	return r.ErrorDetails.Code
}

type successEnvelope struct {
	Success  bool      `json:"success"`
	Data     any       `json:"data"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type failureEnvelope struct {
	Success      bool          `json:"success"`
	Error        string        `json:"error"`
	ErrorDetails *ErrorDetails `json:"errorDetails,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successEnvelope{Success: true, Data: r.Data, Metadata: r.Metadata})
	}

	return json.Marshal(failureEnvelope{Error: r.Error, ErrorDetails: r.ErrorDetails})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success      bool          `json:"success"`
		Data         any           `json:"data"`
		Metadata     *Metadata     `json:"metadata"`
		Error        string        `json:"error"`
		ErrorDetails *ErrorDetails `json:"errorDetails"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Result{
		Success:      raw.Success,
		Data:         raw.Data,
		Metadata:     raw.Metadata,
		Error:        raw.Error,
		ErrorDetails: raw.ErrorDetails,
	}

	return nil
}
