// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// defaultSystemPrompt frames every request. The program dialect the
// sandbox evaluates is small enough to describe inline.
const defaultSystemPrompt = `You write rendering programs in a Starlark dialect.
Available builtins: param(name, default, min?, max?, step?, kind?, group?, options?),
box(size?, at?, name?), sphere(radius?, at?, name?), cylinder(radius?, height?, at?, name?),
group(name?), helper(obj), hide(obj), set_main(obj),
material(color?, metalness?, roughness?, opacity?, wireframe?, flat_shading?).
Declare every user-tunable dimension with param(). Reply with the complete
program only, inside a single code fence.`

// HTTPService implements [Service] against an OpenAI-compatible chat
// completion endpoint.
type HTTPService struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	system     string
}

// HTTPServiceOptions configures [NewHTTPService].
type HTTPServiceOptions struct {
	// BaseURL is the API root, e.g. "https://api.openai.com".
	// Required.
	BaseURL string

	// APIKey is sent as a bearer token. May be empty for local
	// endpoints that need none.
	APIKey string

	// Model names the model. Required.
	Model string

	// HTTPClient defaults to http.DefaultClient. Supply one with a
	// timeout in production; generation can take tens of seconds.
	HTTPClient *http.Client

	// SystemPrompt overrides the built-in program-dialect framing.
	SystemPrompt string
}

// NewHTTPService creates an HTTPService.
func NewHTTPService(options HTTPServiceOptions) (*HTTPService, error) {
	if options.BaseURL == "" {
		return nil, fmt.Errorf("generate: BaseURL is required")
	}
	if options.Model == "" {
		return nil, fmt.Errorf("generate: Model is required")
	}
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.SystemPrompt == "" {
		options.SystemPrompt = defaultSystemPrompt
	}
	return &HTTPService{
		httpClient: options.HTTPClient,
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		model:      options.Model,
		system:     options.SystemPrompt,
	}, nil
}

// chat wire format, request side.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chat wire format, response side. Only the fields we read.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the request and extracts the program from the reply.
func (service *HTTPService) Generate(ctx context.Context, request Request) (Result, error) {
	if err := request.Validate(); err != nil {
		return Result{}, err
	}

	wireRequest := chatRequest{
		Model: service.model,
		Messages: []chatMessage{
			{Role: "system", Content: service.system},
			{Role: "user", Content: request.userMessage()},
		},
		Temperature: 0.2,
	}
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return Result{}, fmt.Errorf("generate: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		service.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("generate: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if service.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+service.apiKey)
	}

	httpResponse, err := service.httpClient.Do(httpRequest)
	if err != nil {
		return Result{}, fmt.Errorf("generate: sending request: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return Result{}, readServiceError(httpResponse)
	}

	var wireResponse chatResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return Result{}, fmt.Errorf("generate: decoding response: %w", err)
	}
	if len(wireResponse.Choices) == 0 {
		return Result{}, fmt.Errorf("generate: response has no choices")
	}

	code := extractCode(wireResponse.Choices[0].Message.Content)
	if code == "" {
		return Result{}, fmt.Errorf("generate: response contained no program")
	}
	return Result{Code: code}, nil
}

// ServiceError is returned when the completion API responds with an
// error status.
type ServiceError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g. "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ServiceError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("generate: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("generate: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true for HTTP 429 responses.
func (err *ServiceError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsOverloaded returns true for server overload responses (HTTP 529).
func (err *ServiceError) IsOverloaded() bool {
	return err.StatusCode == 529
}

// readServiceError parses an error response body in the common format
// {"error":{"type":"...","message":"..."}} used by OpenAI-compatible
// APIs. Bodies in any other shape become the message verbatim.
func readServiceError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ServiceError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ServiceError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
