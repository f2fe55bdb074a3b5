// Package ai mediates every call to the remote text-generation endpoint:
// cooldown gating, rate-limit handling, cancellation, and robust parsing
// of model output.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"
)

//go:generate mockgen -source=client.go -destination=../mocks/ai/mock_client.go -package=mock_ai

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to the endpoint.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the endpoint request body.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Response is a successful endpoint response.
type Response struct {
	Response string         `json:"response"`
	Usage    map[string]any `json:"usage,omitempty"`
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimitError is returned when the endpoint reports rate limiting.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRateLimit reports whether err is a rate-limit response.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// EndpointError is any non-success, non-rate-limit endpoint response.
type EndpointError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// CompletionClient is the remote text-generation capability as seen by
// the orchestrator.
type CompletionClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Available(ctx context.Context) bool
}

// Client calls the deployed AI proxy. The proxy holds the upstream
// credential; this client only ever sees success, rate-limit, or error
// responses.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

// NewClient creates a client for the proxy at baseURL.
func NewClient(baseURL string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
	}
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

// Complete performs one synchronous generation call.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	response, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&Response{}).
		SetError(&errorBody{}).
		Post("/api/generate")
	if err != nil {
		return Response{}, fmt.Errorf("httpClient.Post > %w", err)
	}

	if response.StatusCode() == http.StatusTooManyRequests {
		body, _ := response.Error().(*errorBody)
		rl := &RateLimitError{RetryAfter: 3 * time.Second}
		if body != nil {
			rl.Message = body.Message
			if body.RetryAfter > 0 {
				rl.RetryAfter = time.Duration(body.RetryAfter) * time.Second
			}
		}
		return Response{}, rl
	}
	if response.IsError() {
		endpointErr := &EndpointError{StatusCode: response.StatusCode()}
		if body, ok := response.Error().(*errorBody); ok && body != nil {
			endpointErr.Kind = body.Error
			endpointErr.Message = body.Message
		}
		if endpointErr.Message == "" {
			endpointErr.Message = response.String()
		}
		return Response{}, endpointErr
	}

	responseBody, ok := response.Result().(*Response)
	if !ok || responseBody == nil {
		return Response{}, fmt.Errorf("unexpected response body: %s", response.String())
	}
	if responseBody.Response == "" {
		return Response{}, fmt.Errorf("empty response content: %s", response.String())
	}
	return *responseBody, nil
}

// Available probes the endpoint with a short timeout. Any HTTP answer
// below 500 counts as reachable; background flows use this to skip work
// when the proxy is down.
func (c *Client) Available(ctx context.Context) bool {
	probe := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}
