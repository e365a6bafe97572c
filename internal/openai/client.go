package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docprompt/docprompt/internal/tokenizer"
)

// DefaultBaseURL is the provider API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client is a thin HTTP client for the embedding and completion endpoints.
// Streamed completion responses are returned as raw *http.Response so callers
// can read the event stream incrementally.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, used by tests to point at a fake server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient builds a Client authenticating with apiKey by default. Individual
// calls may override the key with a per-request credential.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) key(credential string) string {
	if credential != "" {
		return credential
	}
	return c.apiKey
}

// Usage reports token consumption attributed to a provider call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingData is a single embedding vector in an embedding response.
type EmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingResponse is the embedding endpoint response body.
type EmbeddingResponse struct {
	Data  []EmbeddingData `json:"data"`
	Usage Usage           `json:"usage"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateEmbedding embeds input with the fixed embedding model. A non-empty
// credential replaces the client's default API key for this call.
func (c *Client) CreateEmbedding(ctx context.Context, input, credential string) (*EmbeddingResponse, error) {
	body, err := c.post(ctx, "/embeddings", embeddingRequest{Model: EmbeddingModel, Input: input}, credential)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp EmbeddingResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contains no data")
	}
	return &resp, nil
}

// CompletionParams are the caller-tunable sampling parameters of a completion
// request.
type CompletionParams struct {
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
}

// DefaultCompletionParams returns the sampling defaults applied when a
// request leaves a parameter unset.
func DefaultCompletionParams() CompletionParams {
	return CompletionParams{
		Temperature:      0.1,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		MaxTokens:        500,
	}
}

// CompletionPayload is the completion request body. Messages is set for chat
// models and Prompt for legacy completion models, never both.
type CompletionPayload struct {
	Model            string                  `json:"model"`
	Temperature      float32                 `json:"temperature"`
	TopP             float32                 `json:"top_p"`
	FrequencyPenalty float32                 `json:"frequency_penalty"`
	PresencePenalty  float32                 `json:"presence_penalty"`
	MaxTokens        int                     `json:"max_tokens"`
	Stream           bool                    `json:"stream"`
	N                int                     `json:"n"`
	Messages         []tokenizer.ChatMessage `json:"messages,omitempty"`
	Prompt           string                  `json:"prompt,omitempty"`
}

// NewCompletionPayload shapes fullPrompt into the request body for the model
// family: chat models wrap it in a single user message, legacy models send it
// as a flat prompt.
func NewCompletionPayload(fullPrompt string, info ModelInfo, params CompletionParams, stream bool) CompletionPayload {
	payload := CompletionPayload{
		Model:            info.ID,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		MaxTokens:        params.MaxTokens,
		Stream:           stream,
		N:                1,
	}
	if info.Type == ModelTypeChatCompletions {
		payload.Messages = []tokenizer.ChatMessage{{Role: "user", Content: fullPrompt}}
	} else {
		payload.Prompt = fullPrompt
	}
	return payload
}

// Complete issues a completion request and returns the raw HTTP response.
// The caller owns the response body; for streamed requests it carries the
// event stream. Non-2xx responses are returned as-is with a nil error so the
// caller can read the provider's error payload.
func (c *Client) Complete(ctx context.Context, payload CompletionPayload, credential string) (*http.Response, error) {
	info := ModelInfoFromString(payload.Model)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+info.completionsPath(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key(credential))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody any, credential string) (io.ReadCloser, error) {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key(credential))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}
