package unifiedllm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// OpenAICompatProvider is the provider name of OpenAICompatAdapter.
	OpenAICompatProvider = "openai-compatible"

	// DefaultHTTPTimeout bounds one chat-completions round trip.
	DefaultHTTPTimeout = 120 * time.Second

	maxErrorBody = 64 << 10
)

// OpenAICompatAdapter talks to any endpoint exposing the OpenAI
// chat-completions wire format (OpenAI, Ollama, vLLM, LM Studio, ...).
type OpenAICompatAdapter struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// OpenAICompatOption configures an OpenAICompatAdapter.
type OpenAICompatOption func(*OpenAICompatAdapter)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OpenAICompatOption {
	return func(a *OpenAICompatAdapter) { a.httpClient = c }
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) OpenAICompatOption {
	return func(a *OpenAICompatAdapter) {
		if d > 0 {
			a.httpClient.Timeout = d
		}
	}
}

// NewOpenAICompatAdapter creates an adapter for baseURL (for example
// "http://localhost:11434/v1"). An empty apiKey sends no Authorization header.
func NewOpenAICompatAdapter(baseURL, apiKey, model string, opts ...OpenAICompatOption) *OpenAICompatAdapter {
	a := &OpenAICompatAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider identifier.
func (a *OpenAICompatAdapter) Name() string { return OpenAICompatProvider }

// BaseURL returns the endpoint root without a trailing slash.
func (a *OpenAICompatAdapter) BaseURL() string { return a.baseURL }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete posts the conversation to {base}/chat/completions.
func (a *OpenAICompatAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "encode request", Cause: err},
			Provider: OpenAICompatProvider,
		}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "build request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, a.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, a.statusError(resp)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ProviderError{
			SDKError:   SDKError{Message: "malformed completion body", Cause: err},
			Provider:   OpenAICompatProvider,
			StatusCode: resp.StatusCode,
		}
	}
	if len(decoded.Choices) == 0 {
		return nil, &ProviderError{
			SDKError:   SDKError{Message: "completion has no choices"},
			Provider:   OpenAICompatProvider,
			StatusCode: resp.StatusCode,
		}
	}

	choice := decoded.Choices[0]
	id := decoded.ID
	if id == "" {
		id = "resp_" + uuid.New().String()[:8]
	}
	if decoded.Model != "" {
		model = decoded.Model
	}

	return &Response{
		ID:           id,
		Model:        model,
		Provider:     OpenAICompatProvider,
		Message:      AssistantMessage(choice.Message.Content),
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAICompatAdapter) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctxErr}}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestTimeoutError{SDKError: SDKError{
			Message: fmt.Sprintf("no answer from %s within %s", a.baseURL, a.httpClient.Timeout),
			Cause:   err,
		}}
	}
	return &NetworkError{SDKError: SDKError{
		Message: fmt.Sprintf("could not reach %s", a.baseURL),
		Cause:   err,
	}}
}

func (a *OpenAICompatAdapter) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := strings.TrimSpace(string(raw))
	var code string
	var rawMap map[string]interface{}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		message = env.Error.Message
		if env.Error.Code != nil {
			code = fmt.Sprint(env.Error.Code)
		} else {
			code = env.Error.Type
		}
		_ = json.Unmarshal(raw, &rawMap)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return ErrorFromStatusCode(resp.StatusCode, message, OpenAICompatProvider, code, rawMap, parseRetryAfter(resp.Header.Get("Retry-After")))
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) *float64 {
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}
