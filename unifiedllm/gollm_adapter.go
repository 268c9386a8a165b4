package unifiedllm

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

const defaultGollmMaxTokens = 4096

// GollmAdapter serves the named providers gollm supports (openai,
// anthropic, groq, ollama, ...). gollm takes a single prompt, so the
// conversation is flattened before each call.
type GollmAdapter struct {
	provider string
	model    string
	llm      gollm.LLM
}

// GollmAdapterOption configures NewGollmAdapter.
type GollmAdapterOption func(*gollmSettings)

type gollmSettings struct {
	model     string
	maxTokens int
	extra     []gollm.ConfigOption
}

// WithGollmModel selects the model. Without it a per-provider default is used.
func WithGollmModel(model string) GollmAdapterOption {
	return func(s *gollmSettings) { s.model = model }
}

// WithGollmMaxTokens sets the reply cap used when a request carries none.
func WithGollmMaxTokens(n int) GollmAdapterOption {
	return func(s *gollmSettings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithGollmOptions passes raw gollm options through, applied last.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(s *gollmSettings) { s.extra = append(s.extra, opts...) }
}

var gollmDefaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"ollama":    "llama3",
	"groq":      "llama-3.1-8b-instant",
}

func defaultGollmModel(provider string) string {
	if m, ok := gollmDefaultModels[provider]; ok {
		return m
	}
	return "gpt-4o-mini"
}

// NewGollmAdapter builds a gollm client for provider. An empty apiKey lets
// gollm fall back to its own environment lookup. gollm retries are disabled;
// RetryMiddleware owns that concern.
func NewGollmAdapter(provider, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	s := gollmSettings{maxTokens: defaultGollmMaxTokens}
	for _, opt := range opts {
		opt(&s)
	}
	if s.model == "" {
		s.model = defaultGollmModel(provider)
	}

	config := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(s.model),
		gollm.SetMaxTokens(s.maxTokens),
		gollm.SetTemperature(DefaultTemperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		config = append(config, gollm.SetAPIKey(apiKey))
	}
	config = append(config, s.extra...)

	llm, err := gollm.NewLLM(config...)
	if err != nil {
		return nil, &ConfigurationError{SDKError{Message: "gollm provider " + provider, Cause: err}}
	}
	return &GollmAdapter{provider: provider, model: s.model, llm: llm}, nil
}

// NewGollmAdapterFromLLM wraps an already configured gollm.LLM.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

func (a *GollmAdapter) Name() string { return a.provider }

// Complete sends the flattened conversation and wraps the reply.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := a.llm.Generate(ctx, flattenConversation(req))
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// flattenConversation builds the gollm prompt for req.
func flattenConversation(req Request) *gollm.Prompt {
	system, body := splitConversation(req.Messages)
	var opts []gollm.PromptOption
	if system != "" {
		opts = append(opts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	return gollm.NewPrompt(body, opts...)
}

// splitConversation merges system turns into one system text and joins the
// remaining turns in order, tagging the assistant's.
func splitConversation(messages []Message) (system, body string) {
	var sys, turns []string
	for _, m := range messages {
		switch {
		case m.Role == RoleSystem:
			sys = append(sys, m.Content)
		case m.Role == RoleUser:
			turns = append(turns, m.Content)
		case m.Role == RoleAssistant && m.Content != "":
			turns = append(turns, "[Assistant]: "+m.Content)
		}
	}
	body = strings.Join(turns, "\n\n")
	if body == "" {
		body = "Hello"
	}
	return strings.TrimSpace(strings.Join(sys, "\n\n")), body
}

// buildResponse wraps generated text. gollm reports no usage, so token
// counts are estimated at four characters per token.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	in, out := estimateTokens(req), len(text)/4
	return &Response{
		ID:           "resp_" + uuid.NewString()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      AssistantMessage(text),
		FinishReason: normalizeFinishReason("stop"),
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// gollmFailures classifies gollm's string-only errors by the status they
// describe. Order matters: the first match wins.
var gollmFailures = []struct {
	status  int
	needles []string
}{
	{401, []string{"401", "unauthorized", "invalid key", "invalid api key"}},
	{403, []string{"403", "forbidden"}},
	{404, []string{"404", "not found"}},
	{429, []string{"429", "rate limit"}},
	{413, []string{"context length", "too many tokens"}},
	{500, []string{"500", "internal server"}},
}

func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	mentions := func(needles ...string) bool {
		for _, n := range needles {
			if strings.Contains(lower, n) {
				return true
			}
		}
		return false
	}

	for _, f := range gollmFailures {
		if mentions(f.needles...) {
			out := ErrorFromStatusCode(f.status, msg, a.provider, "", nil, nil)
			if pe, ok := AsProviderError(out); ok {
				pe.Cause = err
			}
			return out
		}
	}

	switch {
	case mentions("timeout"):
		return &RequestTimeoutError{SDKError{Message: msg, Cause: err}}
	case mentions("connection refused", "no such host"):
		return &NetworkError{SDKError{Message: msg, Cause: err}}
	case mentions("content filter", "safety"):
		return &ContentFilterError{ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider}}
	}
	return &ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, Retryable: true}
}

// estimateTokens approximates prompt size; an empty prompt counts as 10.
func estimateTokens(req Request) int {
	n := 0
	for _, m := range req.Messages {
		n += len(m.Content) / 4
	}
	if n == 0 {
		return 10
	}
	return n
}
