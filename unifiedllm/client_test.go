package unifiedllm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockAdapter is a test double for ProviderAdapter. It fails the first
// failures calls with a retryable server error when err is nil.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	failures int

	calls    int
	requests []Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls <= m.failures {
		return nil, ErrorFromStatusCode(503, "unavailable", m.name, "", nil, nil)
	}
	return m.response, nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientRouting(t *testing.T) {
	local := newMockAdapter("openai-compatible", "local")
	remote := newMockAdapter("anthropic", "remote")
	client := NewClient(
		WithProvider(local.name, local),
		WithProvider(remote.name, remote),
		WithDefaultProvider(local.name),
		WithDefaultModel("llama3"),
	)

	tests := []struct {
		provider string
		model    string
		wantText string
	}{
		{"", "", "local"},
		{"anthropic", "", "remote"},
		{"anthropic", "claude", "remote"},
	}
	for _, tt := range tests {
		resp, err := client.Complete(context.Background(), Request{
			Provider: tt.provider,
			Model:    tt.model,
			Messages: []Message{UserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("provider %q: %v", tt.provider, err)
		}
		if resp.Text() != tt.wantText {
			t.Errorf("provider %q: text = %q, want %q", tt.provider, resp.Text(), tt.wantText)
		}
	}

	if got := local.requests[0]; got.Provider != "openai-compatible" || got.Model != "llama3" {
		t.Errorf("defaults not filled in: %+v", got)
	}
	if got := remote.requests[1].Model; got != "claude" {
		t.Errorf("explicit model overwritten: %q", got)
	}
}

func TestClientConfigurationErrors(t *testing.T) {
	cases := map[string]struct {
		client *Client
		req    Request
	}{
		"no providers":     {NewClient(), Request{}},
		"unknown provider": {NewClient(WithProvider("a", newMockAdapter("a", "x"))), Request{Provider: "b"}},
	}
	for name, tc := range cases {
		_, err := tc.client.Complete(context.Background(), tc.req)
		var conf *ConfigurationError
		if !errors.As(err, &conf) {
			t.Errorf("%s: expected ConfigurationError, got %T", name, err)
		}
		if IsTransportError(err) || IsRetryable(err) {
			t.Errorf("%s: configuration errors are neither transport nor retryable", name)
		}
	}
}

func TestRegisterProviderFirstBecomesDefault(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("dynamic", newMockAdapter("dynamic", "dynamic response"))
	client.RegisterProvider("second", newMockAdapter("second", "second response"))

	reply, err := client.Chat(context.Background(), []Message{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "dynamic response" {
		t.Errorf("first registered provider should be the default, got %q", reply)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			trace = append(trace, "in:"+name)
			resp, err := next(ctx, req)
			trace = append(trace, "out:"+name)
			return resp, err
		}
	}
	client := NewClient(WithProvider("test", newMockAdapter("test", "ok")), WithMiddleware(tag("a"), tag("b")))

	if _, err := client.Chat(context.Background(), []Message{UserMessage("hi")}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	want := "in:a in:b out:b out:a"
	if got := strings.Join(trace, " "); got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
}

type closingAdapter struct {
	*mockAdapter
	err error
}

func (c closingAdapter) Close() error { return c.err }

func TestClientCloseJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	client := NewClient(
		WithProvider("ok", closingAdapter{mockAdapter: newMockAdapter("ok", "")}),
		WithProvider("bad", closingAdapter{mockAdapter: newMockAdapter("bad", ""), err: boom}),
		WithProvider("plain", newMockAdapter("plain", "")),
	)
	err := client.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("Close() = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "close bad") {
		t.Errorf("error should name the adapter: %v", err)
	}
}

func TestChatDefaults(t *testing.T) {
	mock := newMockAdapter("test", "pong")
	client := NewClient(WithProvider("test", mock), WithDefaultModel("llama3"))

	reply, err := client.Chat(context.Background(), []Message{SystemMessage("sys"), UserMessage("ping")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "pong" {
		t.Errorf("expected %q, got %q", "pong", reply)
	}

	req := mock.requests[0]
	if req.Temperature == nil || *req.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature %v, got %v", DefaultTemperature, req.Temperature)
	}
	if req.MaxTokens != nil {
		t.Errorf("expected no max tokens by default, got %d", *req.MaxTokens)
	}
	if req.Model != "llama3" {
		t.Errorf("expected default model, got %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[1].Content != "ping" {
		t.Errorf("messages not forwarded in order: %+v", req.Messages)
	}
}

func TestChatOptions(t *testing.T) {
	mock := newMockAdapter("test", "ok")
	client := NewClient(WithProvider("test", mock))

	_, err := client.Chat(context.Background(), []Message{UserMessage("summarize")},
		WithTemperature(0), WithMaxTokens(256), WithModel("other"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := mock.requests[0]
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %v", req.MaxTokens)
	}
	if req.Model != "other" {
		t.Errorf("expected model override, got %q", req.Model)
	}
}

func TestChatDoesNotRetry(t *testing.T) {
	mock := newMockAdapter("test", "never")
	mock.failures = 1
	client := NewClient(WithProvider("test", mock))

	_, err := client.Chat(context.Background(), []Message{UserMessage("hi")})
	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("expected exactly one call, got %d", mock.calls)
	}
}
