package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAICompatAdapterComplete(t *testing.T) {
	var got chatCompletionRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","model":"llama3","choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(srv.URL+"/v1/", "sk-test", "llama3")
	temp := 0.7
	resp, err := adapter.Complete(context.Background(), Request{
		Messages:    []Message{SystemMessage("sys"), UserMessage("hello")},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != "/v1/chat/completions" {
		t.Errorf("unexpected path %q", path)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if got.Model != "llama3" || len(got.Messages) != 2 || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature not forwarded: %v", got.Temperature)
	}
	if got.MaxTokens != nil {
		t.Errorf("max_tokens should be omitted, got %d", *got.MaxTokens)
	}

	if resp.Text() != "hi there" || resp.ID != "cmpl-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 7 || resp.FinishReason.Reason != "stop" {
		t.Errorf("unexpected usage or finish reason: %+v", resp)
	}
}

func TestOpenAICompatAdapterNoKeyNoHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAICompatAdapter(srv.URL, "", "m").Complete(context.Background(), Request{Messages: []Message{UserMessage("x")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawAuth {
		t.Error("expected no Authorization header without a key")
	}
	if resp.ID == "" {
		t.Error("expected a generated response id")
	}
}

func TestOpenAICompatAdapterStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit","code":"rate_limited"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAICompatAdapter(srv.URL, "", "m").Complete(context.Background(), Request{})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rl.Message != "slow down" || rl.ErrorCode != "rate_limited" {
		t.Errorf("unexpected error details: %+v", rl)
	}
	if rl.RetryAfter == nil || *rl.RetryAfter != 3 {
		t.Errorf("expected Retry-After 3, got %v", rl.RetryAfter)
	}
	if !IsTransportError(err) {
		t.Error("expected a transport error")
	}
}

func TestOpenAICompatAdapterPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOpenAICompatAdapter(srv.URL, "", "m").Complete(context.Background(), Request{})
	var server *ServerError
	if !errors.As(err, &server) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if server.Message != "model not loaded" {
		t.Errorf("unexpected message %q", server.Message)
	}
}

func TestOpenAICompatAdapterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOpenAICompatAdapter(url, "", "m").Complete(context.Background(), Request{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if !IsTransportError(err) {
		t.Error("expected a transport error")
	}
}

func TestOpenAICompatAdapterTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	adapter := NewOpenAICompatAdapter(srv.URL, "", "m", WithHTTPTimeout(50*time.Millisecond))
	_, err := adapter.Complete(context.Background(), Request{})
	var timeout *RequestTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected RequestTimeoutError, got %T: %v", err, err)
	}
}

func TestOpenAICompatAdapterEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAICompatAdapter(srv.URL, "", "m").Complete(context.Background(), Request{})
	if _, ok := AsProviderError(err); !ok {
		t.Fatalf("expected provider error, got %T", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if parseRetryAfter("") != nil || parseRetryAfter("soon") != nil || parseRetryAfter("-1") != nil {
		t.Error("expected nil for missing or invalid values")
	}
	if v := parseRetryAfter(" 1.5 "); v == nil || *v != 1.5 {
		t.Errorf("expected 1.5, got %v", v)
	}
}
