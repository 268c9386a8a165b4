// Package unifiedllm is a small provider-agnostic chat client for the agent
// loop. It sends role-tagged messages to a model endpoint and returns the
// reply text.
//
// # Architecture
//
//   - ProviderAdapter: one implementation per backend. OpenAICompatAdapter
//     speaks the chat-completions wire format over HTTP; GollmAdapter wraps
//     github.com/teilomillet/gollm for its named providers.
//   - Client: routes each Request to a provider and runs the middleware
//     chain (onion order, first registered runs first).
//   - Errors: every endpoint failure is a typed error (ProviderError family,
//     NetworkError, RequestTimeoutError). IsTransportError groups them.
//   - Retry: opt-in through RetryMiddleware. Chat itself never retries.
//
// # Quick Start
//
//	adapter := unifiedllm.NewOpenAICompatAdapter("http://localhost:11434/v1", "", "llama3")
//	client := unifiedllm.NewClient(unifiedllm.WithProvider(adapter.Name(), adapter))
//
//	reply, err := client.Chat(ctx, []unifiedllm.Message{
//	    unifiedllm.SystemMessage("You are terse."),
//	    unifiedllm.UserMessage("Hello"),
//	})
//
// Temperature defaults to DefaultTemperature; pass WithTemperature(0) for
// deterministic calls such as summarization. MaxTokens is omitted unless
// WithMaxTokens is given.
package unifiedllm
