// Package agentloop implements the agent's bounded action loop.
//
// A Session pairs a chat model with three kinds of in-band actions the model
// can request by writing directives in its reply: long-term memory
// operations, skill loading and code execution. Each user turn runs up to
// MaxActionRounds rounds of model call, directive parsing, action dispatch
// and feedback, and ends as soon as a reply carries no directives.
//
// # Architecture
//
//   - Session: holds the conversation window (through memory.Memory),
//     compacts it with a summarization call when it grows past the
//     threshold, and drives the round loop.
//   - Dispatch: one switch over directive.Kind. Every action produces a
//     feedback line; failures are fed back, never raised.
//   - System prompt: preamble, environment block, skill catalog, stored
//     memory keys, AGENTS.md project docs and user instructions.
//   - EventEmitter: typed event stream for the host. Full code output goes
//     here; the model only sees truncated output.
//
// # Quick Start
//
//	mem, _ := memory.New(workspace)
//	runner, _ := sandbox.New(workspace)
//	registry := skills.NewRegistry([]string{"./skills"})
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai-compatible",
//	    unifiedllm.NewOpenAICompatAdapter("http://localhost:11434/v1", "", "llama3")))
//
//	session, _ := agentloop.NewSession(agentloop.Components{
//	    Model: client, Memory: mem, Skills: registry, Runner: runner,
//	}, nil)
//	defer session.Close()
//
//	reply, err := session.Chat(ctx, "What is 2**100?")
package agentloop
