package agentloop

import (
	"github.com/martinemde/agentbuilder/memory"
	"github.com/martinemde/agentbuilder/unifiedllm"
)

// ConvertWindowToMessages converts the conversation window into model
// messages, preserving order. The summary marker travels as a system message.
func ConvertWindowToMessages(window []memory.Message) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(window))
	for _, m := range window {
		switch m.Role {
		case memory.RoleSystem:
			messages = append(messages, unifiedllm.SystemMessage(m.Content))
		case memory.RoleAssistant:
			messages = append(messages, unifiedllm.AssistantMessage(m.Content))
		default:
			messages = append(messages, unifiedllm.UserMessage(m.Content))
		}
	}
	return messages
}

// buildRequestMessages prepends the system prompt to the window.
func buildRequestMessages(systemPrompt string, window []memory.Message) []unifiedllm.Message {
	return append([]unifiedllm.Message{unifiedllm.SystemMessage(systemPrompt)}, ConvertWindowToMessages(window)...)
}
