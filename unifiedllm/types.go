package unifiedllm

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn sent to or received from a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Request is the input to Complete.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Provider    string    `json:"provider,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	// MaxTokens nil leaves the cap to the endpoint.
	MaxTokens *int              `json:"max_tokens,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FinishReason describes why generation stopped.
type FinishReason struct {
	Reason string `json:"reason"` // "stop", "length", "content_filter", "error", "other"
	Raw    string `json:"raw,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Response is the output of Complete.
type Response struct {
	ID           string                 `json:"id"`
	Model        string                 `json:"model"`
	Provider     string                 `json:"provider"`
	Message      Message                `json:"message"`
	FinishReason FinishReason           `json:"finish_reason"`
	Usage        Usage                  `json:"usage"`
	Raw          map[string]interface{} `json:"raw,omitempty"`
}

// Text returns the reply text.
func (r Response) Text() string {
	return r.Message.Content
}

func normalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "end_turn", "":
		return FinishReason{Reason: "stop", Raw: raw}
	case "length", "max_tokens":
		return FinishReason{Reason: "length", Raw: raw}
	case "content_filter":
		return FinishReason{Reason: "content_filter", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}
