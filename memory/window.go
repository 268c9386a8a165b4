package memory

import (
	"fmt"
	"strings"
)

// Role identifies the author of a window message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SummaryPrefix starts the content of the synthetic system message that
// replaces compacted history.
const SummaryPrefix = "[Previous conversation summary]\n"

const summarizationInstruction = "Summarize the following conversation in a single paragraph. " +
	"Preserve every key decision, fact, file path, and pending action item. Be concise."

// Message is one entry of the conversation window.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Window is the bounded short-term conversation history. It is not safe for
// concurrent use; a Session serializes access to it.
type Window struct {
	maxShortTerm     int
	summaryThreshold int
	messages         []Message
	// summarized is true while messages[0] is a summary marker.
	summarized bool
}

// NewWindow creates an empty window. maxShortTerm must be at least 4 and
// summaryThreshold must lie in [2, maxShortTerm].
func NewWindow(maxShortTerm, summaryThreshold int) (*Window, error) {
	if maxShortTerm < 4 {
		return nil, fmt.Errorf("max_short_term must be at least 4, got %d", maxShortTerm)
	}
	if summaryThreshold < 2 || summaryThreshold > maxShortTerm {
		return nil, fmt.Errorf("summary_threshold must be between 2 and %d, got %d", maxShortTerm, summaryThreshold)
	}
	return &Window{
		maxShortTerm:     maxShortTerm,
		summaryThreshold: summaryThreshold,
	}, nil
}

// AddMessage appends a message to the window.
func (w *Window) AddMessage(role Role, content string) {
	w.messages = append(w.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the window.
func (w *Window) Messages() []Message {
	out := make([]Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Len returns the number of messages in the window, summary marker included.
func (w *Window) Len() int { return len(w.messages) }

// MaxShortTerm returns the configured window cap.
func (w *Window) MaxShortTerm() int { return w.maxShortTerm }

// SummaryThreshold returns the length at which compaction is requested.
func (w *Window) SummaryThreshold() int { return w.summaryThreshold }

// NeedsSummarization reports whether the window has grown to the threshold.
func (w *Window) NeedsSummarization() bool {
	return len(w.messages) >= w.summaryThreshold
}

// SummarizationPrompt renders the instruction and full transcript for a
// compaction request. It depends only on the current window.
func (w *Window) SummarizationPrompt() string {
	var sb strings.Builder
	sb.WriteString(summarizationInstruction)
	sb.WriteString("\n\n")
	for i, m := range w.messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.ToUpper(string(m.Role)))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// tailSize is the number of non-summary messages kept after compaction.
func (w *Window) tailSize() int {
	return w.maxShortTerm / 2
}

// ApplySummary replaces the window with a summary marker followed by the
// most recent messages. The last message and the latest user message
// always survive, and the result is shorter than the window cap.
func (w *Window) ApplySummary(summary string) {
	history := w.messages
	if w.summarized && len(history) > 0 {
		history = history[1:]
	}

	k := w.tailSize()
	var tail []Message
	if len(history) <= k {
		tail = append(tail, history...)
	} else {
		start := len(history) - k
		lastUser := -1
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == RoleUser {
				lastUser = i
				break
			}
		}
		if lastUser >= 0 && lastUser < start {
			tail = append(tail, history[lastUser])
			tail = append(tail, history[len(history)-(k-1):]...)
		} else {
			tail = append(tail, history[start:]...)
		}
	}

	compacted := make([]Message, 0, len(tail)+1)
	compacted = append(compacted, Message{Role: RoleSystem, Content: SummaryPrefix + summary})
	compacted = append(compacted, tail...)
	w.messages = compacted
	w.summarized = true
}

// Clear empties the window.
func (w *Window) Clear() {
	w.messages = nil
	w.summarized = false
}
