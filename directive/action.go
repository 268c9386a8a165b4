// Package directive extracts action requests embedded in model replies.
//
// Recognized forms:
//
//	[MEMORY SET key=value]
//	[MEMORY GET key]
//	[MEMORY DEL key]
//	[MEMORY LIST]
//	[SKILL LOAD name]
//
// and fenced code blocks whose info string is an executable tag (by default
// "run"). Anything else is ordinary reply text.
package directive

import "fmt"

// Kind identifies the action variant.
type Kind string

const (
	KindMemorySet    Kind = "memory_set"
	KindMemoryGet    Kind = "memory_get"
	KindMemoryDelete Kind = "memory_delete"
	KindMemoryList   Kind = "memory_list"
	KindSkillLoad    Kind = "skill_load"
	KindCodeRun      Kind = "code_run"
)

// Action is one parsed directive. Only the fields relevant to Kind are set.
type Action struct {
	Kind     Kind   `json:"kind"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	// Offset is the byte position of the directive in the source text.
	Offset int `json:"offset"`
}

// String renders the action in its source syntax, code blocks abbreviated.
func (a Action) String() string {
	switch a.Kind {
	case KindMemorySet:
		return fmt.Sprintf("[MEMORY SET %s=%s]", a.Key, a.Value)
	case KindMemoryGet:
		return fmt.Sprintf("[MEMORY GET %s]", a.Key)
	case KindMemoryDelete:
		return fmt.Sprintf("[MEMORY DEL %s]", a.Key)
	case KindMemoryList:
		return "[MEMORY LIST]"
	case KindSkillLoad:
		return fmt.Sprintf("[SKILL LOAD %s]", a.Name)
	case KindCodeRun:
		return fmt.Sprintf("```%s (%d bytes)", a.Language, len(a.Code))
	default:
		return string(a.Kind)
	}
}
