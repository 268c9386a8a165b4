package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/agentbuilder/directive"
	"github.com/martinemde/agentbuilder/memory"
	"github.com/martinemde/agentbuilder/sandbox"
	"github.com/martinemde/agentbuilder/skills"
	"github.com/martinemde/agentbuilder/unifiedllm"
)

// ErrSessionClosed is returned by Chat and RunFile after Close.
var ErrSessionClosed = errors.New("session is closed")

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateAwaitingUser    SessionState = "awaiting_user"
	StateSummarizing     SessionState = "summarizing"
	StateDispatching     SessionState = "dispatching"
	StateModelCall       SessionState = "model_call"
	StateActionExecution SessionState = "action_execution"
	StateFeedback        SessionState = "feedback"
	StateClosed          SessionState = "closed"
)

// ModelClient sends a conversation to a model and returns the reply text.
// *unifiedllm.Client implements it.
type ModelClient interface {
	Chat(ctx context.Context, messages []unifiedllm.Message, opts ...unifiedllm.ChatOption) (string, error)
}

// CodeRunner executes code inside the workspace. *sandbox.Executor
// implements it.
type CodeRunner interface {
	Workspace() string
	Run(ctx context.Context, code string, timeout time.Duration) (sandbox.ExecutionResult, error)
	RunFile(ctx context.Context, relativePath string, timeout time.Duration) (sandbox.ExecutionResult, error)
}

// SkillSource resolves skills by name. *skills.Registry implements it.
type SkillSource interface {
	Get(name string) (skills.Skill, bool)
	Names() []string
	Descriptions() string
}

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxActionRounds     int           `json:"max_action_rounds"`
	Model               string        `json:"model,omitempty"` // shown in the environment block
	Temperature         float64       `json:"temperature"`
	MaxTokens           int           `json:"max_tokens,omitempty"` // 0 = endpoint default
	CodeTimeout         time.Duration `json:"code_timeout"`
	OutputCharLimit     int           `json:"output_char_limit"`
	OutputLineLimit     int           `json:"output_line_limit"`
	EnableLoopDetection bool          `json:"enable_loop_detection"`
	LoopDetectionWindow int           `json:"loop_detection_window"`
	LoadProjectDocs     bool          `json:"load_project_docs"`
	UserInstructions    string        `json:"user_instructions,omitempty"` // appended last to system prompt
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxActionRounds:     5,
		Temperature:         unifiedllm.DefaultTemperature,
		CodeTimeout:         sandbox.DefaultTimeout,
		OutputCharLimit:     DefaultOutputCharLimit,
		OutputLineLimit:     DefaultOutputLineLimit,
		EnableLoopDetection: true,
		LoopDetectionWindow: 3,
		LoadProjectDocs:     true,
	}
}

// Components are the collaborators a Session drives.
type Components struct {
	Model  ModelClient
	Memory *memory.Memory
	Skills SkillSource
	Runner CodeRunner
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithParser replaces the directive parser, for example to accept extra
// executable fence tags.
func WithParser(p *directive.Parser) Option {
	return func(s *Session) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.eventBuffer = n }
}

// Session is the central orchestrator for the action loop. It owns the
// conversation window for its lifetime; Chat calls are serialized.
type Session struct {
	id          string
	model       ModelClient
	memory      *memory.Memory
	skills      SkillSource
	runner      CodeRunner
	parser      *directive.Parser
	emitter     *EventEmitter
	eventBuffer int
	config      SessionConfig
	logger      *zap.Logger

	// turnMu serializes Chat and RunFile.
	turnMu sync.Mutex
	mu     sync.Mutex
	state  SessionState
}

// NewSession creates a new session. A nil config uses DefaultSessionConfig.
func NewSession(c Components, config *SessionConfig, opts ...Option) (*Session, error) {
	if c.Model == nil {
		return nil, errors.New("agentloop: model client is required")
	}
	if c.Memory == nil {
		return nil, errors.New("agentloop: memory is required")
	}
	if c.Runner == nil {
		return nil, errors.New("agentloop: code runner is required")
	}
	if c.Skills == nil {
		c.Skills = emptySkills{}
	}

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxActionRounds <= 0 {
		cfg.MaxActionRounds = DefaultSessionConfig().MaxActionRounds
	}

	s := &Session{
		id:     uuid.New().String(),
		model:  c.Model,
		memory: c.Memory,
		skills: c.Skills,
		runner: c.Runner,
		parser: directive.NewParser(),
		config: cfg,
		logger: zap.NewNop(),
		state:  StateAwaitingUser,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = NewEventEmitter(s.id, s.eventBuffer)
	s.logger = s.logger.With(zap.String("session_id", s.id))

	s.emitter.Emit(EventSessionStart, map[string]interface{}{
		"workspace": c.Runner.Workspace(),
	})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Memory returns the session's memory.
func (s *Session) Memory() *memory.Memory { return s.memory }

// Workspace returns the absolute workspace directory.
func (s *Session) Workspace() string { return s.runner.Workspace() }

// Messages returns a copy of the conversation window.
func (s *Session) Messages() []memory.Message {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.memory.Messages()
}

// ClearHistory empties the conversation window. Long-term memory is kept.
func (s *Session) ClearHistory() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	s.memory.Clear()
}

// Close terminates the session and closes the event channel.
func (s *Session) Close() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"state": string(StateClosed),
	})
	s.emitter.Close()
}

func (s *Session) beginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	return nil
}

// Chat processes one user turn end to end and returns the final reply.
//
// A model failure aborts the turn and is returned wrapped, so errors.As can
// reach the unifiedllm error type. The user message stays in the window.
func (s *Session) Chat(ctx context.Context, input string) (string, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if err := s.beginTurn(); err != nil {
		return "", err
	}
	defer s.setState(StateAwaitingUser)

	s.emitter.Emit(EventUserInput, map[string]interface{}{
		"content": input,
	})

	if s.memory.NeedsSummarization() {
		if err := s.summarize(ctx); err != nil {
			return "", err
		}
	}

	s.memory.AddMessage(memory.RoleUser, input)

	var reply string
	var signatures []string
	for round := 1; round <= s.config.MaxActionRounds; round++ {
		s.setState(StateDispatching)
		request := buildRequestMessages(s.systemPrompt(), s.memory.Messages())

		s.setState(StateModelCall)
		s.emitter.Emit(EventModelCallStart, map[string]interface{}{
			"round":    round,
			"messages": len(request),
		})
		start := time.Now()
		var err error
		reply, err = s.model.Chat(ctx, request, s.chatOptions()...)
		if err != nil {
			s.emitter.Emit(EventError, map[string]interface{}{
				"round": round,
				"error": err.Error(),
			})
			s.logger.Warn("model call failed", zap.Int("round", round), zap.Error(err))
			return "", fmt.Errorf("model call (round %d): %w", round, err)
		}
		s.emitter.Emit(EventModelCallEnd, map[string]interface{}{
			"round":   round,
			"text":    reply,
			"elapsed": time.Since(start).String(),
		})

		s.memory.AddMessage(memory.RoleAssistant, reply)

		actions := s.parser.Parse(reply)
		s.logger.Debug("round complete",
			zap.Int("round", round),
			zap.Int("actions", len(actions)),
			zap.Duration("elapsed", time.Since(start)))
		if len(actions) == 0 {
			return reply, nil
		}

		s.setState(StateActionExecution)
		feedback := s.dispatchAll(ctx, round, actions)
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("action execution (round %d): %w", round, err)
		}

		s.setState(StateFeedback)
		signatures = append(signatures, batchSignature(actions))
		if s.config.EnableLoopDetection && DetectLoop(signatures, s.config.LoopDetectionWindow) {
			warning := fmt.Sprintf("[warning: the last %d rounds issued the same actions. Try a different approach or answer without directives.]",
				s.config.LoopDetectionWindow)
			feedback += "\n\n" + warning
			s.emitter.Emit(EventLoopDetection, map[string]interface{}{
				"round":   round,
				"message": warning,
			})
		}
		s.memory.AddMessage(memory.RoleUser, feedback)
	}

	s.emitter.Emit(EventTurnLimit, map[string]interface{}{
		"round": s.config.MaxActionRounds,
	})
	s.logger.Info("action round cap reached", zap.Int("rounds", s.config.MaxActionRounds))
	return reply, nil
}

// summarize compacts the window with one deterministic model call. It does
// not count against the round cap. On failure the window is unchanged.
func (s *Session) summarize(ctx context.Context) error {
	s.setState(StateSummarizing)
	before := s.memory.Len()
	s.emitter.Emit(EventSummarizationStart, map[string]interface{}{
		"messages": before,
	})

	prompt := s.memory.SummarizationPrompt()
	summary, err := s.model.Chat(ctx, []unifiedllm.Message{unifiedllm.UserMessage(prompt)}, unifiedllm.WithTemperature(0))
	if err != nil {
		s.emitter.Emit(EventError, map[string]interface{}{
			"phase": "summarization",
			"error": err.Error(),
		})
		return fmt.Errorf("summarize history: %w", err)
	}

	s.memory.ApplySummary(summary)
	s.emitter.Emit(EventSummarizationEnd, map[string]interface{}{
		"before": before,
		"after":  s.memory.Len(),
	})
	s.logger.Debug("history summarized", zap.Int("before", before), zap.Int("after", s.memory.Len()))
	return nil
}

func (s *Session) systemPrompt() string {
	parts := PromptParts{
		Workspace:        s.runner.Workspace(),
		Model:            s.config.Model,
		SkillCatalog:     s.skills.Descriptions(),
		MemoryKeys:       s.memory.Keys(),
		UserInstructions: s.config.UserInstructions,
	}
	if s.config.LoadProjectDocs {
		parts.ProjectDocs = DiscoverProjectDocs(parts.Workspace)
	}
	return BuildSystemPrompt(parts)
}

func (s *Session) chatOptions() []unifiedllm.ChatOption {
	opts := []unifiedllm.ChatOption{unifiedllm.WithTemperature(s.config.Temperature)}
	if s.config.MaxTokens > 0 {
		opts = append(opts, unifiedllm.WithMaxTokens(s.config.MaxTokens))
	}
	return opts
}

// RunFile executes an existing workspace file on behalf of the host. Paths
// outside the workspace fail with sandbox.ErrPathEscape.
func (s *Session) RunFile(ctx context.Context, relativePath string) (sandbox.ExecutionResult, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if err := s.beginTurn(); err != nil {
		return sandbox.ExecutionResult{}, err
	}
	defer s.setState(StateAwaitingUser)
	s.setState(StateActionExecution)

	s.emitter.Emit(EventActionStart, map[string]interface{}{
		"kind": "run_file",
		"path": relativePath,
	})
	result, err := s.runner.RunFile(ctx, relativePath, s.config.CodeTimeout)
	end := map[string]interface{}{
		"kind": "run_file",
		"path": relativePath,
	}
	if err != nil {
		end["error"] = err.Error()
	} else {
		end["output"] = result.Output()
		end["exit_code"] = result.ExitCode
		end["timed_out"] = result.TimedOut
	}
	s.emitter.Emit(EventActionEnd, end)
	return result, err
}

type emptySkills struct{}

func (emptySkills) Get(string) (skills.Skill, bool) { return skills.Skill{}, false }
func (emptySkills) Names() []string                 { return nil }
func (emptySkills) Descriptions() string            { return "" }
