package agentloop

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/martinemde/agentbuilder/directive"
	"github.com/martinemde/agentbuilder/sandbox"
)

// dispatchAll executes actions in order and joins their feedback with blank
// lines.
func (s *Session) dispatchAll(ctx context.Context, round int, actions []directive.Action) string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, s.dispatch(ctx, round, a))
	}
	return strings.Join(out, "\n\n")
}

// dispatch executes one action and returns the feedback shown to the model.
func (s *Session) dispatch(ctx context.Context, round int, a directive.Action) string {
	s.emitter.Emit(EventActionStart, map[string]interface{}{
		"round":  round,
		"kind":   string(a.Kind),
		"action": a.String(),
	})
	end := map[string]interface{}{
		"round": round,
		"kind":  string(a.Kind),
	}

	var feedback string
	switch a.Kind {
	case directive.KindMemorySet:
		if err := s.memory.Set(a.Key, a.Value); err != nil {
			feedback = fmt.Sprintf("[memory error: %v]", err)
			end["error"] = err.Error()
		} else {
			feedback = fmt.Sprintf("[saved %s]", a.Key)
		}

	case directive.KindMemoryGet:
		if v, ok := s.memory.Lookup(a.Key); ok {
			feedback = fmt.Sprintf("[%s = %s]", a.Key, v)
		} else {
			feedback = fmt.Sprintf("[%s = (not set)]", a.Key)
		}

	case directive.KindMemoryDelete:
		deleted, err := s.memory.Delete(a.Key)
		switch {
		case err != nil:
			feedback = fmt.Sprintf("[memory error: %v]", err)
			end["error"] = err.Error()
		case deleted:
			feedback = fmt.Sprintf("[deleted %s]", a.Key)
		default:
			feedback = fmt.Sprintf("[%s not found]", a.Key)
		}

	case directive.KindMemoryList:
		feedback = fmt.Sprintf("[memory keys: %s]", listOrNone(s.memory.Keys()))

	case directive.KindSkillLoad:
		if sk, ok := s.skills.Get(a.Name); ok {
			feedback = fmt.Sprintf("--- Skill: %s ---\n%s\n--- end ---", sk.Name, sk.Body)
		} else {
			feedback = fmt.Sprintf("[skill '%s' not found. Available: %s]", a.Name, listOrNone(s.skills.Names()))
			end["error"] = "skill not found"
		}

	case directive.KindCodeRun:
		result, err := s.runner.Run(ctx, a.Code, s.config.CodeTimeout)
		if err != nil {
			s.logger.Warn("code run failed before start", zap.Error(err))
			result = sandbox.FailureResult(err)
		}
		end["output"] = result.Output()
		end["exit_code"] = result.ExitCode
		end["timed_out"] = result.TimedOut
		end["duration"] = result.Duration.String()
		feedback = s.renderCodeResult(result)

	default:
		feedback = fmt.Sprintf("[unsupported action %q]", a.Kind)
	}

	s.emitter.Emit(EventActionEnd, end)
	return feedback
}

// renderCodeResult formats a run for the model, truncating long output.
func (s *Session) renderCodeResult(r sandbox.ExecutionResult) string {
	var lines []string
	if out := strings.TrimSpace(r.Stdout); out != "" {
		lines = append(lines, out)
	}
	if errOut := strings.TrimSpace(r.Stderr); errOut != "" {
		lines = append(lines, "STDERR: "+errOut)
	}
	switch {
	case r.TimedOut:
		lines = append(lines, fmt.Sprintf("[timed out, exit code %d]", r.ExitCode))
	case r.ExitCode != 0:
		lines = append(lines, fmt.Sprintf("[exit code %d]", r.ExitCode))
	}

	body := "(no output)"
	if len(lines) > 0 {
		body = TruncateActionOutput(strings.Join(lines, "\n"), s.config.OutputCharLimit, s.config.OutputLineLimit)
	}
	return "[code output]\n" + body
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
