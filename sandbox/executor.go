// Package sandbox runs model-authored code inside a workspace directory.
//
// The workspace is the only boundary the executor enforces: child processes
// start with the workspace as their working directory and RunFile refuses
// paths that resolve outside it. There is no network, memory or process-table
// isolation, and symlinks inside the workspace are not followed by the
// containment check.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout applies when a caller passes a non-positive timeout.
	DefaultTimeout = 30 * time.Second

	// TimeoutExitCode is reported for runs that were killed on deadline and
	// for failures rendered with FailureResult.
	TimeoutExitCode = -1

	transientPattern = "_exec-*.py"
	waitDelay        = 2 * time.Second
)

// ExecutionResult is the captured outcome of one run.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Success reports a clean zero exit.
func (r ExecutionResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Output returns combined stdout and stderr.
func (r ExecutionResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// FailureResult renders an error as a failed run so it can be fed back to the
// model like any other result.
func FailureResult(err error) ExecutionResult {
	return ExecutionResult{Stderr: err.Error(), ExitCode: TimeoutExitCode}
}

// Executor runs code with the workspace as its working directory.
type Executor struct {
	workspace      string
	interpreter    []string
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithInterpreter sets the command used to run scripts. The script path is
// appended as the final argument.
func WithInterpreter(argv ...string) Option {
	return func(e *Executor) {
		if len(argv) > 0 {
			e.interpreter = append([]string(nil), argv...)
		}
	}
}

// WithDefaultTimeout sets the timeout used when a call passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an executor rooted at workspace, creating the directory if
// needed. The root is stored as an absolute, cleaned path.
func New(workspace string, opts ...Option) (*Executor, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	e := &Executor{
		workspace:      abs,
		interpreter:    []string{"python3"},
		defaultTimeout: DefaultTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Workspace returns the absolute workspace root.
func (e *Executor) Workspace() string { return e.workspace }

// Run writes code to a transient script in the workspace, executes it and
// removes the script on every path out. A non-zero exit or a timeout is a
// result; errors are reserved for failures to start the run.
func (e *Executor) Run(ctx context.Context, code string, timeout time.Duration) (ExecutionResult, error) {
	f, err := os.CreateTemp(e.workspace, transientPattern)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("create transient script: %w", err)
	}
	script := f.Name()
	defer func() {
		if err := os.Remove(script); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("transient script not removed", zap.String("path", script), zap.Error(err))
		}
	}()

	if _, err := f.WriteString(code); err != nil {
		_ = f.Close()
		return ExecutionResult{}, fmt.Errorf("write transient script: %w", err)
	}
	if err := f.Close(); err != nil {
		return ExecutionResult{}, fmt.Errorf("close transient script: %w", err)
	}

	return e.invoke(ctx, script, timeout)
}

// RunFile executes a script that already exists in the workspace. The path
// must be relative and must stay inside the workspace after lexical
// resolution; both checks happen before the filesystem is touched.
func (e *Executor) RunFile(ctx context.Context, relativePath string, timeout time.Duration) (ExecutionResult, error) {
	target, err := e.Resolve(relativePath)
	if err != nil {
		e.logger.Warn("run file rejected", zap.String("path", relativePath), zap.Error(err))
		return ExecutionResult{}, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ExecutionResult{}, fmt.Errorf("%w: %s", ErrFileNotFound, relativePath)
		}
		return ExecutionResult{}, fmt.Errorf("stat %s: %w", relativePath, err)
	}
	if info.IsDir() {
		return ExecutionResult{}, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, relativePath)
	}

	return e.invoke(ctx, target, timeout)
}

// Resolve maps a workspace-relative path to an absolute one, or fails with a
// *PathEscapeError.
func (e *Executor) Resolve(relativePath string) (string, error) {
	if relativePath == "" {
		return "", &PathEscapeError{Path: relativePath}
	}
	if filepath.IsAbs(relativePath) || strings.HasPrefix(relativePath, "/") {
		return "", &PathEscapeError{Path: relativePath, Absolute: true}
	}

	target := filepath.Join(e.workspace, relativePath)
	rel, err := filepath.Rel(e.workspace, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathEscapeError{Path: relativePath}
	}
	return target, nil
}

func (e *Executor) invoke(ctx context.Context, script string, timeout time.Duration) (ExecutionResult, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), e.interpreter[1:]...), script)
	cmd := exec.CommandContext(runCtx, e.interpreter[0], args...)
	cmd.Dir = e.workspace
	cmd.Env = childEnvironment(e.workspace)
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("exec start",
		zap.String("script", filepath.Base(script)),
		zap.Duration("timeout", timeout))

	start := time.Now()
	err := cmd.Run()
	result := ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = TimeoutExitCode
		if result.Stderr != "" && !strings.HasSuffix(result.Stderr, "\n") {
			result.Stderr += "\n"
		}
		result.Stderr += fmt.Sprintf("execution timed out after %s", timeout)
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// The script exited but a child kept the output pipes open.
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ExecutionResult{}, fmt.Errorf("start %s: %w", e.interpreter[0], err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	e.logger.Debug("exec end",
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration))
	return result, nil
}
