package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func transientScripts(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, transientPattern))
	require.NoError(t, err)
	return matches
}

func TestRunCapturesOutput(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	e, err := New(ws)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), "import sys\nprint('hello')\nprint('oops', file=sys.stderr)\n", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Success())
	assert.Empty(t, transientScripts(t, ws))
}

func TestRunUsesWorkspace(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	e, err := New(ws)
	require.NoError(t, err)

	code := "import os\nprint(os.getcwd())\nprint(os.environ['AGENT_WORKSPACE'])\nopen('note.txt', 'w').write('hi')\n"
	res, err := e.Run(context.Background(), code, 10*time.Second)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 2)
	resolved, err := filepath.EvalSymlinks(e.Workspace())
	require.NoError(t, err)
	gotCwd, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, resolved, gotCwd)
	assert.Equal(t, e.Workspace(), lines[1])

	data, err := os.ReadFile(filepath.Join(ws, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestRunNonZeroExitIsResult(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	e, err := New(ws)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), "raise SystemExit(3)\n", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.False(t, res.Success())
	assert.Empty(t, transientScripts(t, ws))
}

func TestRunTimeoutKillsAndCleansUp(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	e, err := New(ws)
	require.NoError(t, err)

	start := time.Now()
	res, err := e.Run(context.Background(), "import time\ntime.sleep(30)\n", 300*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Empty(t, transientScripts(t, ws), "transient script must be removed after a timeout")
}

func TestRunTimeoutKillsGrandchildren(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	e, err := New(ws)
	require.NoError(t, err)

	code := "import subprocess, time\nsubprocess.Popen(['sleep', '30'])\ntime.sleep(30)\n"
	start := time.Now()
	res, err := e.Run(context.Background(), code, 300*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	// The grandchild holds the pipes; returning promptly means it was killed
	// with the group or released by the wait delay.
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingInterpreter(t *testing.T) {
	ws := t.TempDir()
	e, err := New(ws, WithInterpreter("definitely-not-an-interpreter-xyz"))
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "print(1)", time.Second)
	require.Error(t, err)
	assert.Empty(t, transientScripts(t, ws))
}

func TestRunFileRejectsEscapes(t *testing.T) {
	ws := t.TempDir()
	marker := filepath.Join(ws, "ran")
	// A shell interpreter that would leave a marker if anything executed.
	e, err := New(ws, WithInterpreter("sh", "-c", "touch "+marker, "sh"))
	require.NoError(t, err)

	for _, path := range []string{"../../etc/passwd", "/etc/passwd", "sub/../../outside.py", ".", ""} {
		_, err := e.RunFile(context.Background(), path, time.Second)
		require.Error(t, err, path)
		assert.True(t, errors.Is(err, ErrPathEscape), path)

		var escape *PathEscapeError
		require.True(t, errors.As(err, &escape), path)
		assert.Equal(t, path, escape.Path)
	}

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "no process may run for an escaping path")
}

func TestRunFileAbsolutePathMessage(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = e.RunFile(context.Background(), "/etc/passwd", time.Second)
	assert.EqualError(t, err, "only relative paths are allowed: /etc/passwd")
}

func TestRunFileMissing(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = e.RunFile(context.Background(), "nope.py", time.Second)
	assert.True(t, errors.Is(err, ErrFileNotFound))
	assert.False(t, errors.Is(err, ErrPathEscape))
}

func TestRunFileExecutesInsideWorkspace(t *testing.T) {
	requirePython(t)
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "scripts", "hello.py"), []byte("print('from file')\n"), 0o644))

	e, err := New(ws)
	require.NoError(t, err)

	res, err := e.RunFile(context.Background(), "scripts/../scripts/hello.py", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "from file\n", res.Stdout)
	assert.True(t, res.Success())
}

func TestChildEnvironmentDropsCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	t.Setenv("GITHUB_TOKEN", "ghp-secret")
	t.Setenv("AGENT_WORKSPACE", "/somewhere/else")
	t.Setenv("PLAIN_SETTING", "kept")

	env := childEnvironment("/ws")
	joined := strings.Join(env, "\n")

	assert.NotContains(t, joined, "sk-secret")
	assert.NotContains(t, joined, "ghp-secret")
	assert.NotContains(t, joined, "/somewhere/else")
	assert.Contains(t, env, "PLAIN_SETTING=kept")
	assert.Contains(t, env, "AGENT_WORKSPACE=/ws")
}

func TestFailureResult(t *testing.T) {
	res := FailureResult(&PathEscapeError{Path: "../x"})
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
	assert.Equal(t, "path escapes workspace: ../x", res.Stderr)
	assert.False(t, res.Success())
}
