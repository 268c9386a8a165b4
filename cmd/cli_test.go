package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martinemde/agentbuilder/agentloop"
	"github.com/martinemde/agentbuilder/config"
	"github.com/martinemde/agentbuilder/sandbox"
	"github.com/martinemde/agentbuilder/unifiedllm"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (m *scriptedModel) Chat(_ context.Context, _ []unifiedllm.Message, _ ...unifiedllm.ChatOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.replies) == 0 {
		return "ok", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

type testEnv struct {
	dir       string
	config    string
	workspace string
	skills    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	env := testEnv{
		dir:       dir,
		config:    filepath.Join(dir, "agent.yaml"),
		workspace: filepath.Join(dir, "ws"),
		skills:    filepath.Join(dir, "skills"),
	}
	content := fmt.Sprintf(`workspace: %s
skills:
  paths: [%s]
exec:
  interpreter: [sh]
  timeout: 5s
log:
  level: error
`, env.workspace, env.skills)
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0o644))
	return env
}

func executeCLI(t *testing.T, env testEnv, model agentloop.ModelClient, stdin string, args ...string) (string, string, error) {
	t.Helper()
	app := newApp()
	app.stdin = strings.NewReader(stdin)
	app.newModel = func(config.LLMConfig, *zap.Logger) (agentloop.ModelClient, error) {
		if model == nil {
			return &scriptedModel{}, nil
		}
		return model, nil
	}

	root := newRootCmd(app)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", env.config}, args...))
	err := execute(context.Background(), app, root)
	return stdout.String(), stderr.String(), err
}

func TestExecuteClosesAppWhenCommandFails(t *testing.T) {
	env := newTestEnv(t)
	app := newApp()
	closed := 0
	app.closers = append(app.closers, func() { closed++ })

	root := newRootCmd(app)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", env.config, "memory", "get", "missing"})

	err := execute(context.Background(), app, root)
	require.Error(t, err)
	assert.Equal(t, 1, closed)
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := executeCLI(t, env, nil, "", "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestMemoryCommandsPersistAcrossRuns(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := executeCLI(t, env, nil, "", "memory", "set", "city", "Paris")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, env, nil, "", "memory", "get", "city")
	require.NoError(t, err)
	assert.Equal(t, "Paris\n", stdout)

	stdout, _, err = executeCLI(t, env, nil, "", "memory", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "city = Paris")

	_, _, err = executeCLI(t, env, nil, "", "memory", "del", "city")
	require.NoError(t, err)

	_, _, err = executeCLI(t, env, nil, "", "memory", "get", "city")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "city" not set`)
}

func TestMemorySetRejectsInvalidKey(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := executeCLI(t, env, nil, "", "memory", "set", "bad key", "v")
	require.Error(t, err)
}

func TestChatOneShotExecutesDirectives(t *testing.T) {
	env := newTestEnv(t)
	model := &scriptedModel{replies: []string{"[MEMORY SET city=Paris]", "Saved it."}}

	stdout, _, err := executeCLI(t, env, model, "", "chat", "-m", "remember Paris")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[MEMORY SET city=Paris]")
	assert.Contains(t, stdout, "Saved it.")
	assert.Equal(t, 2, model.calls)

	stdout, _, err = executeCLI(t, env, nil, "", "memory", "get", "city")
	require.NoError(t, err)
	assert.Equal(t, "Paris\n", stdout)
}

func TestREPLLocalCommands(t *testing.T) {
	env := newTestEnv(t)
	model := &scriptedModel{replies: []string{"hello there"}}

	stdout, _, err := executeCLI(t, env, model, "/help\n/memory\nhi\n/clear\n/nope\nquit\n")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/skills")
	assert.Contains(t, stdout, "(no memories stored)")
	assert.Contains(t, stdout, "hello there")
	assert.Contains(t, stdout, "conversation cleared")
	assert.Contains(t, stdout, "unknown command /nope")
	assert.Equal(t, 1, model.calls)
}

func TestREPLRunRefusesEscape(t *testing.T) {
	env := newTestEnv(t)
	_, stderr, err := executeCLI(t, env, nil, "/run ../../etc/passwd\n")
	require.NoError(t, err)
	assert.Contains(t, stderr, "refused")
}

func TestSkillsList(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.skills, "pdf")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"),
		[]byte("---\nname: pdf\ndescription: Work with PDF files\n---\nSteps.\n"), 0o644))

	stdout, _, err := executeCLI(t, env, nil, "", "skills", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "pdf\tWork with PDF files")
}

func TestExecRunsWorkspaceFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.workspace, "hello.sh"), []byte("echo hi\n"), 0o644))

	stdout, _, err := executeCLI(t, env, nil, "", "exec", "hello.sh")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", stdout)

	_, _, err = executeCLI(t, env, nil, "", "exec", "../hello.sh")
	require.Error(t, err)
	assert.ErrorIs(t, err, sandbox.ErrPathEscape)
}

func TestExecReportsNonZeroExit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.workspace, "fail.sh"), []byte("echo oops >&2\nexit 3\n"), 0o644))

	_, stderr, err := executeCLI(t, env, nil, "", "exec", "fail.sh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Contains(t, stderr, "oops")
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "generated.yaml")

	stdout, _, err := executeCLI(t, env, nil, "", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+path)

	_, err = config.Load(nil, path)
	require.NoError(t, err)

	_, _, err = executeCLI(t, env, nil, "", "config", "init", path)
	require.Error(t, err)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := executeCLI(t, env, nil, "", "--model", "flag-model", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "model:       flag-model")
	assert.Contains(t, stdout, "config file: "+env.config)
}

func TestInvalidConfigFails(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte("memory:\n  max_short_term: 2\n"), 0o644))

	_, _, err := executeCLI(t, env, nil, "", "memory", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.KeyMemoryMaxShortTerm)
}
