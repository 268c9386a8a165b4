package sandbox

import (
	"os"
	"strings"
)

// WorkspaceEnv is set on every child process to the absolute workspace path.
const WorkspaceEnv = "AGENT_WORKSPACE"

// sensitiveEnvSuffixes are matched case-insensitively against variable names.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"PYTHONPATH": true, "VIRTUAL_ENV": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// childEnvironment is the parent environment minus credentials, plus the
// workspace variable. Any inherited AGENT_WORKSPACE is replaced.
func childEnvironment(workspace string) []string {
	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == WorkspaceEnv {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			env = append(env, kv)
		}
	}
	return append(env, WorkspaceEnv+"="+workspace)
}
