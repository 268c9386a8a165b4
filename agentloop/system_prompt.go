package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

// ProjectDocName is the instruction file picked up from the workspace and
// its enclosing git checkout.
const ProjectDocName = "AGENTS.md"

const systemPreamble = `You are an autonomous agent. Besides answering normally, you can act by
embedding directives anywhere in your reply. Their results come back to you in
the next message.

1. RUN CODE
   Put Python in a fenced block tagged ` + "`run`" + `:

       ` + "```run" + `
       print("hello")
       ` + "```" + `

   It runs with the workspace as the current directory, so you can create,
   read and change files there. Captured stdout and stderr are returned.
   Blocks with any other tag are shown, not run.

2. MEMORY
   Facts that must outlive this conversation:

       [MEMORY SET key=value]   store a single-line value
       [MEMORY GET key]         read it back
       [MEMORY DEL key]         forget it
       [MEMORY LIST]            list stored keys

   Keys have no spaces. For anything structured, write a file in the
   workspace instead.

3. SKILLS
   Skills are reusable instruction sets, summarized below. To read the full
   instructions of one:

       [SKILL LOAD <name>]

Be direct. Reach for code when computation or file I/O is needed and for
memory when something has to survive the session. When nothing is left to
do, reply without directives.`

// PromptParts are the dynamic sections of the system prompt.
type PromptParts struct {
	Workspace        string
	Model            string
	SkillCatalog     string
	MemoryKeys       []string
	ProjectDocs      string
	UserInstructions string
}

// BuildSystemPrompt assembles the preamble, environment context, skill
// catalog, stored memory keys, project docs and user instructions, in that
// order. Empty sections are omitted.
func BuildSystemPrompt(p PromptParts) string {
	parts := []string{systemPreamble, BuildEnvironmentContext(p.Workspace, p.Model)}

	if p.SkillCatalog != "" {
		parts = append(parts, p.SkillCatalog)
	}
	if len(p.MemoryKeys) > 0 {
		parts = append(parts, fmt.Sprintf("## Stored Memories\n\nKeys: %s\nUse [MEMORY GET key] to read any of them.",
			strings.Join(p.MemoryKeys, ", ")))
	}
	if p.ProjectDocs != "" {
		parts = append(parts, "## Project Instructions\n\n"+p.ProjectDocs)
	}
	if p.UserInstructions != "" {
		parts = append(parts, "## User Instructions\n\n"+p.UserInstructions)
	}
	return strings.Join(parts, "\n\n")
}

// BuildEnvironmentContext describes where the agent runs: workspace, git
// state, platform, date and model.
func BuildEnvironmentContext(workspace, model string) string {
	lines := []string{"<environment>", "Workspace: " + workspace}

	branch := ""
	inRepo := git(workspace, "rev-parse", "--is-inside-work-tree") == "true"
	if inRepo {
		branch = git(workspace, "rev-parse", "--abbrev-ref", "HEAD")
	}
	lines = append(lines, fmt.Sprintf("Is git repository: %v", inRepo))
	if branch != "" {
		lines = append(lines, "Git branch: "+branch)
	}
	lines = append(lines,
		fmt.Sprintf("Platform: %s/%s", runtime.GOOS, runtime.GOARCH),
		"Today's date: "+time.Now().Format(time.DateOnly),
	)
	if model != "" {
		lines = append(lines, "Model: "+model)
	}
	lines = append(lines, "</environment>")
	return strings.Join(lines, "\n")
}

// DiscoverProjectDocs concatenates every AGENTS.md from the enclosing git
// checkout's root (or the workspace itself outside a checkout) down to the
// workspace. The total is capped at 32KB.
func DiscoverProjectDocs(workspace string) string {
	root := git(workspace, "rev-parse", "--show-toplevel")
	if root == "" {
		root = workspace
	}

	const cutNote = "[Project instructions truncated at 32KB]"
	var docs []string
	budget := maxProjectDocBytes
	for _, dir := range collectPathHierarchy(root, workspace) {
		content, err := os.ReadFile(filepath.Join(dir, ProjectDocName))
		if err != nil {
			continue
		}
		if budget <= 0 {
			docs = append(docs, cutNote)
			break
		}
		text := string(content)
		if len(text) > budget {
			text = text[:budget] + "\n" + cutNote
		}
		budget -= len(content)
		docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", ProjectDocName, dir, text))
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy lists directories from root down to target,
// inclusive. A target outside root yields only target.
func collectPathHierarchy(root, target string) []string {
	root, target = filepath.Clean(root), filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	switch {
	case err != nil, rel == "..", strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return []string{target}
	case rel == ".":
		return []string{root}
	}

	dirs := []string{root}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dirs = append(dirs, filepath.Join(dirs[len(dirs)-1], part))
	}
	return dirs
}

// git runs a read-only git query in dir and returns its trimmed output, or
// "" on any failure.
func git(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
