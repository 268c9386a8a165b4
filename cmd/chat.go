package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/martinemde/agentbuilder/agentloop"
	"github.com/martinemde/agentbuilder/sandbox"
)

const replHelp = `Commands:
  /skills       list available skills
  /memory       show long-term memory
  /clear        clear conversation history (long-term memory is kept)
  /reload       rescan skill directories
  /run <file>   run a workspace file
  /help         show this help
  quit          exit`

type styles struct {
	banner  lipgloss.Style
	prompt  lipgloss.Style
	agent   lipgloss.Style
	action  lipgloss.Style
	warning lipgloss.Style
	faint   lipgloss.Style
}

func newStyles() styles {
	return styles{
		banner: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1),
		prompt:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		agent:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		action:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		faint:   lipgloss.NewStyle().Faint(true),
	}
}

func newChatCmd(app *app) *cobra.Command {
	var message string
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session, or send one message with -m",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, app, message)
		},
	}
	chatCmd.Flags().StringVarP(&message, "message", "m", "", "send one message, print the reply and exit")
	return chatCmd
}

func runChat(cmd *cobra.Command, app *app, message string) error {
	ctx := cmd.Context()
	cfg, err := app.config()
	if err != nil {
		return err
	}
	session, err := app.session(ctx)
	if err != nil {
		return err
	}

	r := &repl{
		app:     app,
		session: session,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		styles:  newStyles(),
	}
	if cfg.UI.Markdown {
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
		if err == nil {
			r.renderer = renderer
		}
	}

	if message != "" {
		return r.send(ctx, message)
	}
	r.banner(cfg.LLM.Model)
	return r.run(ctx, app.stdin)
}

type repl struct {
	app      *app
	session  *agentloop.Session
	out      io.Writer
	errOut   io.Writer
	styles   styles
	renderer *glamour.TermRenderer
}

func (r *repl) banner(model string) {
	text := fmt.Sprintf("agent  model %s\nworkspace %s\nType /help for commands, quit to exit.", model, r.session.Workspace())
	fmt.Fprintln(r.out, r.styles.banner.Render(text))
}

// run reads lines until EOF, quit or cancellation. Model failures are
// printed and the loop continues.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, r.styles.prompt.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	switch {
	case line == "quit" || line == "exit" || line == "/quit" || line == "/exit":
		return true
	case line == "/help":
		fmt.Fprintln(r.out, replHelp)
	case line == "/skills":
		r.listSkills()
	case line == "/memory":
		r.listMemory()
	case line == "/clear":
		r.session.ClearHistory()
		fmt.Fprintln(r.out, r.styles.faint.Render("conversation cleared"))
	case line == "/reload":
		r.reloadSkills(ctx)
	case line == "/run" || strings.HasPrefix(line, "/run "):
		r.runFile(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/run")))
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", strings.Fields(line)[0])
	default:
		if err := r.send(ctx, line); err != nil {
			r.printError(err)
		}
	}
	return false
}

// send runs one turn and prints the actions taken followed by the reply.
func (r *repl) send(ctx context.Context, input string) error {
	reply, err := r.session.Chat(ctx, input)
	r.drainEvents()
	if err != nil {
		return err
	}
	r.printReply(reply)
	return nil
}

// drainEvents prints the action events buffered during the last turn. All
// events of a turn are emitted before Chat returns.
func (r *repl) drainEvents() {
	for {
		select {
		case ev, ok := <-r.session.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case agentloop.EventActionStart:
				if action, ok := ev.Data["action"]; ok {
					fmt.Fprintln(r.out, r.styles.action.Render(fmt.Sprintf("  > %v", action)))
				}
			case agentloop.EventLoopDetection:
				fmt.Fprintln(r.out, r.styles.warning.Render("  repeated actions detected"))
			case agentloop.EventTurnLimit:
				fmt.Fprintln(r.out, r.styles.warning.Render(fmt.Sprintf("  stopped after %v action rounds", ev.Data["round"])))
			}
		default:
			return
		}
	}
}

func (r *repl) printReply(reply string) {
	if r.renderer != nil {
		if rendered, err := r.renderer.Render(reply); err == nil {
			fmt.Fprint(r.out, rendered)
			return
		}
	}
	fmt.Fprintf(r.out, "%s %s\n", r.styles.agent.Render("agent>"), reply)
}

func (r *repl) printError(err error) {
	fmt.Fprintln(r.errOut, r.styles.warning.Render("error: ")+err.Error())
}

func (r *repl) listSkills() {
	registry, err := r.app.skills()
	if err != nil {
		r.printError(err)
		return
	}
	loaded := registry.Skills()
	if len(loaded) == 0 {
		fmt.Fprintln(r.out, r.styles.faint.Render("(no skills found)"))
		return
	}
	for _, s := range loaded {
		fmt.Fprintf(r.out, "  %s: %s\n", s.Name, s.Description)
	}
}

func (r *repl) listMemory() {
	mem := r.session.Memory()
	keys := mem.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(r.out, r.styles.faint.Render("(no memories stored)"))
		return
	}
	for _, k := range keys {
		fmt.Fprintf(r.out, "  %s = %s\n", k, mem.Get(k, ""))
	}
}

func (r *repl) reloadSkills(ctx context.Context) {
	registry, err := r.app.skills()
	if err != nil {
		r.printError(err)
		return
	}
	loaded, err := registry.Discover(ctx)
	if err != nil {
		r.printError(err)
		return
	}
	fmt.Fprintf(r.out, "loaded %d skills\n", len(loaded))
}

func (r *repl) runFile(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(r.out, "usage: /run <file>")
		return
	}
	result, err := r.session.RunFile(ctx, path)
	r.drainEvents()
	if err != nil {
		if errors.Is(err, sandbox.ErrPathEscape) {
			fmt.Fprintln(r.errOut, r.styles.warning.Render("refused: ")+err.Error())
			return
		}
		r.printError(err)
		return
	}
	if out := result.Output(); out != "" {
		fmt.Fprintln(r.out, strings.TrimRight(out, "\n"))
	}
	if !result.Success() {
		fmt.Fprintln(r.out, r.styles.faint.Render(fmt.Sprintf("[exit code %d]", result.ExitCode)))
	}
}
