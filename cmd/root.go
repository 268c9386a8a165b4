package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/martinemde/agentbuilder/config"
)

// Execute runs the command tree. Cancelling ctx aborts the current turn.
func Execute(ctx context.Context) error {
	app := newApp()
	return execute(ctx, app, newRootCmd(app))
}

// execute runs root and releases app resources whether or not the command
// failed. cobra skips post-run hooks after an error.
func execute(ctx context.Context, app *app, root *cobra.Command) error {
	defer app.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(app *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Autonomous agent with memory, skills and code execution",
		Long: "agent talks to an OpenAI-compatible model endpoint and carries out the memory, " +
			"skill and code directives it writes, inside a workspace directory.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, app, "")
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "config file (yaml, json or toml)")
	flags.String("url", "", "model endpoint base URL")
	flags.String("model", "", "model name")
	flags.String("workspace", "", "workspace directory")
	flags.String("key", "", "API key for the model endpoint")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	for key, name := range map[string]string{
		config.KeyLLMBaseURL: "url",
		config.KeyLLMModel:   "model",
		config.KeyWorkspace:  "workspace",
		config.KeyLLMAPIKey:  "key",
		config.KeyLogLevel:   "log-level",
	} {
		_ = app.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(app),
		newMemoryCmd(app),
		newSkillsCmd(app),
		newExecCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
