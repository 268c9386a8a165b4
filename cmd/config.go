package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/agentbuilder/config"
)

const defaultConfigFile = "agent.yaml"

func newConfigCmd(app *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "init [path]",
			Short: "Write the default configuration",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := defaultConfigFile
				if len(args) == 1 {
					path = args[0]
				}
				if err := config.WriteDefault(path); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return err
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := app.config()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				file := cfg.File
				if file == "" {
					file = "(none)"
				}
				key := "(unset)"
				if cfg.LLM.APIKey != "" {
					key = "(set)"
				}
				fmt.Fprintf(out, "config file: %s\n", file)
				fmt.Fprintf(out, "provider:    %s\n", cfg.LLM.Provider)
				fmt.Fprintf(out, "endpoint:    %s\n", cfg.LLM.BaseURL)
				fmt.Fprintf(out, "model:       %s\n", cfg.LLM.Model)
				fmt.Fprintf(out, "api key:     %s\n", key)
				fmt.Fprintf(out, "workspace:   %s\n", cfg.Workspace)
				fmt.Fprintf(out, "skills:      %v\n", cfg.Skills.Paths)
				_, err = fmt.Fprintf(out, "interpreter: %v\n", cfg.Exec.Interpreter)
				return err
			},
		},
	)

	return configCmd
}
