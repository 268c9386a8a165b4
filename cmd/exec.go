package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExecCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <file>",
		Short: "Run a file that lives inside the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := app.executor()
			if err != nil {
				return err
			}
			result, err := runner.RunFile(cmd.Context(), args[0], 0)
			if err != nil {
				return err
			}
			if result.Stdout != "" {
				fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
			}
			if result.Stderr != "" {
				fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
			}
			switch {
			case result.TimedOut:
				return fmt.Errorf("%s timed out", args[0])
			case result.ExitCode != 0:
				return fmt.Errorf("%s exited with code %d", args[0], result.ExitCode)
			}
			return nil
		},
	}
}
