package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMemoryCmd(app *app) *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Read and edit long-term memory",
	}

	memoryCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored keys and values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mem, err := app.memory()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				keys := mem.Keys()
				if len(keys) == 0 {
					_, err := fmt.Fprintln(out, "(no memories stored)")
					return err
				}
				for _, k := range keys {
					if _, err := fmt.Fprintf(out, "%s = %s\n", k, mem.Get(k, "")); err != nil {
						return err
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mem, err := app.memory()
				if err != nil {
					return err
				}
				v, ok := mem.Lookup(args[0])
				if !ok {
					return fmt.Errorf("key %q not set", args[0])
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				mem, err := app.memory()
				if err != nil {
					return err
				}
				if err := mem.Set(args[0], args[1]); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", args[0])
				return err
			},
		},
		&cobra.Command{
			Use:     "del <key>",
			Aliases: []string{"delete", "rm"},
			Short:   "Delete a value",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mem, err := app.memory()
				if err != nil {
					return err
				}
				deleted, err := mem.Delete(args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("key %q not set", args[0])
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			},
		},
	)

	return memoryCmd
}
