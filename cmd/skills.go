package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSkillsCmd(app *app) *cobra.Command {
	skillsCmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the skill catalog",
	}

	skillsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Discover skills and print their descriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := app.skills()
			if err != nil {
				return err
			}
			loaded, err := registry.Discover(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(loaded) == 0 {
				_, err := fmt.Fprintln(out, "(no skills found)")
				return err
			}
			for _, s := range loaded {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", s.Name, s.Description, s.SourcePath); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return skillsCmd
}
