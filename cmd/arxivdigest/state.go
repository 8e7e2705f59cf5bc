package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/state"
)

func newStateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset stored watermarks",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the watermark of every category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			marks, err := newStore(cfg).All(cmd.Context())
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}
			if len(marks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no watermarks stored")
				return nil
			}
			for _, name := range state.SortedCategories(marks) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, marks[name])
			}
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset [category]",
		Short: "Forget the watermark of one category, or of all categories",
		Long:  "Reset removes stored watermarks. The next run treats the affected categories as a first run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			st := newStore(cfg)

			targets := args
			if len(targets) == 0 {
				marks, err := st.All(cmd.Context())
				if err != nil {
					return fmt.Errorf("read state: %w", err)
				}
				targets = state.SortedCategories(marks)
			}
			for _, name := range targets {
				if err := st.Delete(cmd.Context(), name); err != nil {
					return fmt.Errorf("reset %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", name)
			}
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}
