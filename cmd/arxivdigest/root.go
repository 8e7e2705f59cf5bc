package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "configs/digest.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "arxivdigest",
		Short:         "Post new arXiv papers to Slack",
		Long:          "arxivdigest queries arXiv for each configured (category, keyword set), keeps only papers not delivered before and posts one digest per Slack destination.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newScheduleCmd(&configPath),
		newQueryCmd(&configPath),
		newStateCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arxivdigest %s (commit: %s)\n", version, commit)
		},
	}
}
