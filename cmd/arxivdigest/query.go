package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/sources"
)

func newQueryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Print the request URL built for each category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			collector := sources.NewCollector(cfg.Provider, nil)
			for _, cat := range cfg.Categories {
				u, err := collector.URL(cat)
				if err != nil {
					return fmt.Errorf("category %s: %w", cat.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", cat.Name, cat.Freshness, u)
			}
			return nil
		},
	}
}
