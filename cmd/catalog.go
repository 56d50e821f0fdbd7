package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [path]",
		Short: "Parse a milestone catalog and print it grouped",
		Long:  "Parse a catalog file (JSON or YAML) and print the grouped milestones, options and tiers. Without a path the built-in catalog is printed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			c, err := loadCatalog(path)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		},
	}
}
