package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/crowdfund/internal/domain/funding"
)

func newAllocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate [flags] score...",
		Short: "Split tier * multiplier across milestone scores",
		Example: `  crowdfund allocate --tier 1000 50 50 100
  crowdfund allocate --tier 1500 --multiplier 2 25 75`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAllocate,
	}
	cmd.Flags().Float64("tier", 0, "Tier amount (required)")
	cmd.Flags().Float64("multiplier", 0, "Matching multiplier (default: the catalog's)")
	cmd.Flags().String("catalog", "", "Catalog file supplying the default multiplier")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func runAllocate(cmd *cobra.Command, args []string) error {
	tier, _ := cmd.Flags().GetFloat64("tier")
	path, _ := cmd.Flags().GetString("catalog")

	c, err := loadCatalog(path)
	if err != nil {
		return err
	}
	multiplier := c.Multiplier
	if cmd.Flags().Changed("multiplier") {
		multiplier, _ = cmd.Flags().GetFloat64("multiplier")
	}

	// Arguments go through the same lenient coercion as stored values.
	scores := make([]float64, len(args))
	for i, a := range args {
		scores[i] = funding.Coerce(a)
	}

	amounts := funding.Allocate(scores, tier, multiplier)
	out := cmd.OutOrStdout()
	for i, a := range amounts {
		fmt.Fprintf(out, "milestone %d: %s\n", i+1, a.Display)
	}
	fmt.Fprintf(out, "total: %s\n", funding.Format(funding.Total(amounts)))
	return nil
}
