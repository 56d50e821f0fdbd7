package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// configEnv is read by config.Load.
const configEnv = "CROWDFUND_CONFIG"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crowdfund",
		Short:         "crowdfund serves milestone scores, tiers and matching fund allocations",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// --config wins over an inherited CROWDFUND_CONFIG.
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				return os.Setenv(configEnv, path)
			}
			return nil
		},
		RunE: runServe,
	}
	root.PersistentFlags().String("config", "", "Optional YAML config file (same as "+configEnv+")")

	root.AddCommand(
		newServeCmd(),
		newAllocateCmd(),
		newCatalogCmd(),
		newLoadtestCmd(),
	)
	return root
}

// contextWithDeadline derives a bounded context from the command's.
func contextWithDeadline(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
