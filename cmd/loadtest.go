package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/crowdfund/internal/loadtest"
	"github.com/okian/crowdfund/pkg/logger"
)

// Default load test configuration constants.
const (
	defaultParticipants  = 200
	defaultRounds        = 10
	defaultWorkersFactor = 2 // multiplier for runtime.NumCPU()
	defaultClientTimeout = 30 * time.Second
	defaultTestTimeout   = 10 * time.Minute
)

func newLoadtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a running API with synthetic wallets and verify read-back",
		Example: `  crowdfund loadtest
  crowdfund loadtest --url http://localhost:8080 --participants 1000 --rounds 20 --workers 16`,
		Args: cobra.NoArgs,
		RunE: runLoadtest,
	}
	cmd.Flags().String("url", "http://localhost:9080", "Base URL of the service")
	cmd.Flags().Int("participants", defaultParticipants, "Number of synthetic wallets")
	cmd.Flags().Int("rounds", defaultRounds, "Score or tier writes per wallet")
	cmd.Flags().Int("workers", runtime.NumCPU()*defaultWorkersFactor, "Wallets driven concurrently")
	cmd.Flags().Duration("timeout", defaultClientTimeout, "HTTP request timeout")
	cmd.Flags().Duration("deadline", defaultTestTimeout, "Overall run deadline")
	cmd.Flags().Bool("verbose", false, "Log every failed write")
	return cmd
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	flags := cmd.Flags()
	cfg := &loadtest.Config{}
	cfg.BaseURL, _ = flags.GetString("url")
	cfg.Participants, _ = flags.GetInt("participants")
	cfg.Rounds, _ = flags.GetInt("rounds")
	cfg.Workers, _ = flags.GetInt("workers")
	cfg.Timeout, _ = flags.GetDuration("timeout")
	cfg.Verbose, _ = flags.GetBool("verbose")
	deadline, _ := flags.GetDuration("deadline")

	ctx, cancel := contextWithDeadline(cmd, deadline)
	defer cancel()

	stats, err := loadtest.Run(ctx, cfg)
	if stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "participants=%d writes=%d ok=%d failed=%d rate_limited=%d verified=%d mismatches=%d duration=%s\n",
			stats.Participants, stats.WritesIssued, stats.WritesOK, stats.WritesFailed,
			stats.RateLimited, stats.Verified, stats.Mismatches, stats.Duration.Round(time.Millisecond))
	}
	return err
}
