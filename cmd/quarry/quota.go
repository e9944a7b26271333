package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/quota"
	"github.com/quarrylabs/quarry/pkg/tracker"
)

func newQuotaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "quota <user>",
		Short: "Show a user's token quota status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			usage, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer usage.Close()

			limiter := quota.New(usage, cfg.Quota.LimitTokens, quota.Period(cfg.Quota.Period))
			status, err := limiter.Status(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Used:      %d / %d tokens (%.2f%%)\n", status.UsageTokens, status.LimitTokens, status.UsagePercent)
			fmt.Printf("Remaining: %d tokens\n", status.RemainingTokens)
			fmt.Printf("Resets in: %ds\n", status.ResetsInSeconds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "quarry.yaml", "path to config file")
	return cmd
}
