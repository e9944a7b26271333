package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/dataset"
)

func newPrefetchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prefetch <url>",
		Short: "Fetch and validate a dataset without running a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			files, err := newFileCache(cfg)
			if err != nil {
				return err
			}
			defer files.Close()
			if err := files.StartupCleanup(); err != nil {
				return err
			}

			fetcher := dataset.New(files, dataset.Options{
				ProbeTimeout:    cfg.Fetch.ProbeTimeout,
				DownloadTimeout: cfg.Fetch.DownloadTimeout,
				RequestsPerSec:  cfg.Fetch.RequestsPerSec,
				Burst:           cfg.Fetch.Burst,
			})

			result := fetcher.Prefetch(cmd.Context(), args[0])
			if !result.Valid {
				return fmt.Errorf("dataset invalid: %s", result.Message)
			}
			fmt.Println("Dataset fetched and validated.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "quarry.yaml", "path to config file")
	return cmd
}
