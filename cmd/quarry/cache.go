package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cachesqlite "github.com/quarrylabs/quarry/pkg/cache/sqlite"
	"github.com/quarrylabs/quarry/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result and dataset caches",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			c, err := cachesqlite.New(cfg.DBPath, cfg.ResultCache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Result cache entries: %d\n", stats.Size)

			files, err := newFileCache(cfg)
			if err != nil {
				return err
			}
			defer files.Close()
			fs := files.Stats()
			fmt.Printf("Dataset files:        %d (%d bytes)\n", fs.EntryCount, fs.TotalBytes)
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired result-cache entries and stale dataset files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			c, err := cachesqlite.New(cfg.DBPath, cfg.ResultCache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			removed, err := c.Cleanup()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired result-cache entries.\n", removed)

			files, err := newFileCache(cfg)
			if err != nil {
				return err
			}
			defer files.Close()
			return files.StartupCleanup()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all result-cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			c, err := cachesqlite.New(cfg.DBPath, cfg.ResultCache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Println("Result cache cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "quarry.yaml", "path to config file")
	cmd.AddCommand(statsCmd, cleanupCmd, clearCmd)
	return cmd
}
