package main

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/cache/memory"
	cachesqlite "github.com/quarrylabs/quarry/pkg/cache/sqlite"
	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/dataset"
	"github.com/quarrylabs/quarry/pkg/filecache"
	"github.com/quarrylabs/quarry/pkg/quota"
	"github.com/quarrylabs/quarry/pkg/runner"
	"github.com/quarrylabs/quarry/pkg/tracker"
	"github.com/quarrylabs/quarry/pkg/worker"
)

// buildRunner wires the full pipeline from configuration. The returned
// cleanup shuts the pool and closes every store.
func buildRunner(cfg *config.Config) (*runner.Runner, func(), error) {
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	files, err := newFileCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := files.StartupCleanup(); err != nil {
		files.Close()
		return nil, nil, fmt.Errorf("file cache cleanup: %w", err)
	}

	fetcher := dataset.New(files, dataset.Options{
		ProbeTimeout:    cfg.Fetch.ProbeTimeout,
		DownloadTimeout: cfg.Fetch.DownloadTimeout,
		RequestsPerSec:  cfg.Fetch.RequestsPerSec,
		Burst:           cfg.Fetch.Burst,
	})

	persistent, err := cachesqlite.New(cfg.DBPath, cfg.ResultCache.TTL)
	if err != nil {
		files.Close()
		return nil, nil, err
	}
	results := cache.NewLayered(memory.New(cfg.ResultCache.Capacity, cfg.ResultCache.TTL), persistent)

	usage, err := tracker.New(cfg.DBPath)
	if err != nil {
		results.Close()
		files.Close()
		return nil, nil, err
	}
	limiter := quota.New(usage, cfg.Quota.LimitTokens, quota.Period(cfg.Quota.Period))

	pool, err := worker.Start(cfg.Pool.Size, worker.Options{})
	if err != nil {
		usage.Close()
		results.Close()
		files.Close()
		return nil, nil, err
	}

	r := runner.New(results, files, fetcher, pool, limiter, usage, cfg.Pool.QueryTimeout)
	cleanup := func() {
		pool.Shutdown()
		usage.Close()
		results.Close()
		files.Close()
	}
	return r, cleanup, nil
}

// newFileCache opens the dataset file cache from configuration.
func newFileCache(cfg *config.Config) (*filecache.Cache, error) {
	dir := filepath.Clean(cfg.CacheDir)
	return filecache.New(dir, filecache.Options{
		MaxBytes:     cfg.FileCache.MaxBytes,
		MaxAge:       cfg.FileCache.MaxAge,
		StaleTempAge: cfg.FileCache.StaleTempAge,
	})
}
