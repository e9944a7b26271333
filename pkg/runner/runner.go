// Package runner orchestrates the query pipeline: quota check, result-cache
// probe, dataset materialization, isolated execution, cache write-back, and
// usage accounting.
package runner

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/dataset"
	"github.com/quarrylabs/quarry/pkg/filecache"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/quota"
	"github.com/quarrylabs/quarry/pkg/sqlerr"
	"github.com/quarrylabs/quarry/pkg/tracker"
	"github.com/quarrylabs/quarry/pkg/worker"
)

// ExecError is a failed query attempt carrying a user-facing message. The
// type tag distinguishes deadline kills from engine errors.
type ExecError struct {
	Type    string
	Message string
}

func (e *ExecError) Error() string { return e.Message }

// Submitter is the slice of the worker pool the runner needs.
type Submitter interface {
	Submit(task string, args any, timeout time.Duration) (*worker.Response, error)
}

// Runner wires the subsystems together. Construct one at startup and share
// it; all state lives in the injected components.
type Runner struct {
	results *cache.Layered
	files   *filecache.Cache
	fetcher *dataset.Fetcher
	pool    Submitter
	limiter *quota.Limiter
	usage   tracker.Tracker
	timeout time.Duration
}

// New creates a Runner with the given components and default query timeout.
func New(results *cache.Layered, files *filecache.Cache, fetcher *dataset.Fetcher,
	pool Submitter, limiter *quota.Limiter, usage tracker.Tracker, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		results: results,
		files:   files,
		fetcher: fetcher,
		pool:    pool,
		limiter: limiter,
		usage:   usage,
		timeout: timeout,
	}
}

// Execute runs a SQL statement against the given dataset URLs on behalf of a
// user. The quota gate comes first and a rejection touches neither the pool
// nor the caches; a cache hit returns without fetching or executing; errors
// are never written to either cache tier.
func (r *Runner) Execute(ctx context.Context, sql string, datasets []string, userID string, timeout time.Duration) (*models.QueryResult, error) {
	if timeout <= 0 {
		timeout = r.timeout
	}

	if _, err := r.limiter.Check(ctx, userID); err != nil {
		return nil, err
	}

	key := cache.Key(sql, datasets)
	if result, ok := r.results.Get(key); ok {
		log.Debugf("[Runner] Cache hit for %s", key[:12])
		return result, nil
	}

	files := make([]string, 0, len(datasets))
	releases := make([]func(), 0, len(datasets))
	defer func() {
		for _, release := range releases {
			release()
		}
	}()
	for _, url := range datasets {
		path, release, err := r.fetcher.Ensure(ctx, url)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
		releases = append(releases, release)
	}

	resp, err := r.pool.Submit(worker.TaskQuery, worker.QueryArgs{SQL: sql, Files: files}, timeout)
	if err != nil {
		return nil, err
	}

	switch resp.ErrorType {
	case "":
	case models.ErrTypeTimeout:
		return nil, &ExecError{Type: models.ErrTypeTimeout, Message: resp.Error}
	default:
		return nil, &ExecError{
			Type:    models.ErrTypeExecution,
			Message: sqlerr.Translate(resp.Error, nil),
		}
	}

	var result models.QueryResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ExecError{Type: models.ErrTypeExecution, Message: "worker returned an undecodable result: " + err.Error()}
	}

	r.results.Put(key, &models.ExecResult{Result: &result})

	rec := models.UsageRecord{
		UserID: userID,
		Tokens: estimateTokens(sql, resp.Result),
	}
	if err := r.usage.Record(ctx, rec); err != nil {
		log.Warnf("[Runner] Failed to record usage for %s: %v", userID, err)
	}

	return &result, nil
}

// Prefetch materializes and validates a dataset without executing anything.
func (r *Runner) Prefetch(ctx context.Context, url string) models.ValidationResult {
	return r.fetcher.Prefetch(ctx, url)
}

// CacheStats reports combined result-cache metrics.
func (r *Runner) CacheStats() models.CacheStats {
	return r.results.Stats()
}

// FileCacheStats reports dataset file cache disk usage.
func (r *Runner) FileCacheStats() models.FileCacheStats {
	return r.files.Stats()
}

// QuotaStatus reports a user's current usage against the limit.
func (r *Runner) QuotaStatus(ctx context.Context, userID string) (models.QuotaStatus, error) {
	return r.limiter.Status(ctx, userID)
}

// estimateTokens approximates the token cost of a request from the statement
// and result payload sizes, at roughly four bytes per token.
func estimateTokens(sql string, payload []byte) int64 {
	tokens := int64(len(sql)+len(payload)) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
