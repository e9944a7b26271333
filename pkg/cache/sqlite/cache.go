// Package sqlite implements the persistent result cache tier, keyed
// identically to the in-memory tier and surviving process restarts.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/quarrylabs/quarry/pkg/models"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS result_cache (
	cache_key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	row_count INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_result_cache_expiry ON result_cache(expires_at);
`

// Cache stores query results in SQLite with explicit expiry timestamps.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

// New creates a Cache backed by the database at dbPath with the given TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a cached result. An entry whose expires_at equals the current
// time is already expired (exclusive upper bound).
func (c *Cache) Get(key string) (*models.QueryResult, bool) {
	var payload []byte
	var expiresAt time.Time

	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM result_cache WHERE cache_key = ?`,
		key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	if !c.now().UTC().Before(expiresAt.UTC()) {
		c.misses.Add(1)
		return nil, false
	}

	var result models.QueryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		log.Warnf("[Cache] Dropping undecodable entry %s: %v", key, err)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &result, true
}

// Put stores a successful result. Error-tagged results and payloads that do
// not serialize are skipped rather than raised; a cache write must never fail
// a request that already succeeded.
func (c *Cache) Put(key string, res *models.ExecResult) error {
	if !res.OK() {
		return nil
	}

	payload, err := json.Marshal(res.Result)
	if err != nil {
		log.Warnf("[Cache] Skipping unserializable result for %s: %v", key, err)
		return nil
	}

	now := c.now().UTC()
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO result_cache (cache_key, payload, row_count, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, payload, res.Result.TotalRows, now, now.Add(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Cleanup deletes all expired entries. Entries created in the past but not
// yet expired are retained.
func (c *Cache) Cleanup() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM result_cache WHERE expires_at <= ?`, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM result_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats returns entry count and hit/miss counters for this tier.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM result_cache`).Scan(&count); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	hits, misses := c.hits.Load(), c.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return models.CacheStats{
		Size:    count,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
