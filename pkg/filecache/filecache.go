// Package filecache bounds local disk usage for fetched dataset files.
// Downloads land in temp files and are atomically renamed into place, so a
// reader never observes a partially written file. Eviction is LRU by access
// time, persisted in a bbolt index so ordering survives restarts, and never
// removes a file a concurrent reader still holds a reference to.
package filecache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/quarrylabs/quarry/pkg/models"
)

const indexFile = ".quarry-index.db"

var accessBucket = []byte("access")

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Options bound the cache.
type Options struct {
	// MaxBytes is the total size budget; 0 disables the size bound.
	MaxBytes int64
	// MaxAge evicts files not accessed for this long; 0 disables the age bound.
	MaxAge time.Duration
	// StaleTempAge is how old an orphaned temp file must be before the
	// startup sweep removes it.
	StaleTempAge time.Duration
}

// Cache is a disk cache for dataset files under a single root directory.
type Cache struct {
	root string
	opts Options
	idx  *bolt.DB

	mu   sync.Mutex
	refs map[string]int

	now func() time.Time
}

// New opens a Cache rooted at dir, creating it if needed.
func New(dir string, opts Options) (*Cache, error) {
	if opts.StaleTempAge <= 0 {
		opts.StaleTempAge = time.Hour
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	idx, err := bolt.Open(filepath.Join(dir, indexFile), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	err = idx.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accessBucket)
		return err
	})
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("init cache index: %w", err)
	}

	return &Cache{
		root: dir,
		opts: opts,
		idx:  idx,
		refs: make(map[string]int),
		now:  time.Now,
	}, nil
}

// Name derives the cache filename for a dataset URL. Hostname casing, query
// parameters, and fragments do not change the name, so repeated requests for
// the same object reuse the cached file.
func Name(rawURL string) string {
	normalized := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.RawQuery = ""
		u.Fragment = ""
		normalized = u.String()
	}

	sum := sha256.Sum256([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:16]

	base := filepath.Base(normalized)
	base = unsafeChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == ".." || len(base) > 64 {
		base = "dataset"
	}
	return base + "-" + digest
}

// Path returns the absolute path for a cache filename.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.root, name)
}

// Has reports whether a completed file exists for name.
func (c *Cache) Has(name string) bool {
	info, err := os.Stat(c.Path(name))
	return err == nil && !info.IsDir()
}

// TempFile creates a temp file beneath the cache root for a download in
// progress. Callers must Promote or remove it.
func (c *Cache) TempFile(name string) (*os.File, error) {
	f, err := os.CreateTemp(c.root, name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// Promote atomically renames a completed temp file to its final name and
// records the access. No partially written file is ever visible under a
// final name.
func (c *Cache) Promote(tmpPath, name string) error {
	if err := os.Rename(tmpPath, c.Path(name)); err != nil {
		return fmt.Errorf("promote temp file: %w", err)
	}
	c.Touch(name)
	return nil
}

// Touch records an access to name for LRU ordering.
func (c *Cache) Touch(name string) {
	err := c.idx.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(c.now().UnixNano()))
		return tx.Bucket(accessBucket).Put([]byte(name), buf)
	})
	if err != nil {
		log.Warnf("[FileCache] Failed to record access for %s: %v", name, err)
	}
}

// Acquire marks name as referenced by an in-flight execution, shielding it
// from eviction. The returned release must be called when done.
func (c *Cache) Acquire(name string) func() {
	c.mu.Lock()
	c.refs[name]++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.refs[name] <= 1 {
				delete(c.refs, name)
			} else {
				c.refs[name]--
			}
			c.mu.Unlock()
		})
	}
}

func (c *Cache) referenced(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[name] > 0
}

// StartupCleanup runs once at process start: it creates the cache root if
// absent, removes temp files orphaned by a crash mid-download, and performs
// an eviction pass. Running it twice in a row is a no-op the second time.
func (c *Cache) StartupCleanup() error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if c.now().Sub(info.ModTime()) >= c.opts.StaleTempAge {
			if err := os.Remove(filepath.Join(c.root, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Infof("[FileCache] Removed %d stale temp files", removed)
	}

	return c.Evict()
}

type fileAge struct {
	name     string
	size     int64
	accessed time.Time
}

// Evict enforces the age and size bounds, removing least-recently-used files
// first. Files held by an in-flight execution are skipped.
func (c *Cache) Evict() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}

	access := c.accessTimes()

	var files []fileAge
	var total int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		accessed, ok := access[name]
		if !ok {
			accessed = info.ModTime()
		}
		files = append(files, fileAge{name: name, size: info.Size(), accessed: accessed})
		total += info.Size()
	}

	// Oldest access first.
	sort.Slice(files, func(i, j int) bool { return files[i].accessed.Before(files[j].accessed) })

	now := c.now()
	for _, f := range files {
		overAge := c.opts.MaxAge > 0 && now.Sub(f.accessed) > c.opts.MaxAge
		overSize := c.opts.MaxBytes > 0 && total > c.opts.MaxBytes
		if !overAge && !overSize {
			continue
		}
		if c.referenced(f.name) {
			continue
		}
		if err := os.Remove(c.Path(f.name)); err != nil {
			log.Warnf("[FileCache] Failed to evict %s: %v", f.name, err)
			continue
		}
		total -= f.size
		c.forget(f.name)
		log.Infof("[FileCache] Evicted %s (%d bytes)", f.name, f.size)
	}

	return nil
}

func (c *Cache) accessTimes() map[string]time.Time {
	access := make(map[string]time.Time)
	err := c.idx.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accessBucket).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				access[string(k)] = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
			}
			return nil
		})
	})
	if err != nil {
		log.Warnf("[FileCache] Failed to read access index: %v", err)
	}
	return access
}

func (c *Cache) forget(name string) {
	err := c.idx.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accessBucket).Delete([]byte(name))
	})
	if err != nil {
		log.Warnf("[FileCache] Failed to drop index entry for %s: %v", name, err)
	}
}

// Stats reports entry count and total bytes. A missing or empty cache
// directory yields zeros, never an error.
func (c *Cache) Stats() models.FileCacheStats {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return models.FileCacheStats{}
	}

	var stats models.FileCacheStats
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.EntryCount++
		stats.TotalBytes += info.Size()
	}
	return stats
}

// Close releases the access index.
func (c *Cache) Close() error {
	return c.idx.Close()
}
