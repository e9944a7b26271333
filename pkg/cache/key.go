// Package cache provides result caching for query executions: a deterministic
// key derivation plus a two-tier store (in-memory LRU and persistent SQLite).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Key derives the cache key for a (SQL, dataset set) pair. SQL is trimmed of
// surrounding whitespace and dataset URLs are sorted, so logically identical
// requests share a key regardless of dataset order. Fields are separated by a
// NUL delimiter, which cannot appear in a URL, so distinct inputs cannot
// collide by concatenation.
func Key(sql string, datasets []string) string {
	urls := make([]string, len(datasets))
	copy(urls, datasets)
	sort.Strings(urls)

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(sql)))
	h.Write([]byte{0})
	for _, u := range urls {
		h.Write([]byte(u))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
