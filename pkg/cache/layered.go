package cache

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/quarrylabs/quarry/pkg/cache/memory"
	"github.com/quarrylabs/quarry/pkg/cache/sqlite"
	"github.com/quarrylabs/quarry/pkg/models"
)

// Layered combines the in-memory tier with the persistent tier. Lookups probe
// memory first; a persistent hit is repopulated into memory. Writes go to the
// persistent tier first, so a crash between the two writes costs at most a
// cache opportunity, never a corrupt entry.
type Layered struct {
	mem        *memory.Cache
	persistent *sqlite.Cache
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewLayered wires the two tiers together.
func NewLayered(mem *memory.Cache, persistent *sqlite.Cache) *Layered {
	return &Layered{mem: mem, persistent: persistent}
}

// Get returns the cached result for key from either tier.
func (l *Layered) Get(key string) (*models.QueryResult, bool) {
	if res, ok := l.mem.Get(key); ok {
		l.hits.Add(1)
		return res, true
	}
	if res, ok := l.persistent.Get(key); ok {
		l.mem.Put(key, &models.ExecResult{Result: res})
		l.hits.Add(1)
		return res, true
	}
	l.misses.Add(1)
	return nil, false
}

// Put stores a successful result in both tiers. Error-tagged results are
// never cached; a persistent-tier failure is logged and the in-memory write
// still proceeds.
func (l *Layered) Put(key string, res *models.ExecResult) {
	if !res.OK() {
		return
	}
	if err := l.persistent.Put(key, res); err != nil {
		log.Warnf("[Cache] Persistent tier write failed for %s: %v", key, err)
	}
	l.mem.Put(key, res)
}

// Stats reports combined lookup counters with the in-memory tier's bounds.
func (l *Layered) Stats() models.CacheStats {
	memStats := l.mem.Stats()
	hits, misses := l.hits.Load(), l.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return models.CacheStats{
		Size:    memStats.Size,
		MaxSize: memStats.MaxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// Cleanup removes expired rows from the persistent tier.
func (l *Layered) Cleanup() (int64, error) {
	return l.persistent.Cleanup()
}

// Close releases the persistent tier.
func (l *Layered) Close() error {
	return l.persistent.Close()
}
