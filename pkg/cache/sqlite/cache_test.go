package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func okResult(marker string) *models.ExecResult {
	return &models.ExecResult{
		Result: &models.QueryResult{
			Columns:   []string{"v"},
			Rows:      [][]any{{marker}},
			TotalRows: 1,
		},
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.Put("k1", okResult("hello")); err != nil {
		t.Fatal(err)
	}

	res, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(res.Columns) != 1 || res.Columns[0] != "v" {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
	if res.Rows[0][0] != "hello" {
		t.Errorf("unexpected payload: %v", res.Rows[0][0])
	}
	if res.TotalRows != 1 {
		t.Errorf("unexpected row count: %d", res.TotalRows)
	}
}

func TestErrorResultsSkipped(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.Put("err", &models.ExecResult{ErrorType: models.ErrTypeTimeout, Error: "deadline"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("err"); ok {
		t.Error("error-tagged result should not be cached")
	}

	// A bare payload with no structured result is skipped, not raised.
	if err := c.Put("bare", &models.ExecResult{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("bare"); ok {
		t.Error("result without a payload should not be cached")
	}
}

func TestExpiryBoundaryExclusive(t *testing.T) {
	c := newTestCache(t, 300*time.Second)
	t0 := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	if err := c.Put("k", okResult("v")); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return t0.Add(299 * time.Second) }
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should be retrievable one second before expiry")
	}

	c.now = func() time.Time { return t0.Add(300 * time.Second) }
	if _, ok := c.Get("k"); ok {
		t.Error("entry should be expired exactly at expires_at")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", okResult("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := New(dbPath, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	res, ok := c2.Get("k")
	if !ok {
		t.Fatal("entry should survive a reopen")
	}
	if res.Rows[0][0] != "persisted" {
		t.Errorf("unexpected payload: %v", res.Rows[0][0])
	}
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c := newTestCache(t, 300*time.Second)
	t0 := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	c.now = func() time.Time { return t0 }
	if err := c.Put("old", okResult("old")); err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return t0.Add(250 * time.Second) }
	if err := c.Put("fresh", okResult("fresh")); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return t0.Add(301 * time.Second) }
	removed, err := c.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 expired entry removed, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("unexpired entry should be retained")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Put("k", okResult("v"))
	c.Get("k")       // hit
	c.Get("missing") // miss

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Size != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Size)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
}
