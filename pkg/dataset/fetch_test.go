package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/quarrylabs/quarry/pkg/filecache"
)

var sqliteHeader = append([]byte("SQLite format 3\x00"), make([]byte, 84)...)

func newTestFetcher(t *testing.T) (*Fetcher, *filecache.Cache) {
	t.Helper()
	files, err := filecache.New(t.TempDir(), filecache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = files.Close() })
	return New(files, Options{}), files
}

func TestProbeRejectsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, _ := newTestFetcher(t)
	err := f.Probe(context.Background(), srv.URL+"/missing.db")

	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !strings.Contains(nerr.Error(), "404") {
		t.Errorf("error should carry the status: %v", nerr)
	}
}

func TestProbeRejectsUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening anymore

	f, _ := newTestFetcher(t)
	err := f.Probe(context.Background(), srv.URL+"/d.db")

	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestEnsureDownloadsOnceThenReusesCache(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Write(sqliteHeader)
	}))
	defer srv.Close()

	f, files := newTestFetcher(t)
	url := srv.URL + "/sales.db"

	path, release, err := f.Ensure(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != len(sqliteHeader) {
		t.Errorf("cached file truncated: %d bytes", len(data))
	}
	if !files.Has(filecache.Name(url)) {
		t.Error("file should be recorded in the cache")
	}

	path2, release2, err := f.Ensure(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	release2()

	if path2 != path {
		t.Errorf("cached path changed: %q vs %q", path2, path)
	}
	if n := gets.Load(); n != 1 {
		t.Errorf("expected exactly 1 download, server saw %d", n)
	}
}

func TestEnsureRejectsBadFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not a database</html>"))
	}))
	defer srv.Close()

	f, files := newTestFetcher(t)
	url := srv.URL + "/fake.db"

	_, _, err := f.Ensure(context.Background(), url)
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FormatError, got %v", err)
	}

	if files.Has(filecache.Name(url)) {
		t.Error("invalid download must not be promoted into the cache")
	}
	stats := files.Stats()
	if stats.EntryCount != 0 {
		t.Errorf("cache should be empty, got %d entries", stats.EntryCount)
	}
}

func TestPrefetchReportsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.db":
			w.Write(sqliteHeader)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)

	res := f.Prefetch(context.Background(), srv.URL+"/good.db")
	if !res.Valid {
		t.Errorf("expected valid prefetch, got %q", res.Message)
	}

	res = f.Prefetch(context.Background(), srv.URL+"/missing.db")
	if res.Valid {
		t.Error("missing dataset should not validate")
	}
	if res.Message == "" {
		t.Error("failed prefetch should carry a message")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.db")
	if err := os.WriteFile(good, sqliteHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	if v := Validate(good); !v.Valid {
		t.Errorf("expected valid, got %q", v.Message)
	}

	short := filepath.Join(dir, "short.db")
	if err := os.WriteFile(short, []byte("SQLite"), 0o644); err != nil {
		t.Fatal(err)
	}
	if v := Validate(short); v.Valid {
		t.Error("truncated header should be invalid")
	}

	empty := filepath.Join(dir, "empty.db")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if v := Validate(empty); v.Valid {
		t.Error("empty file should be invalid")
	}

	wrong := filepath.Join(dir, "wrong.db")
	if err := os.WriteFile(wrong, []byte("PK\x03\x04 not a database at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := Validate(wrong)
	if v.Valid {
		t.Error("wrong magic should be invalid")
	}
	if v.Message == "" {
		t.Error("invalid result should carry a message")
	}
}
