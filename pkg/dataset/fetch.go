// Package dataset fetches remote dataset files, validates their container
// format, and materializes them into the local file cache.
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/quarrylabs/quarry/pkg/filecache"
	"github.com/quarrylabs/quarry/pkg/models"
)

// NetworkError covers unreachable hosts, connection timeouts, and non-2xx
// responses, keyed to the dataset URL that failed.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FormatError marks a downloaded file whose container format is invalid.
type FormatError struct {
	URL    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid dataset %s: %s", e.URL, e.Reason)
}

// Options control fetch behavior.
type Options struct {
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	RequestsPerSec  float64
	Burst           int
}

// Fetcher retrieves dataset files over HTTP into the file cache.
type Fetcher struct {
	client  *http.Client
	files   *filecache.Cache
	limiter *rate.Limiter
	opts    Options
}

// New creates a Fetcher writing into the given file cache.
func New(files *filecache.Cache, opts Options) *Fetcher {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 2 * time.Minute
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{
		client:  &http.Client{},
		files:   files,
		limiter: rate.NewLimiter(limit, burst),
		opts:    opts,
	}
}

// Probe checks reachability of a dataset URL with a lightweight HEAD request
// before committing to a full download.
func (f *Fetcher) Probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// Ensure materializes a dataset locally, reusing the cached copy when
// present. It returns the local path and a release func that must be called
// once the caller is done reading the file.
func (f *Fetcher) Ensure(ctx context.Context, url string) (string, func(), error) {
	name := filecache.Name(url)
	if f.files.Has(name) {
		f.files.Touch(name)
		return f.files.Path(name), f.files.Acquire(name), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", nil, &NetworkError{URL: url, Err: err}
	}

	if err := f.Probe(ctx, url); err != nil {
		return "", nil, err
	}

	if err := f.download(ctx, url, name); err != nil {
		return "", nil, err
	}
	return f.files.Path(name), f.files.Acquire(name), nil
}

// Prefetch probes, downloads, and validates a dataset without executing
// anything against it.
func (f *Fetcher) Prefetch(ctx context.Context, url string) models.ValidationResult {
	_, release, err := f.Ensure(ctx, url)
	if err != nil {
		return models.ValidationResult{Valid: false, Message: err.Error()}
	}
	defer release()
	return models.ValidationResult{Valid: true}
}

// download streams the dataset to a temp file under the cache root, validates
// the container format, and atomically promotes it into place.
func (f *Fetcher) download(ctx context.Context, url, name string) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	tmp, err := f.files.TempFile(name)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", url, err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return &NetworkError{URL: url, Err: err}
	}

	if v := Validate(tmpPath); !v.Valid {
		os.Remove(tmpPath)
		return &FormatError{URL: url, Reason: v.Message}
	}

	if err := f.files.Promote(tmpPath, name); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("materialize %s: %w", url, err)
	}

	log.Infof("[Fetch] Cached %s (%d bytes) as %s", url, written, name)
	return nil
}
