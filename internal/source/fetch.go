// Package source acquires raw calendar text for the parser: HTTP
// subscriptions with conditional-request caching, or local files. The
// parsing core itself performs no I/O; this package is the collaborator
// that hands it bytes.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "icalq/internal/log"
)

// Source identifies one calendar source.
type Source struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string
	// URL is the ICS endpoint; empty for local sources.
	URL string
	// Path is a local .ics file; used when URL is empty.
	Path string
}

// Result is the outcome of loading a single source.
type Result struct {
	Source    Source
	Body      []byte
	FromCache bool // true if a cached body was reused (304 or network error)
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher loads calendar sources, keeping a disk-backed conditional
// cache (ETag / Last-Modified) for HTTP ones.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		// Relative fallback so development runs without root permissions.
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// LoadAll loads every source. Failures are per-source: the error slice
// collects them and the result slice contains only sources that produced
// a body.
func (f *Fetcher) LoadAll(ctx context.Context, sources []Source) ([]Result, []error) {
	results := make([]Result, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.Load(ctx, src)
		if err != nil {
			errs = append(errs, err)
			applog.Error("source load failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Load loads one source: local path read, or conditional HTTP GET with
// cached-body fallback.
func (f *Fetcher) Load(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" && src.Path == "" {
		return Result{}, errors.New("source has neither URL nor path")
	}
	if src.URL == "" || strings.HasPrefix(src.URL, "file://") {
		path := src.Path
		if path == "" {
			path = strings.TrimPrefix(src.URL, "file://")
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Source: src, Body: body}, nil
	}
	return f.fetchHTTP(ctx, src)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src Source) (Result, error) {
	cachePath := f.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	applog.Debug("source fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		// Network error; fall back to the cached body if we have one.
		if len(cachedBody) > 0 {
			applog.Error("source fetch network error, using cached body", err,
				"id", src.ID, "url", redactURL(src.URL))
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Result{}, readErr
		}
		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			applog.Error("source cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		applog.Info("source fetched", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, errors.New("304 Not Modified but no cached body available")
		}
		applog.Info("source not modified, using cache", "id", src.ID, "url", redactURL(src.URL))
		return Result{Source: src, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			applog.Error("source fetch non-OK, using cached body", errors.New(resp.Status),
				"id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, errors.New(resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides path and query of a source URL for logging; private
// feed URLs routinely embed tokens.
func redactURL(u string) string {
	if u == "" {
		return ""
	}
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return u[:i+3+j] + redactedSuffix
	}
	return u + redactedSuffix
}
