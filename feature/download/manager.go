package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"catalog-sync/core/events"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"
	"catalog-sync/core/retry"
	"catalog-sync/core/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrHashMismatch marks downloaded bytes that failed integrity verification.
// It is fatal for that artifact and never retried.
var ErrHashMismatch = errors.New("downloaded content hash mismatch")

// Options tunes the download manager.
type Options struct {
	// DirectURLFree returns the source URL unchanged for free-tier records
	// instead of materializing a local copy.
	DirectURLFree bool
	// MaxIndexed caps the background indexer's entry count to bound memory.
	MaxIndexed int
	// IndexPause is the pacing delay between background index directory
	// steps.
	IndexPause time.Duration
}

// Manager materializes remote files into local storage. It keeps a
// case-insensitive inventory of known local paths, coalesces concurrent
// requests for the same artifact, and runs a best-effort background indexer
// when the provider supports cheap listings.
type Manager struct {
	provider storage.Provider
	http     *http.Client
	retry    retry.Options
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options

	group singleflight.Group

	mu        sync.RWMutex
	inventory map[string]string
	indexed   int
}

// NewManager creates a manager placing files through provider.
func NewManager(provider storage.Provider, httpClient *http.Client, retryOpts retry.Options, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger, opts Options) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retryOpts.ShouldRetry == nil {
		retryOpts.ShouldRetry = func(err error) bool {
			return !errors.Is(err, ErrHashMismatch)
		}
	}
	if opts.MaxIndexed <= 0 {
		opts.MaxIndexed = 5000
	}
	if opts.IndexPause <= 0 {
		opts.IndexPause = 25 * time.Millisecond
	}
	return &Manager{
		provider:  provider,
		http:      httpClient,
		retry:     retryOpts,
		bus:       bus,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		inventory: make(map[string]string),
	}
}

// EnsureLocal returns a local path for item, downloading from sourceURL when
// no copy is known. Concurrent calls for the same (kind, path) share one
// download job. Free-tier records short-circuit to the source URL when the
// direct-URL policy is enabled.
func (m *Manager) EnsureLocal(ctx context.Context, item model.InventoryRecord, sourceURL string) (string, error) {
	if item.Tier == model.TierFree && m.opts.DirectURLFree {
		return sourceURL, nil
	}

	rel := strings.TrimPrefix(item.FilePath, "/")
	if item.CachedLocalPath != "" {
		m.Register(rel, item.CachedLocalPath)
		return item.CachedLocalPath, nil
	}
	if local, ok := m.lookup(rel); ok {
		return local, nil
	}

	// One cheap listing of the exact destination directory catches files
	// placed out-of-band since the last index pass.
	m.indexDirectory(ctx, path.Dir(rel))
	if local, ok := m.lookup(rel); ok {
		return local, nil
	}

	key := string(item.Kind) + "|" + strings.ToLower(rel)
	result, err, _ := m.group.Do(key, func() (any, error) {
		// A winner may have registered the path while we queued.
		if local, ok := m.lookup(rel); ok {
			return local, nil
		}
		return m.download(ctx, item, rel, sourceURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Register records a known local path for rel under every key variant.
func (m *Manager) Register(rel, localPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range keyVariants(rel) {
		m.inventory[v] = localPath
	}
}

// Lookup returns the known local path for rel, if any.
func (m *Manager) Lookup(rel string) (string, bool) {
	return m.lookup(rel)
}

// InventorySize reports the number of known inventory keys.
func (m *Manager) InventorySize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.inventory)
}

func (m *Manager) lookup(rel string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range keyVariants(rel) {
		if local, ok := m.inventory[v]; ok {
			return local, true
		}
	}
	return "", false
}

func (m *Manager) download(ctx context.Context, item model.InventoryRecord, rel, sourceURL string) (string, error) {
	kind := string(item.Kind)
	m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StageStart})

	fail := func(err error) (string, error) {
		m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StageError})
		m.publish(events.DownloadFailed{Kind: kind, Path: rel, Err: err})
		m.metrics.Downloads.WithLabelValues(kind, metrics.ResultError).Inc()
		return "", err
	}

	m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StageFetch})
	data, err := retry.DoWithResult(ctx, m.retry, func(ctx context.Context) ([]byte, error) {
		return m.fetch(ctx, sourceURL, item.ContentHash)
	})
	if err != nil {
		return fail(err)
	}

	m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StagePrepare})
	if err := m.ensurePath(ctx, rel); err != nil {
		return fail(err)
	}

	m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StageUpload})
	stored, err := m.provider.Upload(ctx, rel, data, contentTypeFor(rel, item.ContentType))
	if err != nil {
		return fail(err)
	}

	m.Register(rel, stored)
	m.publish(events.DownloadProgress{Kind: kind, Path: rel, Stage: events.StageComplete})
	m.publish(events.DownloadCompleted{Kind: kind, Path: rel, LocalPath: stored})
	m.metrics.Downloads.WithLabelValues(kind, metrics.ResultOK).Inc()
	m.metrics.DownloadBytes.Add(float64(len(data)))
	m.logger.Debug("Download complete",
		zap.String("kind", kind), zap.String("path", rel), zap.Int("bytes", len(data)))
	return stored, nil
}

func (m *Manager) fetch(ctx context.Context, sourceURL, wantHash string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if wantHash != "" {
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), wantHash) {
			return nil, ErrHashMismatch
		}
	}
	return data, nil
}

// ensurePath creates each directory level of rel's parent in order, so
// providers without recursive creation still end up with the full chain.
func (m *Manager) ensurePath(ctx context.Context, rel string) error {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, s := range segments {
		if current == "" {
			current = s
		} else {
			current += "/" + s
		}
		if err := m.provider.EnsureDir(ctx, current); err != nil {
			return fmt.Errorf("prepare %s: %w", dir, err)
		}
	}
	return nil
}

// BackgroundIndex walks the provider root breadth-first, registering every
// file it finds, paced between directory steps and capped at MaxIndexed
// entries. It runs only when listings are cheap and never reports errors;
// the inventory is best-effort.
func (m *Manager) BackgroundIndex(ctx context.Context) {
	if !m.provider.CheapListing() {
		return
	}

	queue := []string{""}
	visited := map[string]struct{}{"": {}}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return
		}
		m.mu.RLock()
		full := m.indexed >= m.opts.MaxIndexed
		m.mu.RUnlock()
		if full {
			m.logger.Debug("Background index reached entry cap",
				zap.Int("max", m.opts.MaxIndexed))
			return
		}

		dir := queue[0]
		queue = queue[1:]

		listing, err := m.provider.List(ctx, dir)
		if err != nil {
			m.logger.Debug("Background index skipping directory",
				zap.String("dir", dir), zap.Error(err))
			continue
		}

		for _, child := range listing.Dirs {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			queue = append(queue, child)
		}

		m.mu.Lock()
		for _, file := range listing.Files {
			if m.indexed >= m.opts.MaxIndexed {
				break
			}
			stored := m.provider.StoredPath(file)
			for _, v := range keyVariants(file) {
				m.inventory[v] = stored
			}
			m.indexed++
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.IndexPause):
		}
	}
}

func (m *Manager) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// keyVariants generates the case-insensitive lookup keys for a relative
// path: the path itself, its percent-decoded and percent-encoded forms, and
// the bare filename. Sources disagree on escaping, so all variants map to
// the same file.
func keyVariants(rel string) []string {
	lower := strings.ToLower(strings.TrimPrefix(rel, "/"))
	variants := []string{lower}
	if decoded, err := url.PathUnescape(lower); err == nil && decoded != lower {
		variants = append(variants, decoded)
	}
	if encoded := encodePath(lower); encoded != lower {
		variants = append(variants, encoded)
	}
	if base := path.Base(lower); base != lower && base != "." {
		variants = append(variants, base)
	}
	return variants
}

// indexDirectory registers the files of one directory under their stored
// addresses. Used for the cheap targeted check before a download.
func (m *Manager) indexDirectory(ctx context.Context, dir string) {
	if dir == "." {
		dir = ""
	}
	listing, err := m.provider.List(ctx, dir)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, file := range listing.Files {
		stored := m.provider.StoredPath(file)
		for _, v := range keyVariants(file) {
			m.inventory[v] = stored
		}
	}
}

func contentTypeFor(rel, fallback string) string {
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	if fallback != "" {
		return fallback
	}
	return "application/octet-stream"
}
