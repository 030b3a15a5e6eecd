package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"catalog-sync/core/metrics"
	"catalog-sync/core/model"
	"catalog-sync/core/retry"

	"go.uber.org/zap"
)

var (
	// ErrAuthRequired marks a premium resolution attempted without a valid
	// session state. It is never retried; callers use it to trigger a
	// re-authentication flow.
	ErrAuthRequired = errors.New("authentication required for premium content")

	// ErrUnexpectedResponse marks a malformed download-endpoint payload.
	ErrUnexpectedResponse = errors.New("unexpected download response")
)

// AuthState supplies the current session state string. Empty means no
// session.
type AuthState func() string

// Resolver turns a catalog record into a fetchable URL. Free-tier content
// resolves to a deterministic public URL with no network round-trip; premium
// content requires a signed URL from the download endpoint, memoized in the
// URL cache.
type Resolver struct {
	base    string
	auth    AuthState
	http    *http.Client
	retry   retry.Options
	cache   *URLCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewResolver creates a resolver for the given endpoint base URL.
func NewResolver(base string, auth AuthState, cache *URLCache, httpClient *http.Client, retryOpts retry.Options, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retryOpts.ShouldRetry == nil {
		retryOpts.ShouldRetry = func(err error) bool {
			return !errors.Is(err, ErrAuthRequired) && !errors.Is(err, ErrUnexpectedResponse)
		}
	}
	return &Resolver{
		base:    strings.TrimSuffix(base, "/"),
		auth:    auth,
		http:    httpClient,
		retry:   retryOpts,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// PublicURL builds the predictable free-tier URL for a record path.
func (r *Resolver) PublicURL(kind model.Kind, path string) string {
	return r.base + "/" + string(kind) + "/" + encodePath(path)
}

// ThumbnailURL builds the deterministic thumbnail URL for a record path.
func (r *Resolver) ThumbnailURL(kind model.Kind, path string) string {
	return r.base + "/thumbnails/" + string(kind) + "/" + encodePath(path)
}

// Resolve returns the URL to fetch item's bytes from. Premium records go
// through the download endpoint once per cache TTL.
func (r *Resolver) Resolve(ctx context.Context, item model.InventoryRecord) (string, error) {
	if item.Tier != model.TierPremium {
		return r.PublicURL(item.Kind, item.FilePath), nil
	}

	if cached, ok := r.cache.Get(string(item.Kind), item.FilePath); ok {
		r.metrics.URLCacheOps.WithLabelValues(metrics.ResultHit).Inc()
		return cached, nil
	}
	r.metrics.URLCacheOps.WithLabelValues(metrics.ResultMiss).Inc()

	state := r.auth()
	if state == "" {
		return "", ErrAuthRequired
	}

	resolved, err := retry.DoWithResult(ctx, r.retry, func(ctx context.Context) (string, error) {
		return r.requestSignedURL(ctx, item, state)
	})
	if err != nil {
		return "", err
	}

	r.cache.Put(string(item.Kind), item.FilePath, resolved)
	return resolved, nil
}

func (r *Resolver) requestSignedURL(ctx context.Context, item model.InventoryRecord, state string) (string, error) {
	pathParam := "asset_path"
	if item.Kind == model.KindToken {
		pathParam = "token_path"
	}
	endpoint := fmt.Sprintf("%s/download?state=%s&%s=%s",
		r.base, url.QueryEscape(state), pathParam, url.QueryEscape(item.FilePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", item.FilePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve %s: unexpected status %d", item.FilePath, resp.StatusCode)
	}

	var payload struct {
		Success     bool   `json:"success"`
		DownloadURL string `json:"download_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnexpectedResponse, err)
	}
	if !payload.Success || payload.DownloadURL == "" {
		// The server declines signed URLs for stale or revoked sessions.
		return "", ErrAuthRequired
	}
	return payload.DownloadURL, nil
}

// encodePath percent-encodes each path segment, leaving separators intact.
func encodePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
