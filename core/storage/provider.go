package storage

import (
	"context"
	"fmt"
	"strings"
)

// Listing is the result of listing one directory level.
type Listing struct {
	// Files are full paths of regular entries under the listed directory.
	Files []string
	// Dirs are full paths of subdirectories under the listed directory.
	Dirs []string
}

// Provider is the file-provider contract: list entries under a path, create
// directories, and write bytes. Implementations exist for the local
// filesystem and for S3-compatible object storage.
type Provider interface {
	// Name is the stable identifier used in location prefixes.
	Name() string
	// List returns the immediate children of dir.
	List(ctx context.Context, dir string) (*Listing, error)
	// EnsureDir creates a single directory level. Creating an existing
	// directory is not an error.
	EnsureDir(ctx context.Context, dir string) error
	// Upload writes data at path and returns the stored path, which for
	// some providers is a direct externally-addressable URL.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// StoredPath maps a listed path to the stored address Upload would
	// return for it, so files discovered by listing resolve to the same
	// form as files placed by Upload.
	StoredPath(path string) string
	// CheapListing reports whether directory listings are cheap enough for
	// opportunistic background scans.
	CheapListing() bool
}

// Location is a structured storage address: a provider name plus a path
// within that provider. It is constructed once where a configuration string
// is read, never re-parsed downstream.
type Location struct {
	Provider string
	Path     string
}

// String renders the location back to its configuration form.
func (l Location) String() string {
	if l.Provider == "" {
		return l.Path
	}
	return l.Provider + ":" + l.Path
}

// Registry holds the configured providers, the primary provider used for
// unprefixed paths, and the fallback resolution order.
type Registry struct {
	providers map[string]Provider
	primary   string
	fallbacks []string
}

// NewRegistry creates a registry. primary names the provider assumed for
// paths without an explicit prefix; fallbacks are tried in order when a
// listing on the resolved provider fails.
func NewRegistry(primary string, fallbacks ...string) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		primary:   primary,
		fallbacks: fallbacks,
	}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the provider used for unprefixed paths.
func (r *Registry) Primary() (Provider, error) {
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("primary storage provider %q is not registered", r.primary)
	}
	return p, nil
}

// Parse builds a Location from a stored folder string. A leading
// "<provider>:" prefix selects that provider when it is registered;
// everything else resolves to the primary provider. This keeps unknown
// prefixes (drive letters, URL schemes in paths) out of provider selection.
func (r *Registry) Parse(raw string) Location {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, ":"); i > 0 {
		name := raw[:i]
		if _, ok := r.providers[name]; ok {
			return Location{Provider: name, Path: strings.TrimPrefix(raw[i+1:], "/")}
		}
	}
	return Location{Provider: r.primary, Path: raw}
}

// ListWithFallback lists loc on its provider, then on each configured
// fallback provider in order, returning the first listing that succeeds
// together with the provider that served it.
func (r *Registry) ListWithFallback(ctx context.Context, loc Location) (Provider, *Listing, error) {
	names := append([]string{loc.Provider}, r.fallbacks...)
	var lastErr error
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		listing, err := p.List(ctx, loc.Path)
		if err != nil {
			lastErr = err
			continue
		}
		return p, listing, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available for %q", loc.String())
	}
	return nil, nil, fmt.Errorf("list %s: %w", loc.String(), lastErr)
}
