package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSProvider serves a subtree of the local filesystem.
type FSProvider struct {
	name string
	root string
}

// NewFSProvider creates a filesystem provider rooted at root.
func NewFSProvider(name, root string) *FSProvider {
	return &FSProvider{name: name, root: root}
}

// Name returns the provider identifier.
func (p *FSProvider) Name() string { return p.name }

// CheapListing is true: local directory reads are cheap enough for
// background indexing.
func (p *FSProvider) CheapListing() bool { return true }

// List returns the immediate children of dir, as slash-separated paths
// relative to the provider root.
func (p *FSProvider) List(ctx context.Context, dir string) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.abs(dir))
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	listing := &Listing{}
	for _, e := range entries {
		child := joinPath(dir, e.Name())
		if e.IsDir() {
			listing.Dirs = append(listing.Dirs, child)
		} else {
			listing.Files = append(listing.Files, child)
		}
	}
	return listing, nil
}

// EnsureDir creates one directory level under the root.
func (p *FSProvider) EnsureDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Mkdir(p.abs(dir), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	return nil
}

// Upload writes data atomically (temp file then rename) and returns the
// absolute filesystem path of the stored file.
func (p *FSProvider) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := p.abs(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs for %q: %w", path, err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("place %q: %w", path, err)
	}
	return dst, nil
}

// StoredPath returns the absolute filesystem path of a listed entry, the
// same form Upload returns.
func (p *FSProvider) StoredPath(path string) string {
	return p.abs(path)
}

func (p *FSProvider) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// joinPath joins slash-separated provider paths without touching the OS
// separator.
func joinPath(dir, name string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
