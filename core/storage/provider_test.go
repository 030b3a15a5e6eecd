package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := NewRegistry("data", "s3")
	reg.Register(NewFSProvider("data", root))
	return reg, root
}

func TestRegistry_Parse(t *testing.T) {
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name string
		raw  string
		want Location
	}{
		{"plain path", "packs/icons", Location{Provider: "data", Path: "packs/icons"}},
		{"explicit provider", "data:packs/icons", Location{Provider: "data", Path: "packs/icons"}},
		{"provider with leading slash", "data:/packs", Location{Provider: "data", Path: "packs"}},
		{"unknown prefix stays in path", "C:stuff", Location{Provider: "data", Path: "C:stuff"}},
		{"whitespace trimmed", "  packs ", Location{Provider: "data", Path: "packs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Parse(tt.raw))
		})
	}
}

func TestFSProvider_ListAndUpload(t *testing.T) {
	reg, root := newTestRegistry(t)
	p, ok := reg.Get("data")
	require.True(t, ok)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "packs", "icons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "packs", "a.png"), []byte("x"), 0o644))

	listing, err := p.List(context.Background(), "packs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, trimAll(listing.Files, "packs/"))
	assert.Equal(t, []string{"icons"}, trimAll(listing.Dirs, "packs/"))

	stored, err := p.Upload(context.Background(), "packs/new/b.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "packs", "new", "b.png"), stored)

	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
}

func TestFSProvider_EnsureDirIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p, _ := reg.Get("data")

	require.NoError(t, p.EnsureDir(context.Background(), "nested"))
	require.NoError(t, p.EnsureDir(context.Background(), "nested"))
	require.NoError(t, p.EnsureDir(context.Background(), "nested/deeper"))
}

func TestFSProvider_ListMissingDir(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p, _ := reg.Get("data")

	_, err := p.List(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestRegistry_ListWithFallback(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(other, "only-here.png"), []byte("x"), 0o644))

	reg := NewRegistry("data", "backup")
	reg.Register(NewFSProvider("data", filepath.Join(root, "missing-subdir")))
	reg.Register(NewFSProvider("backup", other))

	// Primary listing fails (root subdir missing); fallback serves it.
	p, listing, err := reg.ListWithFallback(context.Background(), reg.Parse(""))
	require.NoError(t, err)
	assert.Equal(t, "backup", p.Name())
	assert.Equal(t, []string{"only-here.png"}, listing.Files)
}

func TestRegistry_ListWithFallback_AllFail(t *testing.T) {
	reg := NewRegistry("data")
	reg.Register(NewFSProvider("data", filepath.Join(t.TempDir(), "gone")))

	_, _, err := reg.ListWithFallback(context.Background(), reg.Parse("sub"))
	assert.Error(t, err)
}

func trimAll(in []string, prefix string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, s[len(prefix):])
	}
	return out
}
