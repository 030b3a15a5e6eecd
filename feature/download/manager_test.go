package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catalog-sync/core/events"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"
	"catalog-sync/core/storage"
	"catalog-sync/core/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, root string, opts Options) (*Manager, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	provider := storage.NewFSProvider("data", root)
	m := NewManager(provider, nil, fastRetry(), bus, metrics.New(), zap.NewNop(), opts)
	return m, bus
}

func byteServer(t *testing.T, body []byte, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assetRecord(t *testing.T, path string) model.InventoryRecord {
	t.Helper()
	r, err := model.NewRecord(model.KindAsset, model.SourceCloud, path)
	require.NoError(t, err)
	return r
}

func TestManager_DirectURLPolicyForFreeTier(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), Options{DirectURLFree: true})

	got, err := m.EnsureLocal(context.Background(), assetRecord(t, "packs/a.png"), "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", got)
	assert.Zero(t, m.InventorySize(), "no local copy is made")
}

func TestManager_DownloadPlacesFile(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	srv := byteServer(t, []byte("image-bytes"), &calls)
	m, bus := newTestManager(t, root, Options{})

	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	got, err := m.EnsureLocal(context.Background(), assetRecord(t, "packs/deep/a.png"), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	data, err := os.ReadFile(filepath.Join(root, "packs", "deep", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, filepath.Join(root, "packs", "deep", "a.png"), got)

	var stages []events.DownloadStage
	var completed bool
	deadline := time.After(2 * time.Second)
	for !completed {
		select {
		case e := <-sub:
			switch ev := e.(type) {
			case events.DownloadProgress:
				stages = append(stages, ev.Stage)
			case events.DownloadCompleted:
				assert.Equal(t, got, ev.LocalPath)
				completed = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for download events")
		}
	}
	assert.Equal(t, []events.DownloadStage{
		events.StageStart, events.StageFetch, events.StagePrepare,
		events.StageUpload, events.StageComplete,
	}, stages)
}

func TestManager_CoalescesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte("shared"))
	}))
	t.Cleanup(srv.Close)

	m, _ := newTestManager(t, t.TempDir(), Options{})
	item := assetRecord(t, "packs/a.png")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureLocal(ctx, item, srv.URL)
		}(i)
	}
	// Let both goroutines reach the coalescing point before the fetch
	// completes.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), calls.Load(), "exactly one underlying fetch")
}

func TestManager_HashMismatchIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := byteServer(t, []byte("corrupted"), &calls)
	m, _ := newTestManager(t, t.TempDir(), Options{})

	sum := sha256.Sum256([]byte("expected"))
	item := assetRecord(t, "packs/a.png")
	item.ContentHash = hex.EncodeToString(sum[:])

	_, err := m.EnsureLocal(context.Background(), item, srv.URL)
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.Equal(t, int32(1), calls.Load(), "integrity failures must not be retried")
}

func TestManager_HashVerificationPasses(t *testing.T) {
	body := []byte("verified-bytes")
	srv := byteServer(t, body, nil)
	m, _ := newTestManager(t, t.TempDir(), Options{})

	sum := sha256.Sum256(body)
	item := assetRecord(t, "packs/a.png")
	item.ContentHash = hex.EncodeToString(sum[:])

	_, err := m.EnsureLocal(context.Background(), item, srv.URL)
	require.NoError(t, err)
}

func TestManager_CreatesDirectorySegmentsInOrder(t *testing.T) {
	srv := byteServer(t, []byte("bytes"), nil)

	provider := new(mocks.Provider)
	provider.On("List", mock.Anything, "a/b").Return(nil, fmt.Errorf("not found"))
	provider.On("EnsureDir", mock.Anything, "a").Return(nil).Once()
	provider.On("EnsureDir", mock.Anything, "a/b").Return(nil).Once()
	provider.On("Upload", mock.Anything, "a/b/c.png", []byte("bytes"), "image/png").
		Return("stored/a/b/c.png", nil)

	m := NewManager(provider, nil, fastRetry(), events.NewBus(), metrics.New(), zap.NewNop(), Options{})
	got, err := m.EnsureLocal(context.Background(), assetRecord(t, "a/b/c.png"), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "stored/a/b/c.png", got)
	provider.AssertExpectations(t)
}

func TestManager_TargetedListingFindsOutOfBandFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "packs", "a.png"), []byte("x"), 0o644))

	var calls atomic.Int32
	srv := byteServer(t, []byte("never"), &calls)
	m, _ := newTestManager(t, root, Options{})

	got, err := m.EnsureLocal(context.Background(), assetRecord(t, "packs/a.png"), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "packs", "a.png"), got,
		"a listed file resolves to the same address form an upload would")
	assert.Zero(t, calls.Load(), "a file already in place must not be downloaded")
}

func TestManager_ListingDiscoveryMatchesDownloadAddress(t *testing.T) {
	root := t.TempDir()
	srv := byteServer(t, []byte("x"), nil)

	m, _ := newTestManager(t, root, Options{})
	downloaded, err := m.EnsureLocal(context.Background(), assetRecord(t, "packs/a.png"), srv.URL)
	require.NoError(t, err)

	// A fresh manager finds the placed file by listing; the address must
	// match what the download returned.
	fresh, _ := newTestManager(t, root, Options{})
	found, err := fresh.EnsureLocal(context.Background(), assetRecord(t, "packs/a.png"), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, downloaded, found)
}

func TestManager_CachedLocalPathShortCircuits(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), Options{})

	item := assetRecord(t, "packs/a.png")
	item.CachedLocalPath = "data:packs/a.png"

	got, err := m.EnsureLocal(context.Background(), item, "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, "data:packs/a.png", got)
}

func TestManager_KeyVariantsTolerateEscaping(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), Options{})
	m.Register("packs/My Pic.png", "/local/packs/my pic.png")

	got, ok := m.lookup("packs/my%20pic.png")
	assert.True(t, ok)
	assert.Equal(t, "/local/packs/my pic.png", got)
}

func TestManager_BackgroundIndex(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a.png", "sub/b.png", "sub/deep/c.png"} {
		abs := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte("x"), 0o644))
	}
	m, _ := newTestManager(t, root, Options{IndexPause: time.Millisecond})

	m.BackgroundIndex(context.Background())

	local, ok := m.lookup("sub/deep/c.png")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "sub", "deep", "c.png"), local)
	_, ok = m.lookup("a.png")
	assert.True(t, ok)
}

func TestManager_BackgroundIndexRespectsCap(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644))
	}
	m, _ := newTestManager(t, root, Options{MaxIndexed: 1, IndexPause: time.Millisecond})

	m.BackgroundIndex(context.Background())
	assert.Equal(t, 1, m.indexed)
}
