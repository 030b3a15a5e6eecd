package manifest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"catalog-sync/core/events"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manifestServer fakes the remote manifest store for engine tests.
type manifestServer struct {
	*httptest.Server

	plan       atomic.Value // string
	full       atomic.Value // string
	deltas     map[string]string
	planCalls  atomic.Int64
	fullCalls  atomic.Int64
	deltaCalls atomic.Int64
}

func newManifestServer(t *testing.T) *manifestServer {
	t.Helper()
	ms := &manifestServer{deltas: make(map[string]string)}
	ms.plan.Store(`{"mode":"deltas","latest":"h0","deltas":[]}`)
	ms.full.Store(`[]`)

	mux := http.NewServeMux()
	mux.HandleFunc("/asset-update", func(w http.ResponseWriter, r *http.Request) {
		ms.planCalls.Add(1)
		w.Write([]byte(ms.plan.Load().(string)))
	})
	mux.HandleFunc("/full.json", func(w http.ResponseWriter, r *http.Request) {
		ms.fullCalls.Add(1)
		w.Write([]byte(ms.full.Load().(string)))
	})
	mux.HandleFunc("/delta/", func(w http.ResponseWriter, r *http.Request) {
		ms.deltaCalls.Add(1)
		body, ok := ms.deltas[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	})

	ms.Server = httptest.NewServer(mux)
	t.Cleanup(ms.Close)
	return ms
}

func newTestEngine(t *testing.T, srv *manifestServer) (*Engine, *Store) {
	t.Helper()
	store := newTestStore(t)
	client := NewClient(srv.URL, srv.Client(), fastRetry(), zap.NewNop())
	engine := NewEngine(store, client, events.NewBus(), metrics.New(), zap.NewNop())
	return engine, store
}

func TestEngine_FullSync(t *testing.T) {
	srv := newManifestServer(t)
	srv.plan.Store(`{"mode":"full","latest":"h2","full":{"url":"` + srv.URL + `/full.json"}}`)
	srv.full.Store(`[{"path":"packs/a.png"},{"path":"packs/b.png","tier":"premium"}]`)

	engine, store := newTestEngine(t, srv)

	// Local state starts at h1.
	require.NoError(t, store.WriteMeta(context.Background(), IndexMeta{Kind: "asset", Latest: "h1"}))

	latest, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "h2", latest)

	meta, err := store.Meta(context.Background(), model.KindAsset)
	require.NoError(t, err)
	assert.Equal(t, "h2", meta.Latest)
	assert.EqualValues(t, 2, meta.Count, "count equals the full manifest's array length")
	assert.Equal(t, "h2", meta.ChunksLatest)
}

func TestEngine_NoOpShortCircuit(t *testing.T) {
	srv := newManifestServer(t)
	srv.plan.Store(`{"mode":"full","latest":"h2","full":{"url":"` + srv.URL + `/full.json"}}`)
	srv.full.Store(`[{"path":"packs/a.png"}]`)

	engine, store := newTestEngine(t, srv)

	_, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	engine.WaitForRebuilds()

	metaAfterFirst, err := store.Meta(context.Background(), model.KindAsset)
	require.NoError(t, err)
	fullCallsAfterFirst := srv.fullCalls.Load()

	// Second sync with no server-side change: plan fetch only, zero
	// storage mutations.
	latest, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	engine.WaitForRebuilds()

	assert.Equal(t, "h2", latest)
	assert.Equal(t, fullCallsAfterFirst, srv.fullCalls.Load(), "no manifest body fetch on no-op")

	metaAfterSecond, err := store.Meta(context.Background(), model.KindAsset)
	require.NoError(t, err)
	assert.Equal(t, metaAfterFirst, metaAfterSecond, "no-op must not touch persisted state")
}

func TestEngine_NoOpCatchesUpLaggingChunks(t *testing.T) {
	srv := newManifestServer(t)
	srv.plan.Store(`{"mode":"deltas","latest":"h1","deltas":[]}`)

	engine, store := newTestEngine(t, srv)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, model.KindAsset, []json.RawMessage{rawRecord(t, "a.png", nil)}, 0, nil))
	require.NoError(t, store.WriteMeta(ctx, IndexMeta{Kind: "asset", Latest: "h1", Count: 1, ChunksLatest: "h0"}))

	_, err := engine.Sync(ctx, model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	engine.WaitForRebuilds()

	meta, err := store.Meta(ctx, model.KindAsset)
	require.NoError(t, err)
	assert.Equal(t, "h1", meta.ChunksLatest, "lagging derived view must catch up")
}

func TestEngine_NoOpReusesPersistedCount(t *testing.T) {
	srv := newManifestServer(t)
	srv.plan.Store(`{"mode":"deltas","latest":"h1","deltas":[]}`)

	store, dbMock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"kind", "latest", "count", "built_at", "chunks_latest", "chunks_built_at"}).
		AddRow("asset", "h1", 3, now, "h1", now)
	dbMock.ExpectQuery("SELECT .+ FROM `index_meta` WHERE kind = ?").WillReturnRows(rows)

	bus := events.NewBus()
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	client := NewClient(srv.URL, srv.Client(), fastRetry(), zap.NewNop())
	engine := NewEngine(store, client, bus, metrics.New(), zap.NewNop())

	latest, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "h1", latest)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub:
			if done, ok := e.(events.SyncCompleted); ok {
				assert.True(t, done.NoOp)
				assert.EqualValues(t, 3, done.Count, "no-op reports the count already persisted")
				// The meta read above is the only query the no-op may
				// issue.
				assert.NoError(t, dbMock.ExpectationsWereMet())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for sync completion")
		}
	}
}

func TestEngine_DeltaSync(t *testing.T) {
	srv := newManifestServer(t)
	srv.deltas["/delta/1"] = `{"op":"put","path":"packs/a.png","record":{"path":"packs/a.png","width":1}}
{"op":"put","path":"packs/b.png","record":{"path":"packs/b.png"}}`
	srv.deltas["/delta/2"] = `{"op":"put","path":"packs/a.png","record":{"path":"packs/a.png","width":9}}
{"op":"delete","path":"packs/b.png"}`
	srv.plan.Store(`{"mode":"deltas","latest":"h2","deltas":[{"url":"` + srv.URL + `/delta/1"},{"url":"` + srv.URL + `/delta/2"}]}`)

	engine, store := newTestEngine(t, srv)
	ctx := context.Background()
	require.NoError(t, store.WriteMeta(ctx, IndexMeta{Kind: "asset", Latest: "h1", ChunksLatest: "h1"}))

	latest, err := engine.Sync(ctx, model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "h2", latest)

	records, err := store.Records(ctx, model.KindAsset)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "packs/a.png", records[0].FilePath)
	assert.Equal(t, 9, records[0].Width, "later delta overwrites earlier one")

	engine.WaitForRebuilds()
	meta, err := store.Meta(ctx, model.KindAsset)
	require.NoError(t, err)
	assert.Equal(t, "h2", meta.Latest)
	assert.Equal(t, "h2", meta.ChunksLatest, "background rebuild committed")
}

func TestEngine_DeltaOrderMatters(t *testing.T) {
	// D1 sets width=1, D2 overwrites with width=2. Applying [D1,D2] must
	// yield D2's value; the reversed order must differ.
	d1 := `{"op":"put","path":"a.png","record":{"path":"a.png","width":1}}`
	d2 := `{"op":"put","path":"a.png","record":{"path":"a.png","width":2}}`

	run := func(t *testing.T, first, second string) int {
		srv := newManifestServer(t)
		srv.deltas["/delta/1"] = first
		srv.deltas["/delta/2"] = second
		srv.plan.Store(`{"mode":"deltas","latest":"h1","deltas":[{"url":"` + srv.URL + `/delta/1"},{"url":"` + srv.URL + `/delta/2"}]}`)

		engine, store := newTestEngine(t, srv)
		_, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
		require.NoError(t, err)
		engine.WaitForRebuilds()

		records, err := store.Records(context.Background(), model.KindAsset)
		require.NoError(t, err)
		require.Len(t, records, 1)
		return records[0].Width
	}

	assert.Equal(t, 2, run(t, d1, d2))
	assert.Equal(t, 1, run(t, d2, d1))
}

func TestEngine_DeltaKeepsChunksMarkerUntilRebuild(t *testing.T) {
	srv := newManifestServer(t)
	srv.deltas["/delta/1"] = `{"op":"put","path":"a.png","record":{"path":"a.png"}}`
	srv.plan.Store(`{"mode":"deltas","latest":"h2","deltas":[{"url":"` + srv.URL + `/delta/1"}]}`)

	engine, store := newTestEngine(t, srv)
	ctx := context.Background()
	require.NoError(t, store.WriteMeta(ctx, IndexMeta{Kind: "asset", Latest: "h1", ChunksLatest: "h1"}))

	_, err := engine.Sync(ctx, model.KindAsset, SyncOptions{})
	require.NoError(t, err)
	engine.WaitForRebuilds()

	meta, err := store.Meta(ctx, model.KindAsset)
	require.NoError(t, err)
	// After the async rebuild the derived view is current again.
	assert.Equal(t, "h2", meta.ChunksLatest)
}

func TestEngine_UnknownPlanModeFatal(t *testing.T) {
	srv := newManifestServer(t)
	srv.plan.Store(`{"mode":"snapshot","latest":"h1"}`)

	engine, _ := newTestEngine(t, srv)
	_, err := engine.Sync(context.Background(), model.KindAsset, SyncOptions{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestEngine_CancelledPropagates(t *testing.T) {
	srv := newManifestServer(t)
	engine, _ := newTestEngine(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Sync(ctx, model.KindAsset, SyncOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, srv.planCalls.Load())
}
