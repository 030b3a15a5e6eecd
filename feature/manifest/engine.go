package manifest

import (
	"context"
	"sync"
	"time"

	"catalog-sync/core/events"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"

	"go.uber.org/zap"
)

// SyncOptions controls one sync call.
type SyncOptions struct {
	// ProgressBatch is the full-replace progress granularity.
	ProgressBatch int
	// OnProgress receives manifest rebuild progress.
	OnProgress func(done, total int)
}

// Engine synchronizes the local persisted index against the remote manifest
// store using the full/delta protocol.
type Engine struct {
	store   *Store
	client  *Client
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	rebuilds sync.WaitGroup
}

// NewEngine creates a sync engine.
func NewEngine(store *Store, client *Client, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		client:  client,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Sync brings the persisted index for kind up to date and returns the new
// latest hash. Callers are expected to fall back to whatever was already
// persisted when it fails.
func (e *Engine) Sync(ctx context.Context, kind model.Kind, opts SyncOptions) (string, error) {
	start := time.Now()
	e.bus.Publish(events.SyncStarted{Kind: string(kind)})

	latest, count, noop, err := e.sync(ctx, kind, opts)
	if err != nil {
		e.bus.Publish(events.SyncFailed{Kind: string(kind), Err: err})
		e.metrics.SyncRuns.WithLabelValues(string(kind), metrics.ResultError).Inc()
		return "", err
	}

	e.bus.Publish(events.SyncCompleted{Kind: string(kind), Latest: latest, Count: count, NoOp: noop})
	result := metrics.ResultOK
	if noop {
		result = metrics.ResultNoOp
	}
	e.metrics.SyncRuns.WithLabelValues(string(kind), result).Inc()
	e.metrics.SyncDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	return latest, nil
}

func (e *Engine) sync(ctx context.Context, kind model.Kind, opts SyncOptions) (latest string, count int64, noop bool, err error) {
	meta, err := e.store.Meta(ctx, kind)
	if err != nil {
		return "", 0, false, err
	}

	plan, err := e.client.FetchPlan(ctx, string(kind), meta.Latest)
	if err != nil {
		return "", 0, false, err
	}

	// No-op short-circuit: already current. Repeated syncs must do no
	// storage work beyond the plan fetch, except catching up a derived
	// view that lags the primary hash. The persisted count is already in
	// hand, so it is not re-queried.
	if plan.Latest == meta.Latest && (plan.Mode == ModeFull || len(plan.Deltas) == 0) {
		if meta.ChunksLatest != meta.Latest {
			e.scheduleRebuild(kind, meta.Latest)
		}
		return meta.Latest, meta.Count, true, nil
	}

	switch plan.Mode {
	case ModeFull:
		count, err = e.applyFull(ctx, kind, plan, opts)
	case ModeDeltas:
		count, err = e.applyDeltas(ctx, kind, meta, plan, opts)
	}
	if err != nil {
		return "", 0, false, err
	}
	return plan.Latest, count, false, nil
}

// applyFull replaces the whole index from a manifest snapshot and returns
// the new entry count.
func (e *Engine) applyFull(ctx context.Context, kind model.Kind, plan *SyncPlan, opts SyncOptions) (int64, error) {
	records, err := e.client.FetchFull(ctx, plan.Full.URL)
	if err != nil {
		return 0, err
	}

	onProgress := func(done, total int) {
		if opts.OnProgress != nil {
			opts.OnProgress(done, total)
		}
		e.bus.Publish(events.SyncProgress{Kind: string(kind), Done: done, Total: total})
	}
	if err := e.store.ReplaceAll(ctx, kind, records, opts.ProgressBatch, onProgress); err != nil {
		return 0, err
	}

	count, err := e.store.Count(ctx, kind)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	err = e.store.WriteMeta(ctx, IndexMeta{
		Kind:          string(kind),
		Latest:        plan.Latest,
		Count:         count,
		BuiltAt:       now,
		ChunksLatest:  plan.Latest,
		ChunksBuiltAt: now,
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyDeltas fetches each delta in order and applies its operations in
// line order. The derived sorted view keeps its previous marker and is
// rebuilt asynchronously afterwards.
func (e *Engine) applyDeltas(ctx context.Context, kind model.Kind, meta IndexMeta, plan *SyncPlan, opts SyncOptions) (int64, error) {
	for i, ref := range plan.Deltas {
		ops, err := e.client.FetchDelta(ctx, ref.URL)
		if err != nil {
			// A dropped delta would corrupt the index; propagate.
			return 0, err
		}
		for _, op := range ops {
			if err := e.store.ApplyDelta(ctx, kind, op); err != nil {
				return 0, err
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(plan.Deltas))
		}
	}

	count, err := e.store.Count(ctx, kind)
	if err != nil {
		return 0, err
	}
	if err := e.store.WriteMeta(ctx, IndexMeta{
		Kind:    string(kind),
		Latest:  plan.Latest,
		Count:   count,
		BuiltAt: time.Now(),
		// The derived view is allowed to lag; keep the previous marker
		// until the background rebuild commits.
		ChunksLatest:  meta.ChunksLatest,
		ChunksBuiltAt: meta.ChunksBuiltAt,
	}); err != nil {
		return 0, err
	}

	e.scheduleRebuild(kind, plan.Latest)
	return count, nil
}

// scheduleRebuild regenerates the derived view in the background. The store
// discards the result if the index hash moved on before commit.
func (e *Engine) scheduleRebuild(kind model.Kind, latest string) {
	e.rebuilds.Add(1)
	go func() {
		defer e.rebuilds.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := e.store.RebuildChunks(ctx, kind, latest); err != nil {
			e.logger.Warn("Background chunk rebuild failed",
				zap.String("kind", string(kind)), zap.Error(err))
		}
	}()
}

// WaitForRebuilds blocks until all scheduled background rebuilds finish.
// Used on shutdown and in tests.
func (e *Engine) WaitForRebuilds() {
	e.rebuilds.Wait()
}
