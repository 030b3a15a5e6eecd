package catalog

import (
	"context"
	"sync"

	"catalog-sync/core/config"
	"catalog-sync/core/events"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"
	"catalog-sync/feature/inventory"
	"catalog-sync/feature/manifest"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Collector produces the local record set.
type Collector interface {
	Collect(ctx context.Context, folders []string, opts inventory.CollectOptions) (inventory.Result, error)
}

// CloudIndex syncs and serves the persisted cloud records.
type CloudIndex interface {
	Sync(ctx context.Context, kind model.Kind, opts manifest.SyncOptions) (string, error)
	Records(ctx context.Context, kind model.Kind) ([]model.InventoryRecord, error)
}

// NewCloudIndex bundles a sync engine and its store into one CloudIndex.
func NewCloudIndex(engine *manifest.Engine, store *manifest.Store) CloudIndex {
	return &cloudIndex{engine: engine, store: store}
}

type cloudIndex struct {
	engine *manifest.Engine
	store  *manifest.Store
}

func (c *cloudIndex) Sync(ctx context.Context, kind model.Kind, opts manifest.SyncOptions) (string, error) {
	return c.engine.Sync(ctx, kind, opts)
}

func (c *cloudIndex) Records(ctx context.Context, kind model.Kind) ([]model.InventoryRecord, error) {
	return c.store.Records(ctx, kind)
}

// LocalPathFinder reports already-materialized local copies of cloud records.
type LocalPathFinder interface {
	Lookup(rel string) (string, bool)
}

// Options configures the catalog service.
type Options struct {
	// Kinds lists the catalog kinds to load. Empty means asset and token.
	Kinds []model.Kind
	// Folders supplies the configured local folders at load time.
	Folders func() []string
	// Selection supplies the current folder filter. Nil means no filter.
	Selection func() *model.FolderSelection
	// Enhance overrides the default thumbnail enhancement during merge.
	Enhance func(kept *model.InventoryRecord, cloud model.InventoryRecord) bool
}

// LoadResult is what one catalog load produced.
type LoadResult struct {
	Items   []model.InventoryRecord
	Version uint64
	// Partial marks a load whose local portion succeeded while the cloud
	// portion failed; Err carries the cloud error for logging.
	Partial bool
	Err     error
}

// Service is the process-wide shared catalog: merged items, a dirty flag, a
// monotonic version counter, and a single-flight load. Consumers hold a
// reference obtained at wiring time.
type Service struct {
	collector Collector
	cloud     CloudIndex
	finder    LocalPathFinder
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options

	group singleflight.Group

	mu      sync.Mutex
	items   []model.InventoryRecord
	dirty   bool
	version uint64
	stats   map[model.Kind][]FolderStats

	unsubscribe []func()
}

// NewService creates the catalog service. It starts dirty, so the first
// Load always runs the pipeline.
func NewService(collector Collector, cloud CloudIndex, finder LocalPathFinder, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	if len(opts.Kinds) == 0 {
		opts.Kinds = []model.Kind{model.KindAsset, model.KindToken}
	}
	if opts.Folders == nil {
		opts.Folders = func() []string { return nil }
	}
	return &Service{
		collector: collector,
		cloud:     cloud,
		finder:    finder,
		bus:       bus,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		dirty:     true,
		stats:     make(map[model.Kind][]FolderStats),
	}
}

// Load returns the merged catalog, serving the cached result when it is
// clean and coalescing concurrent loads into one pipeline run. A load that
// fails on the cloud side still succeeds with Partial set and local-only
// items; a load that fails locally returns the error and leaves the catalog
// dirty.
func (s *Service) Load(ctx context.Context) (LoadResult, error) {
	s.mu.Lock()
	if !s.dirty && s.items != nil {
		result := LoadResult{Items: s.items, Version: s.version}
		s.mu.Unlock()
		return result, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("load", func() (any, error) {
		return s.load(ctx)
	})
	if err != nil {
		s.metrics.CatalogLoads.WithLabelValues(metrics.ResultError).Inc()
		return LoadResult{}, err
	}
	return v.(LoadResult), nil
}

func (s *Service) load(ctx context.Context) (LoadResult, error) {
	// Marked dirty before any work so an interrupted load leaves the
	// catalog correctly flagged stale.
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()

	local, err := s.collectLocal(ctx)
	if err != nil {
		return LoadResult{}, err
	}

	cloud, cloudErr := s.collectCloud(ctx)
	if cloudErr != nil {
		s.logger.Warn("Cloud catalog unavailable, serving local-only", zap.Error(cloudErr))
	}

	merged, mergeStats := Merge(local, cloud, MergeOptions{OnEnhanceLocal: s.opts.Enhance})
	merged = s.applySelection(merged)

	s.mu.Lock()
	s.items = merged
	s.dirty = false
	s.version++
	s.stats = make(map[model.Kind][]FolderStats)
	result := LoadResult{
		Items:   merged,
		Version: s.version,
		Partial: cloudErr != nil,
		Err:     cloudErr,
	}
	s.mu.Unlock()

	s.logger.Info("Catalog loaded",
		zap.Uint64("version", result.Version),
		zap.Int("items", len(merged)),
		zap.Int("collisions", mergeStats.Collisions),
		zap.Int("enhanced", mergeStats.Enhanced),
		zap.Bool("partial", result.Partial))

	outcome := metrics.ResultOK
	if result.Partial {
		outcome = metrics.ResultPartial
	}
	s.metrics.CatalogLoads.WithLabelValues(outcome).Inc()
	s.metrics.CatalogItems.Set(float64(len(merged)))
	s.bus.Publish(events.CatalogLoaded{Version: result.Version, Items: len(merged), Partial: result.Partial})
	return result, nil
}

func (s *Service) collectLocal(ctx context.Context) ([]model.InventoryRecord, error) {
	result, err := s.collector.Collect(ctx, s.opts.Folders(), inventory.CollectOptions{
		Kind: model.KindAsset,
	})
	if err != nil {
		return nil, err
	}
	if result.Cancelled {
		return nil, context.Canceled
	}
	return result.LocalItems, nil
}

func (s *Service) collectCloud(ctx context.Context) ([]model.InventoryRecord, error) {
	var all []model.InventoryRecord
	for _, kind := range s.opts.Kinds {
		if _, err := s.cloud.Sync(ctx, kind, manifest.SyncOptions{}); err != nil {
			return nil, err
		}
		records, err := s.cloud.Records(ctx, kind)
		if err != nil {
			return nil, err
		}
		for i := range records {
			if s.finder == nil {
				continue
			}
			if local, ok := s.finder.Lookup(records[i].FilePath); ok {
				records[i].CachedLocalPath = local
			}
		}
		all = append(all, records...)
	}
	return all, nil
}

func (s *Service) applySelection(items []model.InventoryRecord) []model.InventoryRecord {
	if s.opts.Selection == nil {
		return items
	}
	selection := s.opts.Selection()
	if selection == nil || selection.Type != model.SelectionInclude {
		return items
	}
	kept := items[:0]
	for _, r := range items {
		if selection.Matches(r.DisplayPath) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Invalidate clears the catalog, bumps the version, drops the derived
// per-kind statistics, and notifies consumers to request their own reload.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.items = nil
	s.dirty = true
	s.version++
	s.stats = make(map[model.Kind][]FolderStats)
	version := s.version
	s.mu.Unlock()

	s.logger.Info("Catalog invalidated", zap.Uint64("version", version))
	s.bus.Publish(events.CatalogInvalidated{Version: version})
}

// CurrentVersion returns the monotonic catalog version.
func (s *Service) CurrentVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Items returns the cached merged set and whether it is clean.
func (s *Service) Items() ([]model.InventoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, !s.dirty && s.items != nil
}

// Stats returns the per-folder aggregates for kind, computed from the
// cached items and memoized until the next load or invalidation.
func (s *Service) Stats(kind model.Kind) []FolderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.stats[kind]; ok {
		return cached
	}
	stats := computeFolderStats(s.items, kind)
	s.stats[kind] = stats
	return stats
}

// BindConfig invalidates the catalog whenever a folder or cloud setting
// changes.
func (s *Service) BindConfig(w *config.Watcher) {
	for _, key := range []string{
		"folders",
		"folder_selection_type",
		"folder_include",
		"manifest_base_url",
	} {
		s.unsubscribe = append(s.unsubscribe, w.OnChange("sync", key, func(any) {
			s.Invalidate()
		}))
	}
}

// Close releases the configuration subscriptions.
func (s *Service) Close() {
	for _, u := range s.unsubscribe {
		u()
	}
	s.unsubscribe = nil
}
