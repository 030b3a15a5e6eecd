package inventory

import (
	"context"
	"strings"

	"catalog-sync/core/model"

	"go.uber.org/zap"
)

// KeySelector extracts the dedup key for a record. The default key is the
// trimmed, lowercased file path.
type KeySelector func(model.InventoryRecord) string

// DefaultKey is the standard dedup key.
func DefaultKey(r model.InventoryRecord) string {
	if k := r.Key(); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(r.ThumbnailURL))
}

// CollectOptions carries the per-collection callbacks. All callbacks are
// optional.
type CollectOptions struct {
	Kind model.Kind

	// KeySelector overrides the dedup key. Nil means DefaultKey.
	KeySelector KeySelector

	// OnCachedReady fires once after every folder's persisted index has
	// been read, before any streaming starts. The caller can render the
	// cached records immediately.
	OnCachedReady func(cached []model.InventoryRecord)

	// OnStreamProgress fires after each streamed batch with the running
	// total of streamed records.
	OnStreamProgress func(streamed int)

	// OnStreamFolderComplete fires after a folder's stream finishes and
	// its index is persisted.
	OnStreamFolderComplete func(folder string, count int)

	Scan ScanOptions
}

// Result is the outcome of one collection pass.
type Result struct {
	// CachedItems came from persisted folder indexes.
	CachedItems []model.InventoryRecord
	// LocalItems is the full deduped set, cached plus streamed.
	LocalItems []model.InventoryRecord
	// StreamedCount is the number of records seen during streaming,
	// before dedup.
	StreamedCount int
	// Cancelled marks a partial result cut short by context cancellation.
	Cancelled bool
}

// Collector assembles the local inventory: persisted folder indexes first,
// then a stream scan of any folder without one.
type Collector struct {
	store   *Store
	scanner *Scanner
	logger  *zap.Logger
}

// NewCollector creates a collector.
func NewCollector(store *Store, scanner *Scanner, logger *zap.Logger) *Collector {
	return &Collector{store: store, scanner: scanner, logger: logger}
}

// Collect reads cached indexes for every folder, reports them, then stream
// scans the folders that had none, persisting each folder's records on
// completion. Cancellation between folders or mid-stream returns the partial
// result with Cancelled set rather than an error.
func (c *Collector) Collect(ctx context.Context, folders []string, opts CollectOptions) (Result, error) {
	key := opts.KeySelector
	if key == nil {
		key = DefaultKey
	}

	var result Result
	seen := make(map[string]struct{})
	add := func(r model.InventoryRecord) bool {
		k := key(r)
		if k == "" {
			return false
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		result.LocalItems = append(result.LocalItems, r)
		return true
	}

	// Cached pass over every folder before any streaming, so callers can
	// show something immediately.
	var toStream []string
	for _, folder := range folders {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		cached, err := c.store.LoadFolder(ctx, folder)
		if err != nil {
			c.logger.Warn("Discarding unreadable folder index",
				zap.String("folder", folder), zap.Error(err))
			toStream = append(toStream, folder)
			continue
		}
		if cached == nil {
			toStream = append(toStream, folder)
			continue
		}
		for _, r := range cached {
			if add(r) {
				result.CachedItems = append(result.CachedItems, r)
			}
		}
	}

	if opts.OnCachedReady != nil {
		opts.OnCachedReady(result.CachedItems)
	}

	for _, folder := range toStream {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}

		var folderRecords []model.InventoryRecord
		_, err := c.scanner.Stream(ctx, folder, opts.Kind, func(_ context.Context, batch []model.InventoryRecord) error {
			for _, r := range batch {
				add(r)
			}
			folderRecords = append(folderRecords, batch...)
			result.StreamedCount += len(batch)
			if opts.OnStreamProgress != nil {
				opts.OnStreamProgress(result.StreamedCount)
			}
			return nil
		}, opts.Scan)
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			return result, err
		}

		if err := c.store.SaveFolder(ctx, folder, folderRecords); err != nil {
			// A failed persist leaves the folder to be streamed again
			// next time; the in-memory result is still complete.
			c.logger.Warn("Failed to persist folder index",
				zap.String("folder", folder), zap.Error(err))
		}
		if opts.OnStreamFolderComplete != nil {
			opts.OnStreamFolderComplete(folder, len(folderRecords))
		}
	}

	return result, nil
}
