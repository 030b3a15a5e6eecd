package inventory

import (
	"context"
	"strings"
	"time"

	"catalog-sync/core/model"
	"catalog-sync/core/storage"

	"go.uber.org/zap"
)

// Batch size and pacing bounds for a stream scan.
const (
	minBatchSize = 25
	maxBatchSize = 500
	maxSleep     = 50 * time.Millisecond
)

// ScanOptions controls one streaming traversal.
type ScanOptions struct {
	// BatchSize is clamped to [25, 500].
	BatchSize int
	// Sleep is the pacing pause between batches, clamped to [0, 50ms].
	// This is a deliberate backpressure mechanism so a large scan cannot
	// starve other work.
	Sleep time.Duration
}

// BatchFunc receives each flushed batch. Errors are logged and swallowed;
// they never abort the scan.
type BatchFunc func(ctx context.Context, batch []model.InventoryRecord) error

// Scanner streams a directory tree in bounded batches, filtering by file
// extension.
type Scanner struct {
	registry *storage.Registry
	logger   *zap.Logger
	exts     map[string]struct{}
}

// NewScanner creates a scanner with a case-insensitive extension allow-list.
func NewScanner(registry *storage.Registry, extensions []string, logger *zap.Logger) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = struct{}{}
	}
	return &Scanner{registry: registry, logger: logger, exts: exts}
}

// Stream walks folder breadth-first, emitting records through onBatch, and
// returns the total record count. The folder string may carry an explicit
// storage-provider prefix. Cancellation is checked at the top of the
// directory loop, after each listing, after each file, and after each
// pacing sleep.
func (s *Scanner) Stream(ctx context.Context, folder string, kind model.Kind, onBatch BatchFunc, opts ScanOptions) (int, error) {
	batchSize := opts.BatchSize
	if batchSize < minBatchSize {
		batchSize = minBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	sleep := opts.Sleep
	if sleep < 0 {
		sleep = 0
	}
	if sleep > maxSleep {
		sleep = maxSleep
	}

	root := s.registry.Parse(folder)
	queue := []storage.Location{root}
	visited := map[string]struct{}{root.String(): {}}

	var batch []model.InventoryRecord
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := onBatch(ctx, batch); err != nil {
			// Batch-handler failures must not kill the traversal.
			s.logger.Warn("Scan batch handler failed", zap.Error(err))
		}
		batch = nil

		if sleep > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}
		return ctx.Err()
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		loc := queue[0]
		queue = queue[1:]

		provider, listing, err := s.registry.ListWithFallback(ctx, loc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return total, ctxErr
			}
			// A directory that cannot be listed is skipped, not fatal.
			s.logger.Warn("Skipping unlistable directory",
				zap.String("location", loc.String()), zap.Error(err))
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		for _, dir := range listing.Dirs {
			child := storage.Location{Provider: provider.Name(), Path: dir}
			if _, seen := visited[child.String()]; seen {
				continue
			}
			visited[child.String()] = struct{}{}
			queue = append(queue, child)
		}

		for _, file := range listing.Files {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if !s.allowed(file) {
				continue
			}
			record, err := s.toRecord(kind, provider, file)
			if err != nil {
				s.logger.Debug("Skipping unconvertible file",
					zap.String("file", file), zap.Error(err))
				continue
			}
			batch = append(batch, record)
			total++

			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}

	// Trailing partial batch flushes regardless of size.
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func (s *Scanner) allowed(file string) bool {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return false
	}
	_, ok := s.exts[strings.ToLower(file[i+1:])]
	return ok
}

func (s *Scanner) toRecord(kind model.Kind, provider storage.Provider, file string) (model.InventoryRecord, error) {
	r, err := model.NewRecord(kind, model.SourceLocal, file)
	if err != nil {
		return model.InventoryRecord{}, err
	}
	r.Provider = provider.Name()
	return r, nil
}
