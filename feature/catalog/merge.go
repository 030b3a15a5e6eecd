package catalog

import (
	"fmt"
	"strings"

	"catalog-sync/core/model"
)

// MergeStats reports what happened during one merge for observability.
type MergeStats struct {
	Local      int
	Cloud      int
	Collisions int
	Enhanced   int
}

// MergeOptions customizes the merge. All fields are optional.
type MergeOptions struct {
	// Key extracts the dedup key. Nil means the record's default key.
	Key func(model.InventoryRecord) string

	// ChoosePreferred resolves a key collision. Nil means the default
	// ranking. It must be a total order: swapping the arguments yields
	// the same winner.
	ChoosePreferred func(a, b model.InventoryRecord) model.InventoryRecord

	// OnEnhanceLocal may substitute cloud-derived display data onto a
	// kept local record. It reports whether it changed the record.
	OnEnhanceLocal func(kept *model.InventoryRecord, cloud model.InventoryRecord) bool
}

// Merge combines local and cloud record sets into one deduplicated slice.
// Local records are inserted first; colliding cloud records go through
// ChoosePreferred. When the kept record is local, the cloud record may still
// contribute display data via OnEnhanceLocal. Output order is insertion
// order of keys, so the result is deterministic for a fixed input.
func Merge(local, cloud []model.InventoryRecord, opts MergeOptions) ([]model.InventoryRecord, MergeStats) {
	key := opts.Key
	if key == nil {
		key = model.InventoryRecord.Key
	}
	prefer := opts.ChoosePreferred
	if prefer == nil {
		prefer = ChoosePreferred
	}
	enhance := opts.OnEnhanceLocal
	if enhance == nil {
		enhance = EnhanceThumbnail
	}

	stats := MergeStats{Local: len(local), Cloud: len(cloud)}
	index := make(map[string]int, len(local)+len(cloud))
	merged := make([]model.InventoryRecord, 0, len(local)+len(cloud))

	insert := func(r model.InventoryRecord) {
		k := key(r)
		if k == "" {
			return
		}
		i, exists := index[k]
		if !exists {
			index[k] = len(merged)
			merged = append(merged, r)
			return
		}

		stats.Collisions++
		kept := prefer(merged[i], r)
		loser := r
		if kept == r {
			loser = merged[i]
		}
		merged[i] = kept

		if merged[i].Source == model.SourceLocal && loser.Source == model.SourceCloud {
			if enhance(&merged[i], loser) {
				stats.Enhanced++
			}
		}
	}

	for _, r := range local {
		insert(r)
	}
	for _, r := range cloud {
		insert(r)
	}

	return merged, stats
}

// ChoosePreferred is the default collision ranking: source rank first
// (local beats cloud-with-local-copy beats cloud), then extension rank
// (webp beats png beats jpg), then the more recent modification time.
// Full-rank ties fall back to a stable field-by-field comparison so the
// winner never depends on argument order.
func ChoosePreferred(a, b model.InventoryRecord) model.InventoryRecord {
	if ra, rb := sourceRank(a), sourceRank(b); ra != rb {
		if ra > rb {
			return a
		}
		return b
	}
	if ra, rb := extRank(a), extRank(b); ra != rb {
		if ra > rb {
			return a
		}
		return b
	}
	if !a.LastModified.Equal(b.LastModified) {
		if a.LastModified.After(b.LastModified) {
			return a
		}
		return b
	}
	if a == b {
		return a
	}
	if tieKey(a) <= tieKey(b) {
		return a
	}
	return b
}

// tieKey discriminates records that tie on every rank. Same-key records
// share a path modulo case, so the comparison must reach every field that
// can still differ. LastModified is excluded; unequal timestamps are
// decided before this point.
func tieKey(r model.InventoryRecord) string {
	return strings.Join([]string{
		r.FilePath,
		string(r.Kind),
		string(r.Source),
		string(r.Tier),
		r.Provider,
		r.ThumbnailURL,
		r.CachedLocalPath,
		r.ContentHash,
		r.ContentType,
		fmt.Sprintf("%dx%d %dx%d %d", r.Width, r.Height, r.GridWidth, r.GridHeight, r.FileSize),
	}, "\x00")
}

// EnhanceThumbnail is the default enhancement: a kept local record adopts
// the cloud record's thumbnail when it has none of its own.
func EnhanceThumbnail(kept *model.InventoryRecord, cloud model.InventoryRecord) bool {
	if kept.ThumbnailURL == "" && cloud.ThumbnailURL != "" {
		kept.ThumbnailURL = cloud.ThumbnailURL
		return true
	}
	return false
}

func sourceRank(r model.InventoryRecord) int {
	switch {
	case r.Source == model.SourceLocal:
		return 3
	case r.CachedLocalPath != "":
		return 2
	default:
		return 1
	}
}

func extRank(r model.InventoryRecord) int {
	switch r.Ext() {
	case "webp":
		return 3
	case "png":
		return 2
	case "jpg", "jpeg":
		return 1
	default:
		return 0
	}
}
