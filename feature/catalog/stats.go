package catalog

import (
	"sort"

	"catalog-sync/core/model"
)

// FolderStats aggregates the merged records of one display folder.
type FolderStats struct {
	Path  string `json:"path"`
	Total int    `json:"total"`
	Local int    `json:"local"`
	Cloud int    `json:"cloud"`
	Bytes int64  `json:"bytes"`
}

// computeFolderStats derives per-folder aggregates for one kind, sorted by
// folder path.
func computeFolderStats(items []model.InventoryRecord, kind model.Kind) []FolderStats {
	byPath := make(map[string]*FolderStats)
	for _, r := range items {
		if r.Kind != kind {
			continue
		}
		s, ok := byPath[r.DisplayPath]
		if !ok {
			s = &FolderStats{Path: r.DisplayPath}
			byPath[r.DisplayPath] = s
		}
		s.Total++
		if r.Source == model.SourceLocal {
			s.Local++
		} else {
			s.Cloud++
		}
		s.Bytes += r.FileSize
	}

	stats := make([]FolderStats, 0, len(byPath))
	for _, s := range byPath {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })
	return stats
}
