package model

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Kind classifies what a catalog record represents.
type Kind string

const (
	// KindAsset is an image or video asset file.
	KindAsset Kind = "asset"
	// KindToken is a metadata token record shaped like an asset.
	KindToken Kind = "token"
)

// Source identifies where a record was discovered.
type Source string

const (
	// SourceLocal marks records found by scanning configured folders.
	SourceLocal Source = "local"
	// SourceCloud marks records produced by the remote manifest.
	SourceCloud Source = "cloud"
)

// Tier is the content access class.
type Tier string

const (
	// TierFree content resolves to predictable public URLs.
	TierFree Tier = "free"
	// TierPremium content requires an authenticated signed URL.
	TierPremium Tier = "premium"
)

// InventoryRecord is the canonical catalog item. Records are created by a
// folder scan (local) or a manifest listing (cloud) and discarded on every
// full resynchronization cycle.
type InventoryRecord struct {
	Kind   Kind   `json:"kind"`
	Source Source `json:"source"`

	// Provider names the storage provider that served a locally scanned
	// record. Cloud records leave it empty.
	Provider string `json:"provider,omitempty"`

	// FilePath is the full stored path. It is never empty for a record
	// that reaches the merge stage.
	FilePath string `json:"file_path"`

	// Filename is the base name derived from FilePath.
	Filename string `json:"filename"`

	// DisplayPath is the containing folder, used for grouping and stats.
	DisplayPath string `json:"display_path"`

	// Tier defaults to free when the source data carries none.
	Tier Tier `json:"tier"`

	Width      int `json:"width,omitempty"`
	Height     int `json:"height,omitempty"`
	GridWidth  int `json:"grid_width,omitempty"`
	GridHeight int `json:"grid_height,omitempty"`

	FileSize     int64     `json:"file_size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	// ThumbnailURL holds cloud-derived display data. The merge stage may
	// substitute this onto a kept local record.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// CachedLocalPath is attached when a previously downloaded copy of a
	// cloud record is discovered in local storage.
	CachedLocalPath string `json:"cached_local_path,omitempty"`
}

// NewRecord constructs a validated record. FilePath must be non-empty;
// Filename and DisplayPath are derived when absent and Tier defaults to free.
func NewRecord(kind Kind, source Source, filePath string) (InventoryRecord, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return InventoryRecord{}, fmt.Errorf("inventory record requires a file path")
	}
	r := InventoryRecord{
		Kind:        kind,
		Source:      source,
		FilePath:    filePath,
		Filename:    path.Base(filePath),
		DisplayPath: path.Dir(filePath),
		Tier:        TierFree,
	}
	if r.DisplayPath == "." {
		r.DisplayPath = ""
	}
	return r, nil
}

// Key returns the default dedup key: the trimmed, lowercased file path.
func (r InventoryRecord) Key() string {
	return strings.ToLower(strings.TrimSpace(r.FilePath))
}

// Ext returns the lowercased file extension without the leading dot.
func (r InventoryRecord) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(r.Filename), "."))
}

// HasLocalCopy reports whether a local materialization of this record is known.
func (r InventoryRecord) HasLocalCopy() bool {
	return r.Source == SourceLocal || r.CachedLocalPath != ""
}
