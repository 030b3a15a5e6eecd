package manifest

import (
	"encoding/json"
	"strings"
	"time"

	"catalog-sync/core/model"
)

// Plan modes returned by the manifest update endpoint.
const (
	ModeFull   = "full"
	ModeDeltas = "deltas"
)

// SyncPlan is the server-provided update decision: replace everything, or
// apply an ordered list of deltas. One plan lives for one sync call.
type SyncPlan struct {
	Mode   string     `json:"mode"`
	Latest string     `json:"latest"`
	Full   *FullRef   `json:"full,omitempty"`
	Deltas []DeltaRef `json:"deltas,omitempty"`
}

// FullRef addresses a complete manifest snapshot.
type FullRef struct {
	URL string `json:"url"`
}

// DeltaRef addresses one delta body.
type DeltaRef struct {
	URL string `json:"url"`
}

// Delta operation names.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// DeltaOp is one newline-delimited operation record from a delta body.
type DeltaOp struct {
	Op     string          `json:"op"`
	Path   string          `json:"path"`
	Record json.RawMessage `json:"record,omitempty"`
}

// CloudRecord is the raw cloud-schema record carried by manifest bodies.
type CloudRecord struct {
	Path         string    `json:"path"`
	Tier         string    `json:"tier,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	GridWidth    int       `json:"grid_width,omitempty"`
	GridHeight   int       `json:"grid_height,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// ToInventoryRecord converts a cloud-schema record into the canonical form.
// Records without a path are rejected by model.NewRecord.
func (c CloudRecord) ToInventoryRecord(kind model.Kind) (model.InventoryRecord, error) {
	r, err := model.NewRecord(kind, model.SourceCloud, c.Path)
	if err != nil {
		return model.InventoryRecord{}, err
	}
	if strings.EqualFold(c.Tier, string(model.TierPremium)) {
		r.Tier = model.TierPremium
	}
	r.Width = c.Width
	r.Height = c.Height
	r.GridWidth = c.GridWidth
	r.GridHeight = c.GridHeight
	r.FileSize = c.FileSize
	r.ContentType = c.ContentType
	r.ContentHash = c.ContentHash
	r.LastModified = c.LastModified
	r.ThumbnailURL = c.ThumbnailURL
	return r, nil
}
