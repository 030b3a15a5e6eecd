// Package model holds the canonical data types shared across features.
//
// The central type is InventoryRecord, the deduplicated catalog item that
// flows from the local folder scan and the cloud manifest into the merge
// stage. Records are validated once at construction (non-empty file path,
// tier defaulting to free) so downstream code never needs to null-check
// individual fields.
//
// FolderSelection models the user-chosen folder filter. It is recomputed
// against the currently-available folders rather than trusted blindly, so
// stale include entries silently drop out.
package model
