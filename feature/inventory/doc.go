// Package inventory discovers the local side of the catalog.
//
// # Components
//
//   - Scanner: Streams a folder tree breadth-first in bounded, paced batches,
//     filtering by an extension allow-list. Unlistable directories and
//     unconvertible files are skipped, never fatal.
//   - Store: Persists each scanned folder's records so the next collection
//     can serve them without re-walking the tree.
//   - Collector: Runs the cached pass over every configured folder first,
//     reports those records immediately, then stream scans the folders
//     without a persisted index.
//
// Cancellation mid-collection yields a partial result flagged Cancelled
// rather than an error, so callers can render whatever was gathered.
package inventory
