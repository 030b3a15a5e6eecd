// Package catalog merges the local and cloud record sets and serves the
// result as a process-wide shared cache.
//
// # Components
//
//   - Merge: Deterministic dedup of local and cloud records with a ranked
//     collision policy (local beats cloud-with-local-copy beats cloud, then
//     extension rank, then recency) and optional thumbnail enhancement of
//     kept local records.
//   - Service: The shared catalog. Holds the merged items, a dirty flag and
//     a monotonic version, coalesces concurrent loads into one pipeline run,
//     degrades to local-only partial results when the cloud side fails, and
//     invalidates on relevant configuration changes.
//   - Handler: HTTP access to the catalog, its per-folder statistics, and a
//     manual refresh.
package catalog
