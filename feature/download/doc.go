// Package download materializes remote catalog content into local storage.
//
// # Components
//
//   - Resolver: Turns a record into a fetchable URL. Free-tier paths are
//     deterministic public URLs built locally; premium paths go through the
//     signed-URL endpoint, memoized in URLCache.
//   - URLCache: TTL memoization of resolved signed URLs.
//   - Manager: Keeps a case-insensitive inventory of known local paths,
//     coalesces concurrent requests for the same artifact into one job,
//     downloads with retry and hash verification, and places bytes through
//     a storage provider. A best-effort background indexer pre-populates
//     the inventory when the provider supports cheap listings.
//
// Download failures surface to the caller; only the opportunistic index
// passes swallow errors.
package download
