// Package manifest synchronizes a locally persisted catalog index against a
// remotely hosted, versioned manifest store.
//
// The protocol negotiates full-replace versus delta-apply with content
// hashes: the engine sends the locally persisted hash as a cursor, and the
// server answers with either a complete snapshot URL or an ordered list of
// delta bodies. A sync that is already current short-circuits after the plan
// fetch and touches no storage.
//
// # Ordering and atomicity
//
// Full-replace runs in one database transaction, so readers see either the
// old complete index or the new one, never a partial state. Delta bodies
// apply strictly in list order and, within a body, in line order. A
// reordered delta would corrupt the index, so per-delta failures propagate
// after retry exhaustion instead of being skipped.
//
// # Derived view
//
// A secondary, re-sorted chunk representation of the index is maintained
// asynchronously and allowed to lag the primary hash. Rebuilds are tied to
// the hash they were scheduled for; a rebuild that loses the race with a
// newer sync is discarded at commit time.
package manifest
