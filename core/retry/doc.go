// Package retry executes operations with exponential backoff, offline
// detection, and cooperative cancellation.
//
// Every network call made by the manifest sync engine and the download
// manager runs through this policy. Local filesystem and cache operations
// never do.
//
// # Semantics
//
//   - Before each attempt the context is checked; a cancelled context fails
//     immediately and is never retried.
//   - When the environment probe reports offline, the attempt fails with
//     ErrOffline but retry scheduling continues, so the operation recovers
//     once connectivity returns.
//   - ShouldRetry can veto retries for specific errors (authentication
//     failures, malformed server payloads).
//   - The per-attempt delay is min(InitialDelay * 2^attempt, MaxDelay), and
//     the wait itself aborts as soon as the context is cancelled.
package retry
