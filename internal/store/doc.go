// Package store provides the SQLite-backed local persistent store for the
// fieldsync engine.
//
// The store owns six partitions:
//   - schedule_snapshots: cached schedule views keyed by (user, range),
//     plus a range-independent "latest" row per user
//   - today_snapshots: the current-day sub-snapshot keyed by user
//   - company_directory: the cached company list keyed by user
//   - pending_appointments: locally fabricated appointments awaiting
//     remote creation
//   - pending_mutations: queued state transitions awaiting replay
//   - pending_media + pending_media_blobs: captured media metadata and its
//     binary payload, stored under the same identifier
//
// # Critical Patterns
//
// Grouped writes: every write that touches more than one partition (a
// snapshot plus its same-day sub-snapshot, media metadata plus its blob,
// the rebind of all dependents from a local identifier to a remote one)
// runs in a single SQL transaction, so either both sides are visible or
// neither is.
//
// Additive schema: partitions are only ever added, never destructively
// migrated, so queued not-yet-synced user data survives upgrades. Schema
// version is tracked in PRAGMA user_version.
//
// Failure mode: if SQLite itself is unavailable, writes fail loudly and
// the error is surfaced to the caller. The store never drops data
// silently.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce metadata/blob integrity
package store
