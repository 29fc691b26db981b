// Package ledger persists per-asset download outcomes in SQLite so repeat
// runs can skip completed work and resume failed items.
//
// The ledger keeps at most one row per asset: every terminal outcome
// overwrites the previous one. Rows are the sole source of truth for
// "already downloaded" and "previously failed" queries; they are removed
// only by retention cleanup or a restore from backup.
package ledger
