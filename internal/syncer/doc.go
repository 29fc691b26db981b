// Package syncer coordinates album downloads: it partitions assets into
// skip and transfer sets using the resume ledger and local file state, runs
// transfers under a concurrency bound, and produces a per-album report.
//
// Per-asset lifecycle is strictly sequential: size check, local existence
// check, transfer, ledger update, progress update. No ordering holds across
// assets; backpressure comes only from the concurrency bound and the rate
// limiter.
package syncer
