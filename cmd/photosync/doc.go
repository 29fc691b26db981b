// Command photosync syncs albums from a remote photo library server to
// local storage. Runs are resumable: outcomes are recorded in a SQLite
// ledger so repeat invocations skip completed work and can retry failures.
package main
