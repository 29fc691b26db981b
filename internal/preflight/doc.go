// Package preflight provides readiness checks for the directories and the
// remote API that a sync run depends on.
//
// The sync command runs RunAll before any transfer starts; a failed check
// aborts the run up front instead of failing mid-album. The CLI config
// command reuses individual check functions for diagnostic output.
package preflight
