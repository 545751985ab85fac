// Package logging is intentionally small: a handful of typed Attr
// constructors, the field-name constants every component shares, and a
// console/JSON handler pair. It does not attempt log archival, retention,
// or session management — the match engine is a library invoked by a thin
// CLI, not a long-running daemon with its own log lifecycle.
package logging
