// Package progress is the single source of truth for cross-run achievement
// state.
//
// Every mutation is flushed to disk before it returns, through a
// backup-then-atomic-replace sequence: the current file is copied into a
// timestamped backup, the new document is serialized to a temp file in the
// target directory, fsynced, and renamed over the target. A reader therefore
// always sees either the previous complete document or the new one, never a
// partial write.
//
// Corruption on load is recovered, not raised: the bad file is quarantined
// and the newest parsable backup restored, falling back to a fresh default
// document when no backup survives.
package progress
