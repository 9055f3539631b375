// Package snapshot persists and restores point-in-time engine state.
//
// A snapshot is a set of per-event captures taken on each event's owning
// worker, so every capture is internally consistent without locks. The
// write-ahead sequence recorded alongside lets the journal drop segments
// the snapshot already covers, and lets replay skip to the uncovered
// suffix on restart.
//
// The Reader type is a thin adapter over memory.ReaderEpoch for callers
// that walk live book state directly (depth queries); it only marks
// where a read begins and ends. Reclamation is handled elsewhere.
package snapshot
