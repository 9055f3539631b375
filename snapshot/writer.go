package snapshot

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"janus/engine"
	"janus/infra/wal/entry"
)

type Writer struct {
	Dir string
}

// Write captures every open event and persists the snapshot atomically.
//
// Replay coverage is tracked per event: each capture carries the last
// journal sequence its worker applied, and boot replay skips exactly
// those records. The global WAL sequence recorded here is read before
// the first capture and bounds journal truncation only: a record at or
// below it was applied, and so captured, by its worker before that
// worker served its capture, so dropping segments up to WALSeq loses
// nothing.
func (w *Writer) Write(ctx context.Context, eng *engine.Engine, wal *entry.WAL) (uint64, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return 0, err
	}

	var walSeq uint64
	if wal != nil {
		walSeq = wal.Current()
	}

	s := Snapshot{
		WALSeq:  walSeq,
		Created: time.Now(),
	}
	for _, eventID := range eng.Events() {
		cap, err := eng.Capture(ctx, eventID)
		if err != nil {
			return 0, err
		}
		s.Events = append(s.Events, cap)
	}

	path := filepath.Join(w.Dir, "snapshot.bin")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return walSeq, nil
}
