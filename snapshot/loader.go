package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"janus/engine"
)

// Load reads the snapshot under dir. A missing snapshot is not an error;
// the caller falls back to a full journal replay.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, "snapshot.bin"))
	if err != nil {
		return nil, nil // snapshot optional
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Restore rebuilds engine state from a snapshot. Must run before Start
// and before journal replay; replay then skips, per event, the records
// each capture already reflects.
func Restore(s *Snapshot, eng *engine.Engine) error {
	if s == nil {
		return nil
	}
	for _, cap := range s.Events {
		if err := eng.RestoreEvent(cap); err != nil {
			return err
		}
	}
	return nil
}
