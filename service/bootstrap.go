package service

import (
	"log/slog"

	"janus/engine"
	"janus/snapshot"
)

/*
Bootstrap rebuilds engine state on startup.

Order matters:
 1. load and restore the snapshot, if one exists
 2. replay the journal suffix the snapshot does not cover
 3. only then Start the engine and accept traffic

The exit path (outbox) is never replayed here; the broadcaster resumes
it independently from pebble.
*/
func Bootstrap(eng *engine.Engine, walDir, snapDir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	var afterSeq uint64

	snap, err := snapshot.Load(snapDir)
	if err != nil {
		return err
	}
	if snap != nil {
		if err := snapshot.Restore(snap, eng); err != nil {
			return err
		}
		afterSeq = snap.WALSeq
		log.Info("snapshot restored",
			slog.Uint64("wal_seq", snap.WALSeq),
			slog.Int("events", len(snap.Events)),
			slog.Time("created", snap.Created))
	}

	lastSeq, err := eng.Replay(walDir, afterSeq)
	if err != nil {
		return err
	}
	log.Info("bootstrap complete", slog.Uint64("last_seq", lastSeq))
	return nil
}

// ScheduleDeadlines re-arms close deadlines for every restored event.
// Call after Bootstrap, before serving.
func (s *Service) ScheduleDeadlines() {
	if s.coord == nil {
		return
	}
	for _, eventID := range s.eng.Events() {
		if cfg, ok := s.eng.EventConfigFor(eventID); ok {
			s.coord.Schedule(eventID, cfg.CloseDeadline)
		}
	}
}
