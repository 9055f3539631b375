package service

import (
	"context"
	"log/slog"
	"time"

	"janus/snapshot"
)

// StartSnapshotJob periodically captures every event, persists the
// snapshot and drops journal segments it covers. Failures skip the cycle;
// the journal keeps the system recoverable regardless.
func (s *Service) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: dir}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				walSeq, err := w.Write(ctx, s.eng, s.wal)
				if err != nil {
					s.log.Warn("snapshot failed", slog.Any("error", err))
					continue
				}
				if s.wal != nil {
					_ = s.wal.TruncateBefore(walSeq)
				}
				s.log.Info("snapshot written", slog.Uint64("wal_seq", walSeq))
			}
		}
	}()
}

// StartReclaimJob periodically advances the epoch and returns retired
// orders to the pool once no depth reader pins an older epoch.
func (s *Service) StartReclaimJob(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.eng.Reclaim(s.reader.Epoch())
			}
		}
	}()
}
