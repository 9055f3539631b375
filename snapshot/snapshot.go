package snapshot

import (
	"time"

	"janus/engine"
)

type Snapshot struct {
	// WALSeq is the journal truncation bound; per-event replay coverage
	// lives in each capture.
	WALSeq  uint64
	Created time.Time
	Events  []engine.EventCapture
}
