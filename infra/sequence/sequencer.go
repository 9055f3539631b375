package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic IDs. One instance is owned per
// event and assigns both order IDs and arrival sequences; a separate
// instance inside the WAL orders records globally. It is deterministic
// and replay-safe.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer resuming after start.
// Fresh event -> start = 0. After replay -> start = last replayed seq.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the sequencer to a specific value. Only used after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
