package snapshot

import "janus/infra/memory"

// Reader brackets a direct walk of live book state. It is a thin adapter
// over memory.ReaderEpoch; its only job is to mark where a read begins
// and ends so reclamation holds off until the walk is done.
type Reader struct {
	epoch *memory.ReaderEpoch
}

func NewReader() *Reader {
	return &Reader{epoch: memory.NewReaderEpoch()}
}

// Begin marks the start of a consistent read.
func (r *Reader) Begin() {
	r.epoch.Enter()
}

// End marks the end of a read.
func (r *Reader) End() {
	r.epoch.Exit()
}

// Epoch exposes the underlying epoch for reclaimers.
func (r *Reader) Epoch() *memory.ReaderEpoch {
	return r.epoch
}
