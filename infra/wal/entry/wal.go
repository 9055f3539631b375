package entry

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"janus/infra/sequence"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

const defaultSegmentSize = 2 * 1024 * 1024

// WAL is the segmented entry journal. Every accepted command is appended
// before it mutates a book, so replay rebuilds identical state. Appends
// come from all event workers; the internal lock makes file order equal
// sequence order.
type WAL struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	current  *segment
	segIndex int
	seq      *sequence.Sequencer
}

func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	segIndex := lastSegmentIndex(cfg.Dir)
	seg, err := openSegment(cfg.Dir, segIndex)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: segIndex,
		seq:      sequence.New(0),
	}, nil
}

// ResumeAfter moves the internal sequencer past the last replayed record.
// Must be called after Replay and before the first Append.
func (w *WAL) ResumeAfter(lastSeq uint64) {
	w.seq.Reset(lastSeq)
}

// Append journals one record and returns its assigned sequence.
//
// Frame: [len:4][crc:4][protowire body], little-endian.
func (w *WAL) Append(t RecordType, event uint64, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := &Record{
		Type:  t,
		Seq:   w.seq.Next(),
		Time:  time.Now().UnixNano(),
		Event: event,
		Data:  data,
	}
	body := rec.marshal()

	buf := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], checksum(body))
	copy(buf[8:], body)

	if err := w.current.append(buf); err != nil {
		return 0, err
	}

	if w.current.offset >= w.segSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	return rec.Seq, nil
}

// Current returns the last assigned sequence. Any record at or below it
// has already been applied by its event worker.
func (w *WAL) Current() uint64 {
	return w.seq.Current()
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.close()
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}

// TruncateBefore removes whole segments whose records were all covered by
// a snapshot at seq. The current segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	current := segmentPath(w.dir, w.segIndex)
	w.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(w.dir, "segment-*.wal"))
	if err != nil {
		return err
	}

	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func lastSegmentIndex(dir string) int {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil || len(files) == 0 {
		return 0
	}
	sort.Strings(files)
	last := files[len(files)-1]

	var idx int
	name := filepath.Base(last)
	if _, err := fmt.Sscanf(name, "segment-%06d.wal", &idx); err != nil {
		return 0
	}
	return idx
}
