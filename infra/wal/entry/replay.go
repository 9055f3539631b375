package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

type ReplayHandler func(*Record) error

// Replay scans every segment in order and feeds valid records to fn.
// Returns the last sequence seen so the WAL and per-event sequencers can
// resume after it.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}

		for {
			rec, err := readRecord(f)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				// A torn tail frame means the process died mid-append;
				// everything before it is intact.
				if errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				_ = f.Close()
				return lastSeq, err
			}

			if rec.Seq <= lastSeq {
				_ = f.Close()
				return lastSeq, fmt.Errorf("wal: non-monotonic seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq

			if err := fn(rec); err != nil {
				_ = f.Close()
				return lastSeq, err
			}
		}
		_ = f.Close()
	}

	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	crc := binary.LittleEndian.Uint32(header[4:8])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	if !checksumValid(body, crc) {
		return nil, ErrCorruptRecord
	}
	return unmarshalRecord(body)
}

// maxSeqInSegment scans one segment for its highest sequence. Used only
// for snapshot-based truncation.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	for {
		rec, err := readRecord(f)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return max, nil
			}
			return max, err
		}
		if rec.Seq > max {
			max = rec.Seq
		}
	}
}
