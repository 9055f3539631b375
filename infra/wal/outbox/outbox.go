package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// Durable outbox between the engine and the Kafka broadcaster. Fills and
// settlement records are staged here synchronously on the event worker;
// the broadcaster drains NEW entries, marks them SENT, publishes, and
// marks them ACKED. A crash between any two steps replays the entry.

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Kind uint8

const (
	KindFill Kind = iota
	KindSettlement
)

type Entry struct {
	State       State
	Kind        Kind
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][kind:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 14+len(e.Payload))
	buf[0] = byte(e.State)
	buf[1] = byte(e.Kind)
	binary.BigEndian.PutUint32(buf[2:6], e.Retries)
	binary.BigEndian.PutUint64(buf[6:14], uint64(e.LastAttempt))
	copy(buf[14:], e.Payload)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 14 {
		return Entry{}, errors.New("outbox: short entry")
	}
	return Entry{
		State:       State(b[0]),
		Kind:        Kind(b[1]),
		Retries:     binary.BigEndian.Uint32(b[2:6]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[6:14])),
		Payload:     append([]byte(nil), b[14:]...),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Stage inserts a new entry. id must be unique per kind; trade IDs and
// settlement record IDs both come from monotonic sequencers.
func (o *Outbox) Stage(kind Kind, id uint64, payload []byte) error {
	e := Entry{
		State:   StateNew,
		Kind:    kind,
		Payload: payload,
	}
	return o.db.Set(keyFor(kind, id), encodeEntry(e), pebble.Sync)
}

// UpdateState moves an entry through the send state machine.
func (o *Outbox) UpdateState(kind Kind, id uint64, state State, retries uint32) error {
	key := keyFor(kind, id)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	e, derr := decodeEntry(val)
	_ = closer.Close()
	if derr != nil {
		return derr
	}

	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(key, encodeEntry(e), pebble.Sync)
}

// Delete removes ACKED entries (cleanup).
func (o *Outbox) Delete(kind Kind, id uint64) error {
	return o.db.Delete(keyFor(kind, id), pebble.Sync)
}

// Get returns the entry for an id.
func (o *Outbox) Get(kind Kind, id uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(kind, id))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(val)
}

// ScanState iterates all entries in the given state, in key order.
func (o *Outbox) ScanState(state State, fn func(kind Kind, id uint64, e Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("out/"),
		UpperBound: []byte("out/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.State != state {
			continue
		}

		kind, id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(kind, id, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(kind Kind, id uint64) []byte {
	return []byte(fmt.Sprintf("out/%d/%020d", kind, id))
}

func parseKey(b []byte) (Kind, uint64, error) {
	var kind uint8
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("out/"))), "%d/%d", &kind, &id)
	return Kind(kind), id, err
}
