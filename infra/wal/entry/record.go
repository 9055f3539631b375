package entry

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

type RecordType uint8

const (
	RecordOpenEvent RecordType = iota
	RecordSubmit
	RecordCancel
	RecordModify
	RecordClose
	RecordResolve
)

var ErrCorruptRecord = errors.New("wal: corrupted record")

// Record is one journaled command. Seq is assigned by the WAL at append
// time and is globally monotonic; Event routes the record back to its
// book during replay. Data is the command payload, opaque to the WAL.
type Record struct {
	Type  RecordType
	Seq   uint64
	Time  int64
	Event uint64
	Data  []byte
}

// Protobuf field numbers for the wire form. Encoded with protowire
// directly; there is no generated code to keep in sync.
const (
	fieldType  = 1
	fieldSeq   = 2
	fieldTime  = 3
	fieldEvent = 4
	fieldData  = 5
)

func (r *Record) marshal() []byte {
	b := make([]byte, 0, 32+len(r.Data))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Type))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Seq)
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Time))
	b = protowire.AppendTag(b, fieldEvent, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Event)
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Data)
	return b
}

func unmarshalRecord(b []byte) (*Record, error) {
	r := &Record{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrCorruptRecord
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			b = b[n:]
			switch num {
			case fieldType:
				r.Type = RecordType(v)
			case fieldSeq:
				r.Seq = v
			case fieldTime:
				r.Time = int64(v)
			case fieldEvent:
				r.Event = v
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			b = b[n:]
			if num == fieldData {
				r.Data = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrCorruptRecord
			}
			b = b[n:]
		}
	}
	return r, nil
}
