package engine

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"janus/domain/book"
)

// Fixed-width little-endian payloads for WAL records. The record frame
// (type, seq, time, event, crc) is owned by the WAL; these encode only
// the command arguments needed to replay it.

var errShortPayload = errors.New("engine: short wal payload")

func encodeSubmit(req SubmitRequest) []byte {
	b := make([]byte, 26)
	binary.LittleEndian.PutUint64(b[0:8], req.Account)
	b[8] = byte(req.Side)
	b[9] = byte(req.Origin)
	binary.LittleEndian.PutUint64(b[10:18], uint64(req.Price))
	binary.LittleEndian.PutUint64(b[18:26], uint64(req.Qty))
	return b
}

func decodeSubmit(eventID uint64, b []byte) (SubmitRequest, error) {
	if len(b) < 26 {
		return SubmitRequest{}, errShortPayload
	}
	return SubmitRequest{
		EventID: eventID,
		Account: binary.LittleEndian.Uint64(b[0:8]),
		Side:    book.Side(b[8]),
		Origin:  book.Origin(b[9]),
		Price:   int64(binary.LittleEndian.Uint64(b[10:18])),
		Qty:     int64(binary.LittleEndian.Uint64(b[18:26])),
	}, nil
}

func encodeCancel(orderID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, orderID)
	return b
}

func decodeCancel(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, errShortPayload
	}
	return binary.LittleEndian.Uint64(b), nil
}

func encodeModify(orderID uint64, newQty, newPrice int64) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], orderID)
	binary.LittleEndian.PutUint64(b[8:16], uint64(newQty))
	binary.LittleEndian.PutUint64(b[16:24], uint64(newPrice))
	return b
}

func decodeModify(b []byte) (orderID uint64, newQty, newPrice int64, err error) {
	if len(b) < 24 {
		return 0, 0, 0, errShortPayload
	}
	return binary.LittleEndian.Uint64(b[0:8]),
		int64(binary.LittleEndian.Uint64(b[8:16])),
		int64(binary.LittleEndian.Uint64(b[16:24])),
		nil
}

func encodeOpenEvent(cfg EventConfig) []byte {
	b := make([]byte, 41)
	if cfg.ChaosEnabled {
		b[0] = 1
	}
	binary.LittleEndian.PutUint64(b[1:9], uint64(cfg.ChaosSeed))
	binary.LittleEndian.PutUint64(b[9:17], math.Float64bits(cfg.ChaosRateBound))
	binary.LittleEndian.PutUint64(b[17:25], uint64(cfg.ChaosMaxQty))
	binary.LittleEndian.PutUint64(b[25:33], uint64(cfg.ChaosPriceJitter))
	var deadline int64
	if !cfg.CloseDeadline.IsZero() {
		deadline = cfg.CloseDeadline.UnixNano()
	}
	binary.LittleEndian.PutUint64(b[33:41], uint64(deadline))
	return b
}

func decodeOpenEvent(b []byte) (EventConfig, error) {
	if len(b) < 41 {
		return EventConfig{}, errShortPayload
	}
	cfg := EventConfig{
		ChaosEnabled:     b[0] == 1,
		ChaosSeed:        int64(binary.LittleEndian.Uint64(b[1:9])),
		ChaosRateBound:   math.Float64frombits(binary.LittleEndian.Uint64(b[9:17])),
		ChaosMaxQty:      int64(binary.LittleEndian.Uint64(b[17:25])),
		ChaosPriceJitter: int64(binary.LittleEndian.Uint64(b[25:33])),
	}
	if deadline := int64(binary.LittleEndian.Uint64(b[33:41])); deadline != 0 {
		cfg.CloseDeadline = time.Unix(0, deadline)
	}
	return cfg, nil
}

func encodeResolve(outcome book.Outcome) []byte {
	return []byte{byte(outcome)}
}

func decodeResolve(b []byte) (book.Outcome, error) {
	if len(b) < 1 {
		return 0, errShortPayload
	}
	return book.Outcome(b[0]), nil
}
