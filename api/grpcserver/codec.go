package grpcserver

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// The wire format is JSON rather than protobuf: the message set is small,
// clients are internal, and it keeps the service definition in one place.
// Clients dial with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }
