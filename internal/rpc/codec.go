// ABOUTME: gRPC codec that encodes LogService messages with protowire
// ABOUTME: Falls back to proto.Marshal for well-known types such as emptypb.Empty

package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// Codec is the encoding.Codec used by both the server and Client. Its name is
// "proto" so the content-subtype on the wire stays application/grpc+proto and
// generated clients in other languages interoperate.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.marshalWire(), nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("rpc codec: cannot marshal %T", v)
	}
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireMessage:
		return m.unmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("rpc codec: cannot unmarshal into %T", v)
	}
}

// Name returns the content-subtype of the codec.
func (Codec) Name() string {
	return "proto"
}
