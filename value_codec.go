package denkmit

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ValueCodec converts dataset values to the bytes stored in entries.
type ValueCodec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(b []byte) (T, error)
}

// JSONCodec stores values as JSON.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[T]) Unmarshal(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// BytesCodec stores byte slices as they are.
type BytesCodec struct{}

func (BytesCodec) Marshal(v []byte) ([]byte, error)   { return v, nil }
func (BytesCodec) Unmarshal(b []byte) ([]byte, error) { return b, nil }

// StringCodec stores strings as their bytes.
type StringCodec struct{}

func (StringCodec) Marshal(v string) ([]byte, error)   { return []byte(v), nil }
func (StringCodec) Unmarshal(b []byte) (string, error) { return string(b), nil }

// ProtoCodec stores protobuf messages in their binary wire form. New returns
// an empty message to unmarshal into.
type ProtoCodec[M proto.Message] struct {
	New func() M
}

func (c ProtoCodec[M]) Marshal(v M) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c ProtoCodec[M]) Unmarshal(b []byte) (M, error) {
	m := c.New()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero M
		return zero, fmt.Errorf("unmarshal proto: %w", err)
	}
	return m, nil
}
