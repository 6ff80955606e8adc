package hybridrediscache

import (
	"encoding/json"
	"fmt"
)

// Codec serializes cached values and bus control messages to and against the
// wire. The spec treats the serializer as an external collaborator (§1);
// Codec is the seam a host application can replace it through. The default,
// jsonCodec, is the only implementation this module ships, mirroring how
// xjson wraps encoding/json with a named sentinel error instead of exposing
// raw json.Marshal errors to callers (pkg/util/xjson/marshal.go).
type Codec interface {
	// Marshal serializes v to its wire representation.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a non-nil pointer.
	Unmarshal(data []byte, v any) error
}

// jsonCodec is the default Codec, backed by encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}
