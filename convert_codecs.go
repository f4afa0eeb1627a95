package zframe

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
)

type msgpackConverter[T any] struct{}

// Msgpack returns a converter that packs T with msgpack. Handy for
// structs whose fields have no fixed layout (strings, maps, slices).
func Msgpack[T any]() Converter[T] {
	return msgpackConverter[T]{}
}

func (msgpackConverter[T]) Encode(v T) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return data, nil
}

func (msgpackConverter[T]) Decode(data []byte, v *T) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	return nil
}

type protoConverter[T proto.Message] struct{}

// Proto returns a converter for generated protobuf messages. T is the
// message pointer type, e.g. *wrapperspb.StringValue.
func Proto[T proto.Message]() Converter[T] {
	return protoConverter[T]{}
}

func (protoConverter[T]) Encode(v T) ([]byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("proto encode: %w", err)
	}
	return data, nil
}

func (protoConverter[T]) Decode(data []byte, v *T) error {
	var zero T
	msg, ok := zero.ProtoReflect().New().Interface().(T)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedType, zero)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("proto decode: %w", err)
	}
	*v = msg
	return nil
}

type jsonConverter[T any] struct{}

// JSONOf returns a converter that carries T as JSON text.
func JSONOf[T any]() Converter[T] {
	return jsonConverter[T]{}
}

func (jsonConverter[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonConverter[T]) Decode(data []byte, v *T) error {
	return json.Unmarshal(data, v)
}
