package zframe

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnsupportedType is returned when no converter applies to a value.
	ErrUnsupportedType = errors.New("zframe: unsupported type")
	// ErrOutOfBounds is returned when an operation would read or write past
	// the end of a frame.
	ErrOutOfBounds = errors.New("zframe: range out of bounds")
)

// byteOrder is the layout used for fixed-size values. Frames carry the raw
// in-memory representation, so both ends must share it.
var byteOrder = binary.NativeEndian

// Converter maps values of T to and from frame bytes.
//
// Implementations must be deterministic, and Decode(Encode(v)) must yield a
// value equal to v.
type Converter[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte, v *T) error
}

// ConverterFuncs adapts a pair of functions to Converter.
type ConverterFuncs[T any] struct {
	EncodeFunc func(v T) ([]byte, error)
	DecodeFunc func(data []byte, v *T) error
}

func (c ConverterFuncs[T]) Encode(v T) ([]byte, error) {
	return c.EncodeFunc(v)
}

func (c ConverterFuncs[T]) Decode(data []byte, v *T) error {
	return c.DecodeFunc(data, v)
}

// FrameMarshaler is implemented by types that know how to encode
// themselves into a frame.
type FrameMarshaler interface {
	MarshalFrame() ([]byte, error)
}

// FrameUnmarshaler is implemented by types that know how to decode
// themselves from a frame. The receiver is expected to be a pointer.
type FrameUnmarshaler interface {
	UnmarshalFrame(data []byte) error
}

// Arg is a value bound to an explicit converter. It takes precedence over
// every other encoding rule.
type Arg interface {
	encodeFrame() ([]byte, error)
}

type boundArg[T any] struct {
	conv Converter[T]
	v    T
}

func (a boundArg[T]) encodeFrame() ([]byte, error) {
	return a.conv.Encode(a.v)
}

// With binds v to conv so that Encode, Message.From, MultipartMessage and
// the socket send methods use conv for it. Use it for types whose
// definition cannot carry MarshalFrame.
func With[T any](conv Converter[T], v T) Arg {
	return boundArg[T]{conv: conv, v: v}
}

// Target is a decode destination bound to an explicit converter.
type Target interface {
	decodeFrame(data []byte) error
}

type boundTarget[T any] struct {
	conv Converter[T]
	out  *T
}

func (t boundTarget[T]) decodeFrame(data []byte) error {
	var v T
	if err := t.conv.Decode(data, &v); err != nil {
		return err
	}
	*t.out = v
	return nil
}

// Into binds out to conv for decoding. out is written only when decoding
// succeeds.
func Into[T any](conv Converter[T], out *T) Target {
	return boundTarget[T]{conv: conv, out: out}
}

// JSON is a JSON document. It travels as its text form.
type JSON struct {
	Value any
}

// String returns the text form, or "null" if the value cannot be encoded.
func (j JSON) String() string {
	data, err := json.Marshal(j.Value)
	if err != nil {
		return "null"
	}
	return string(data)
}

// Encode converts v to frame bytes. Resolution order:
//
//  1. an Arg produced by With
//  2. FrameMarshaler, then encoding.BinaryMarshaler
//  3. built-ins: []byte, string, *Message, JSON, fixed-layout values and
//     slices of fixed-layout values
func Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: <nil>", ErrUnsupportedType)
	case Arg:
		return x.encodeFrame()
	case FrameMarshaler:
		return x.MarshalFrame()
	case encoding.BinaryMarshaler:
		return x.MarshalBinary()
	case []byte:
		return bytes.Clone(x), nil
	case string:
		return []byte(x), nil
	case *Message:
		if x == nil {
			return nil, fmt.Errorf("%w: nil *Message", ErrUnsupportedType)
		}
		return bytes.Clone(x.data), nil
	case Message:
		return bytes.Clone(x.data), nil
	case JSON:
		data, err := json.Marshal(x.Value)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return data, nil
	}
	return encodeReflect(v)
}

// Decode converts frame bytes into out, which must be a pointer, a Target
// produced by Into, or a FrameUnmarshaler. The resolution order mirrors
// Encode. out is left untouched when an error is returned.
func Decode(data []byte, out any) error {
	switch x := out.(type) {
	case nil:
		return fmt.Errorf("%w: <nil> target", ErrUnsupportedType)
	case Target:
		return x.decodeFrame(data)
	case FrameUnmarshaler:
		return x.UnmarshalFrame(data)
	case encoding.BinaryUnmarshaler:
		return x.UnmarshalBinary(data)
	case *[]byte:
		*x = append([]byte{}, data...)
		return nil
	case *string:
		*x = string(data)
		return nil
	case *Message:
		x.data = append([]byte{}, data...)
		return nil
	case *JSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		x.Value = v
		return nil
	}
	return decodeReflect(data, out)
}

// EncodeValue is the typed form of Encode.
func EncodeValue[T any](v T) ([]byte, error) {
	return Encode(v)
}

// DecodeValue is the typed form of Decode.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	err := Decode(data, &v)
	return v, err
}

func encodeReflect(v any) ([]byte, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil %T", ErrUnsupportedType, v)
	}

	switch {
	case rv.Kind() == reflect.String:
		return []byte(rv.String()), nil
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return bytes.Clone(rv.Bytes()), nil
	}

	size := fixedSize(rv.Type())
	if size < 0 {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	if rv.Kind() == reflect.Slice {
		size *= rv.Len()
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, byteOrder, rv.Interface()); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func decodeReflect(data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer, got %T", ErrUnsupportedType, out)
	}
	elem := rv.Elem()

	switch {
	case elem.Kind() == reflect.String:
		elem.SetString(string(data))
		return nil
	case elem.Kind() == reflect.Slice && elem.Type().Elem().Kind() == reflect.Uint8:
		elem.SetBytes(append([]byte{}, data...))
		return nil
	case elem.Kind() == reflect.Slice:
		size := fixedSize(elem.Type().Elem())
		if size <= 0 {
			return fmt.Errorf("%w: %T", ErrUnsupportedType, out)
		}
		if len(data)%size != 0 {
			return fmt.Errorf("%w: %d bytes is not a multiple of element size %d", ErrOutOfBounds, len(data), size)
		}
		n := len(data) / size
		s := reflect.MakeSlice(elem.Type(), n, n)
		if err := binary.Read(bytes.NewReader(data), byteOrder, s.Interface()); err != nil {
			return fmt.Errorf("decode %T: %w", out, err)
		}
		elem.Set(s)
		return nil
	}

	size := fixedSize(elem.Type())
	if size < 0 {
		return fmt.Errorf("%w: %T", ErrUnsupportedType, out)
	}
	if len(data) < size {
		return fmt.Errorf("%w: need %d bytes, frame has %d", ErrOutOfBounds, size, len(data))
	}
	tmp := reflect.New(elem.Type())
	if err := binary.Read(bytes.NewReader(data[:size]), byteOrder, tmp.Interface()); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	elem.Set(tmp.Elem())
	return nil
}

// fixedSize reports the encoded size of one value of t, or -1 if t has no
// fixed layout. For slices it reports the element size. Structs with
// unexported fields are rejected since they cannot be decoded back.
func fixedSize(t reflect.Type) int {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64, reflect.Complex64:
		return 8
	case reflect.Complex128:
		return 16
	case reflect.Array:
		n := fixedSize(t.Elem())
		if n < 0 {
			return -1
		}
		return n * t.Len()
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Slice {
			return -1
		}
		return fixedSize(t.Elem())
	case reflect.Struct:
		total := 0
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && f.Name != "_" {
				return -1
			}
			n := fixedSize(f.Type)
			if n < 0 || f.Type.Kind() == reflect.Slice {
				return -1
			}
			total += n
		}
		return total
	default:
		return -1
	}
}
