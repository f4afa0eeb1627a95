package zframe

import (
	"reflect"
)

// Message is a single frame: a raw byte buffer plus typed accessors. The
// bytes carry no type information; callers choose the types on both ends.
type Message struct {
	data []byte
}

// NewMessage creates a zero-filled message of the given size.
func NewMessage(size int) *Message {
	if size < 0 {
		size = 0
	}
	return &Message{data: make([]byte, size)}
}

// NewMessageFrom encodes v into a new message.
func NewMessageFrom(v any) (*Message, error) {
	m := &Message{}
	if err := m.From(v); err != nil {
		return nil, err
	}
	return m, nil
}

// messageOf wraps frame bytes received from the transport without copying.
func messageOf(frame []byte) *Message {
	return &Message{data: frame}
}

// Bytes returns the underlying buffer.
func (m *Message) Bytes() []byte {
	return m.data
}

// Len returns the frame size in bytes.
func (m *Message) Len() int {
	return len(m.data)
}

// Resize replaces the buffer with a zero-filled one of the given size.
func (m *Message) Resize(size int) {
	if size < 0 {
		size = 0
	}
	m.data = make([]byte, size)
}

// MemCopyFrom copies src into the buffer at offset and returns the number
// of bytes copied, or 0 if the range does not fit.
func (m *Message) MemCopyFrom(src []byte, offset int) int {
	if !m.inRange("MemCopyFrom", offset, len(src)) {
		return 0
	}
	return copy(m.data[offset:], src)
}

// MemCopyTo copies len(dst) bytes starting at offset into dst and returns
// the number of bytes copied, or 0 if the range does not fit.
func (m *Message) MemCopyTo(dst []byte, offset int) int {
	if !m.inRange("MemCopyTo", offset, len(dst)) {
		return 0
	}
	return copy(dst, m.data[offset:offset+len(dst)])
}

// CopyFrom writes the raw layout of the fixed-layout value v at offset.
// The buffer is not resized. Returns the bytes written or 0.
func (m *Message) CopyFrom(v any, offset int) int {
	raw, ok := fixedBytes("CopyFrom", v)
	if !ok {
		return 0
	}
	if !m.inRange("CopyFrom", offset, len(raw)) {
		return 0
	}
	return copy(m.data[offset:], raw)
}

// CopyTo reads a fixed-layout value at offset into out, which must be a
// pointer. out is untouched on failure. Returns the bytes read or 0.
func (m *Message) CopyTo(out any, offset int) int {
	size, ok := fixedTargetSize("CopyTo", out)
	if !ok {
		return 0
	}
	if !m.inRange("CopyTo", offset, size) {
		return 0
	}
	if err := decodeReflect(m.data[offset:offset+size], out); err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("op", "CopyTo").Msg("decode failed")
		return 0
	}
	return size
}

// Set sizes the buffer to the exact total layout size of vs and writes
// each value at increasing offsets. Every value must have a fixed layout.
// Returns the bytes written, or 0 if any value is rejected.
func (m *Message) Set(vs ...any) int {
	chunks := make([][]byte, 0, len(vs))
	total := 0
	for _, v := range vs {
		raw, ok := fixedBytes("Set", v)
		if !ok {
			return 0
		}
		chunks = append(chunks, raw)
		total += len(raw)
	}

	m.Resize(total)
	cursor := 0
	for _, raw := range chunks {
		cursor += copy(m.data[cursor:], raw)
	}
	return cursor
}

// SetTo is the inverse of Set: it reads consecutive fixed-layout values
// into the given pointers. It stops at the first value that does not fit
// and returns 0 in that case; earlier outputs keep their decoded values.
func (m *Message) SetTo(outs ...any) int {
	cursor := 0
	for _, out := range outs {
		n := m.CopyTo(out, cursor)
		if n == 0 {
			if size, ok := fixedTargetSize("SetTo", out); ok && size == 0 {
				continue
			}
			return 0
		}
		cursor += n
	}
	return cursor
}

// From replaces the buffer with the encoding of v.
func (m *Message) From(v any) error {
	data, err := Encode(v)
	if err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("op", "From").Msg("encode failed")
		return err
	}
	m.data = data
	return nil
}

// To decodes the buffer into out. out is untouched on failure.
func (m *Message) To(out any) error {
	if err := Decode(m.data, out); err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("op", "To").Int("len", len(m.data)).Msg("decode failed")
		return err
	}
	return nil
}

// Get decodes m as a T. The boolean is false if decoding failed.
func Get[T any](m *Message) (T, bool) {
	var v T
	if err := m.To(&v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func (m *Message) inRange(op string, offset, size int) bool {
	if offset < 0 || size < 0 || len(m.data) < offset+size {
		logger := Logger()
		logger.Warn().
			Str("op", op).
			Int("offset", offset).
			Int("size", size).
			Int("len", len(m.data)).
			Msg("range out of bounds")
		return false
	}
	return true
}

// fixedBytes returns the raw layout of v if v has a fixed layout.
func fixedBytes(op string, v any) ([]byte, bool) {
	if v == nil {
		logger := Logger()
		logger.Warn().Str("op", op).Msg("nil value")
		return nil, false
	}
	if t := reflect.TypeOf(v); fixedSize(t) < 0 {
		logger := Logger()
		logger.Warn().Str("op", op).Str("type", t.String()).Msg("value has no fixed layout")
		return nil, false
	}
	raw, err := encodeReflect(v)
	if err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("op", op).Msg("encode failed")
		return nil, false
	}
	return raw, true
}

// fixedTargetSize returns the layout size of *out if out points to a
// fixed-layout, non-slice value.
func fixedTargetSize(op string, out any) (int, bool) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		logger := Logger()
		logger.Warn().Str("op", op).Msg("target must be a non-nil pointer")
		return 0, false
	}
	t := rv.Elem().Type()
	size := fixedSize(t)
	if size < 0 || t.Kind() == reflect.Slice {
		logger := Logger()
		logger.Warn().Str("op", op).Str("type", t.String()).Msg("target has no fixed layout")
		return 0, false
	}
	return size, true
}
