package zframe

import (
	"fmt"
)

// MultipartMessage is an ordered sequence of frames sent and received as
// one unit. Frame order is preserved end to end.
type MultipartMessage struct {
	frames []*Message
}

// NewMultipartMessage encodes each value into its own frame, in order.
func NewMultipartMessage(values ...any) (*MultipartMessage, error) {
	mm := &MultipartMessage{}
	if err := mm.AddArguments(values...); err != nil {
		return nil, err
	}
	return mm, nil
}

// AddArgument appends one frame built from v.
func (mm *MultipartMessage) AddArgument(v any) error {
	m, err := NewMessageFrom(v)
	if err != nil {
		return fmt.Errorf("frame %d: %w", len(mm.frames), err)
	}
	mm.frames = append(mm.frames, m)
	return nil
}

// AddArguments appends one frame per value. Nothing is appended if any
// value fails to encode.
func (mm *MultipartMessage) AddArguments(values ...any) error {
	frames := make([]*Message, 0, len(values))
	for i, v := range values {
		m, err := NewMessageFrom(v)
		if err != nil {
			return fmt.Errorf("frame %d: %w", len(mm.frames)+i, err)
		}
		frames = append(frames, m)
	}
	mm.frames = append(mm.frames, frames...)
	return nil
}

// AddMessage appends m as the next frame.
func (mm *MultipartMessage) AddMessage(m *Message) {
	mm.frames = append(mm.frames, m)
}

// AddFrame appends raw bytes as the next frame without copying.
func (mm *MultipartMessage) AddFrame(frame []byte) {
	mm.frames = append(mm.frames, messageOf(frame))
}

// Len returns the number of frames.
func (mm *MultipartMessage) Len() int {
	return len(mm.frames)
}

// Message returns frame i, or nil if i is out of range.
func (mm *MultipartMessage) Message(i int) *Message {
	if i < 0 || i >= len(mm.frames) {
		return nil
	}
	return mm.frames[i]
}

// Frames returns the raw frame bytes in order.
func (mm *MultipartMessage) Frames() [][]byte {
	out := make([][]byte, len(mm.frames))
	for i, m := range mm.frames {
		out[i] = m.Bytes()
	}
	return out
}

// Reset drops all frames.
func (mm *MultipartMessage) Reset() {
	mm.frames = nil
}

// At returns a lazy view of frame i. Nothing is decoded until the view is
// materialized with To or Value.
func (mm *MultipartMessage) At(i int) ArgumentConverter {
	return ArgumentConverter{message: mm, index: i}
}

// ConvertTo decodes frames 0..len(outs)-1 into outs, in order. It returns
// false if the unit has fewer frames than outputs or a frame fails to
// decode; frames before the failure are still decoded.
func (mm *MultipartMessage) ConvertTo(outs ...any) bool {
	if len(outs) > len(mm.frames) {
		logger := Logger()
		logger.Warn().
			Int("arguments", len(outs)).
			Int("frames", len(mm.frames)).
			Msg("arguments num is larger than received message")
	}
	for i, out := range outs {
		if i >= len(mm.frames) {
			return false
		}
		if err := mm.frames[i].To(out); err != nil {
			return false
		}
	}
	return true
}

// RangedConvertTo decodes frames [from, to) into outs. A count mismatch
// between outs and the range is logged and decoding proceeds best effort
// over whichever is shorter.
func (mm *MultipartMessage) RangedConvertTo(from, to int, outs ...any) bool {
	logger := Logger()
	switch {
	case to < from:
		logger.Warn().Int("from", from).Int("to", to).Msg("range to is smaller than from")
		return false
	case len(outs) != to-from:
		logger.Warn().
			Int("arguments", len(outs)).
			Int("from", from).
			Int("to", to).
			Msg("num arguments doesn't match range")
	}

	for i, out := range outs {
		n := from + i
		if n >= to {
			break
		}
		if n < 0 || n >= len(mm.frames) {
			logger.Warn().Int("index", n).Int("frames", len(mm.frames)).Msg("arguments num is larger than received message")
			return false
		}
		if err := mm.frames[n].To(out); err != nil {
			return false
		}
	}
	return true
}

// ArgumentConverter is a lazy view of one frame of a MultipartMessage.
type ArgumentConverter struct {
	message *MultipartMessage
	index   int
}

// Index returns the frame index the view is bound to.
func (a ArgumentConverter) Index() int {
	return a.index
}

// To decodes the frame into out. It returns false if the index is out of
// range or decoding fails; out is untouched in both cases.
func (a ArgumentConverter) To(out any) bool {
	m := a.message.Message(a.index)
	if m == nil {
		logger := Logger()
		logger.Warn().Int("index", a.index).Int("frames", a.message.Len()).Msg("index out of bound")
		return false
	}
	return m.To(out) == nil
}

// Value materializes the view as a T.
func Value[T any](a ArgumentConverter) (T, bool) {
	var v T
	if !a.To(&v) {
		var zero T
		return zero, false
	}
	return v, true
}
