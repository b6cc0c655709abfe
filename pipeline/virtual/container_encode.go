package virtual

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
)

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16) { e.buf.Write(binary.LittleEndian.AppendUint16(nil, v)) }
func (e *encoder) u32(v uint32) { e.buf.Write(binary.LittleEndian.AppendUint32(nil, v)) }
func (e *encoder) u64(v uint64) { e.buf.Write(binary.LittleEndian.AppendUint64(nil, v)) }

func (e *encoder) str8(s string) error {
	if len(s) > 0xff {
		return fmt.Errorf("string '%s' is too long", s)
	}
	e.u8(uint8(len(s)))
	e.buf.WriteString(s)
	return nil
}

func (e *encoder) str16(s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("string of length %d is too long", len(s))
	}
	e.u16(uint16(len(s)))
	e.buf.WriteString(s)
	return nil
}

const (
	fieldTypeInt      = uint8(0)
	fieldTypeString   = uint8(1)
	fieldTypeFraction = uint8(2)
)

func (e *encoder) caps(caps *pipeline.Caps) error {
	if caps == nil {
		return fmt.Errorf("no caps")
	}
	if err := e.str16(caps.Name); err != nil {
		return err
	}
	keys := make([]string, 0, len(caps.Fields))
	for k := range caps.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0xff {
		return fmt.Errorf("too many caps fields: %d", len(keys))
	}
	e.u8(uint8(len(keys)))
	for _, k := range keys {
		if err := e.str8(k); err != nil {
			return err
		}
		if v, ok := caps.Int(k); ok {
			e.u8(fieldTypeInt)
			e.u64(uint64(int64(v)))
			continue
		}
		if v, ok := caps.Str(k); ok {
			e.u8(fieldTypeString)
			if err := e.str16(v); err != nil {
				return err
			}
			continue
		}
		if v, ok := caps.Fraction(k); ok {
			e.u8(fieldTypeFraction)
			e.u32(uint32(int32(v.Num)))
			e.u32(uint32(int32(v.Den)))
			continue
		}
		return fmt.Errorf("field '%s' has unsupported type %T", k, caps.Fields[k])
	}
	return nil
}

// Encode writes the container with a keyframe index built from its packets.
func Encode(w io.Writer, c *Container) error {
	if len(c.Streams) == 0 || len(c.Streams) > 0xff {
		return fmt.Errorf("invalid amount of streams: %d", len(c.Streams))
	}

	var head encoder
	head.buf.WriteString(Magic)
	head.u8(Version)
	head.u8(uint8(len(c.Streams)))
	for idx, s := range c.Streams {
		head.u64(uint64(s.Duration))
		if err := head.str8(s.Decoder); err != nil {
			return fmt.Errorf("stream #%d: %w", idx, err)
		}
		if err := head.caps(s.Caps); err != nil {
			return fmt.Errorf("stream #%d: %w", idx, err)
		}
	}

	keyFrames := 0
	for _, p := range c.Packets {
		if p.Flags&PacketFlagKeyFrame != 0 {
			keyFrames++
		}
	}
	headerSize := int64(head.buf.Len()) + 4 + int64(keyFrames)*indexEntrySize

	var records encoder
	var index []IndexEntry
	for idx, p := range c.Packets {
		if p.Stream < 0 || p.Stream >= len(c.Streams) {
			return fmt.Errorf("packet #%d refers to unknown stream %d", idx, p.Stream)
		}
		if p.Flags&PacketFlagKeyFrame != 0 {
			index = append(index, IndexEntry{
				Stream: p.Stream,
				PTS:    p.PTS,
				Offset: headerSize + int64(records.buf.Len()),
			})
		}
		records.u8(uint8(p.Stream))
		records.u8(uint8(p.Flags))
		records.u64(uint64(p.PTS))
		records.u64(uint64(p.Duration))
		records.u32(uint32(len(p.Payload)))
		records.buf.Write(p.Payload)
	}

	head.u32(uint32(len(index)))
	for _, e := range index {
		head.u8(uint8(e.Stream))
		head.u64(uint64(e.PTS))
		head.u64(uint64(e.Offset))
	}
	if int64(head.buf.Len()) != headerSize {
		return fmt.Errorf("internal error: header size mismatch %d != %d", head.buf.Len(), headerSize)
	}

	if _, err := w.Write(head.buf.Bytes()); err != nil {
		return fmt.Errorf("unable to write the header: %w", err)
	}
	if _, err := w.Write(records.buf.Bytes()); err != nil {
		return fmt.Errorf("unable to write the records: %w", err)
	}
	return nil
}

// EncodeBytes is Encode into memory.
func EncodeBytes(c *Container) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fraction is a shorthand for caps fraction fields.
func Fraction(num, den int) types.Rational {
	return types.Rational{Num: num, Den: den}
}
