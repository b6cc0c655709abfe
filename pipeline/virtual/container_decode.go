package virtual

import (
	"encoding/binary"
	"fmt"

	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
)

// decoder reads from a byte slice, failing with errNeedMoreData when it
// runs out of bytes.
type decoder struct {
	b   []byte
	pos int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.b)-d.pos < n {
		d.err = errNeedMoreData
		return nil
	}
	r := d.b[d.pos : d.pos+n]
	d.pos += n
	return r
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) str8() string {
	return string(d.take(int(d.u8())))
}

func (d *decoder) str16() string {
	return string(d.take(int(d.u16())))
}

func (d *decoder) caps() *pipeline.Caps {
	name := d.str16()
	count := int(d.u8())
	fields := map[string]any{}
	for range count {
		key := d.str8()
		switch t := d.u8(); t {
		case fieldTypeInt:
			fields[key] = int(int64(d.u64()))
		case fieldTypeString:
			fields[key] = d.str16()
		case fieldTypeFraction:
			num := int(int32(d.u32()))
			den := int(int32(d.u32()))
			fields[key] = types.Rational{Num: num, Den: den}
		default:
			if d.err == nil {
				d.err = fmt.Errorf("unknown caps field type %d of '%s'", t, key)
			}
		}
	}
	if d.err != nil {
		return nil
	}
	return pipeline.NewCaps(name, fields)
}

// ParseHeader parses the container header at the beginning of b.
func ParseHeader(b []byte) (*Header, error) {
	d := &decoder{b: b}
	magic := d.take(len(Magic))
	if d.err == nil && string(magic) != Magic {
		return nil, fmt.Errorf("invalid magic %q", magic)
	}
	if v := d.u8(); d.err == nil && v != Version {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	count := int(d.u8())
	if d.err == nil && count == 0 {
		return nil, fmt.Errorf("no streams")
	}
	h := &Header{}
	for range count {
		var s StreamInfo
		s.Duration = pipeline.ClockTime(d.u64())
		s.Decoder = d.str8()
		s.Caps = d.caps()
		h.Streams = append(h.Streams, s)
	}
	indexLen := int(d.u32())
	if d.err == nil && len(b)-d.pos < indexLen*indexEntrySize {
		return nil, errNeedMoreData
	}
	for range indexLen {
		var e IndexEntry
		e.Stream = int(d.u8())
		e.PTS = pipeline.ClockTime(d.u64())
		e.Offset = int64(d.u64())
		h.Index = append(h.Index, e)
	}
	if d.err != nil {
		return nil, d.err
	}
	for _, e := range h.Index {
		if e.Stream >= len(h.Streams) {
			return nil, fmt.Errorf("the index refers to unknown stream %d", e.Stream)
		}
	}
	h.Size = int64(d.pos)
	return h, nil
}

// ParseRecord parses one packet record at the beginning of b and returns
// it together with the amount of consumed bytes.
func ParseRecord(b []byte, streams int) (*Packet, int, error) {
	d := &decoder{b: b}
	p := &Packet{}
	p.Stream = int(d.u8())
	p.Flags = PacketFlags(d.u8())
	p.PTS = pipeline.ClockTime(d.u64())
	p.Duration = pipeline.ClockTime(d.u64())
	size := int(d.u32())
	if d.err != nil {
		return nil, 0, d.err
	}
	if p.Stream >= streams {
		return nil, 0, fmt.Errorf("the record refers to unknown stream %d", p.Stream)
	}
	payload := d.take(size)
	if d.err != nil {
		return nil, 0, d.err
	}
	p.Payload = append([]byte(nil), payload...)
	return p, d.pos, nil
}

// Decode parses a whole container.
func Decode(b []byte) (*Header, []Packet, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse the header: %w", err)
	}
	var packets []Packet
	pos := int(h.Size)
	for pos < len(b) {
		p, n, err := ParseRecord(b[pos:], len(h.Streams))
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse the record at %d: %w", pos, err)
		}
		packets = append(packets, *p)
		pos += n
	}
	return h, packets, nil
}
