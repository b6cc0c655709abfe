// container.go provides the in-memory model of the packetized container the
// virtual pipeline demuxes.
//
// Layout (little-endian):
//
//	"AVBv" version:u8 streams:u8
//	  per stream: duration:u64 decoder:str8 caps
//	  index:u32 entries of (stream:u8 pts:u64 offset:u64)
//	records of (stream:u8 flags:u8 pts:u64 duration:u64 size:u32 payload)
//
// where caps is name:str16 fields:u8 and each field is key:str8 type:u8
// value (int: i64, string: str16, fraction: i32 i32).

package virtual

import (
	"errors"
	"fmt"

	"github.com/xaionaro-go/avbridge/pipeline"
)

const (
	Magic   = "AVBv"
	Version = uint8(1)

	recordHeaderSize = 1 + 1 + 8 + 8 + 4
	indexEntrySize   = 1 + 8 + 8
)

var errNeedMoreData = errors.New("need more data")

type PacketFlags uint8

const (
	PacketFlagKeyFrame = PacketFlags(1 << iota)
	PacketFlagLive
)

type StreamInfo struct {
	Caps     *pipeline.Caps
	Decoder  string
	Duration pipeline.ClockTime
}

type Packet struct {
	Stream   int
	Flags    PacketFlags
	PTS      pipeline.ClockTime
	Duration pipeline.ClockTime
	Payload  []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet(stream:%d, pts:%s, len:%d)", p.Stream, p.PTS, len(p.Payload))
}

type IndexEntry struct {
	Stream int
	PTS    pipeline.ClockTime
	Offset int64
}

type Header struct {
	Streams []StreamInfo
	Index   []IndexEntry

	// Size is the amount of bytes the header occupies; records start here.
	Size int64
}

// SeekOffset returns the offset to continue reading from to get every
// stream's last keyframe at or before pts, and the earliest such keyframe
// time.
func (h *Header) SeekOffset(pts pipeline.ClockTime) (int64, pipeline.ClockTime) {
	lastKey := map[int]IndexEntry{}
	for _, e := range h.Index {
		if e.PTS > pts {
			continue
		}
		if prev, ok := lastKey[e.Stream]; !ok || e.Offset > prev.Offset {
			lastKey[e.Stream] = e
		}
	}
	if len(lastKey) == 0 {
		return h.Size, 0
	}
	offset := int64(-1)
	keyPTS := pts
	for _, e := range lastKey {
		if offset < 0 || e.Offset < offset {
			offset = e.Offset
		}
		if e.PTS < keyPTS {
			keyPTS = e.PTS
		}
	}
	return offset, keyPTS
}

// Container is a whole file: used to produce test and sample inputs.
type Container struct {
	Streams []StreamInfo
	Packets []Packet
}
