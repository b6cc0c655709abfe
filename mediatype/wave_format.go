package mediatype

import "fmt"

type WaveFormatTag uint16

const (
	WaveFormatTagPCM        = WaveFormatTag(0x0001)
	WaveFormatTagIEEEFloat  = WaveFormatTag(0x0003)
	WaveFormatTagExtensible = WaveFormatTag(0xFFFE)
)

// Speaker position bits of a channel mask.
const (
	SpeakerFrontLeft          = uint32(0x1)
	SpeakerFrontRight         = uint32(0x2)
	SpeakerFrontCenter        = uint32(0x4)
	SpeakerLowFrequency       = uint32(0x8)
	SpeakerBackLeft           = uint32(0x10)
	SpeakerBackRight          = uint32(0x20)
	SpeakerFrontLeftOfCenter  = uint32(0x40)
	SpeakerFrontRightOfCenter = uint32(0x80)
)

const (
	ChannelMaskMono   = SpeakerFrontCenter
	ChannelMaskStereo = SpeakerFrontLeft | SpeakerFrontRight
	ChannelMaskQuad   = SpeakerFrontLeft | SpeakerFrontRight | SpeakerBackLeft | SpeakerBackRight
	ChannelMask5_1    = ChannelMaskQuad | SpeakerFrontCenter | SpeakerLowFrequency
	ChannelMask7_1    = ChannelMask5_1 | SpeakerFrontLeftOfCenter | SpeakerFrontRightOfCenter
)

var channelMasks = map[int]uint32{
	1: ChannelMaskMono,
	2: ChannelMaskStereo,
	4: ChannelMaskQuad,
	6: ChannelMask5_1,
	8: ChannelMask7_1,
}

// ChannelMaskForChannels returns the speaker layout of the channel count,
// or 0 if the count has no fixed layout.
func ChannelMaskForChannels(channels int) uint32 {
	return channelMasks[channels]
}

// WaveFormat is an uncompressed audio description.
type WaveFormat struct {
	FormatTag          WaveFormatTag
	Channels           int
	SamplesPerSec      int
	AvgBytesPerSec     int
	BlockAlign         int
	BitsPerSample      int
	ValidBitsPerSample int
	ChannelMask        uint32
	SubFormat          Subtype
}

func (*WaveFormat) isFormat() {}

func (f *WaveFormat) String() string {
	return fmt.Sprintf(
		"wave(tag:0x%04x, %dch, %dHz, %d/%dbit, mask:0x%x, %dB/s)",
		uint16(f.FormatTag), f.Channels, f.SamplesPerSec,
		f.ValidBitsPerSample, f.BitsPerSample, f.ChannelMask, f.AvgBytesPerSec,
	)
}
