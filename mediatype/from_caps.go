// from_caps.go provides the mapping of pipeline caps onto graph media types.

package mediatype

import (
	"fmt"
	"math"

	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
)

// FromCaps maps raw audio and raw video caps; anything else is
// ErrUnsupportedStream.
func FromCaps(caps *pipeline.Caps) (*MediaType, error) {
	if caps == nil {
		return nil, ErrUnsupportedStream{Caps: "<nil>", Err: fmt.Errorf("no caps")}
	}
	switch caps.Family() {
	case "audio":
		return fromAudioCaps(caps)
	case "video":
		return fromVideoCaps(caps)
	}
	return nil, ErrUnsupportedStream{Caps: caps.String(), Err: fmt.Errorf("unknown stream family '%s'", caps.Family())}
}

func fromAudioCaps(caps *pipeline.Caps) (*MediaType, error) {
	info, err := pipeline.ParseAudioInfo(caps)
	if err != nil {
		return nil, ErrUnsupportedStream{Caps: caps.String(), Err: err}
	}

	bits := info.Format.Width()
	validBits := info.Format.Depth()
	if validBits == 0 || validBits > bits {
		validBits = bits
	}

	wf := &WaveFormat{
		FormatTag:          WaveFormatTagExtensible,
		Channels:           info.Channels,
		SamplesPerSec:      info.Rate,
		BitsPerSample:      bits,
		ValidBitsPerSample: validBits,
		ChannelMask:        ChannelMaskForChannels(info.Channels),
	}
	subtype := SubtypePCM
	if info.Format.IsFloat() {
		subtype = SubtypeIEEEFloat
	} else if info.Channels <= 2 && bits <= 16 && validBits == bits {
		wf.FormatTag = WaveFormatTagPCM
	}
	wf.SubFormat = subtype
	wf.BlockAlign = wf.Channels * wf.BitsPerSample / 8
	wf.AvgBytesPerSec = wf.SamplesPerSec * wf.BlockAlign

	return &MediaType{
		Major:               types.MediaTypeAudio,
		Subtype:             subtype,
		TemporalCompression: true,
		Format:              wf,
	}, nil
}

var yuvBitCounts = map[pipeline.VideoFormat]int{
	pipeline.VideoFormatI420: 12,
	pipeline.VideoFormatYV12: 12,
	pipeline.VideoFormatNV12: 12,
	pipeline.VideoFormatNV21: 12,
	pipeline.VideoFormatYUY2: 16,
	pipeline.VideoFormatUYVY: 16,
	pipeline.VideoFormatYVYU: 16,
	pipeline.VideoFormatAYUV: 32,
}

func fromVideoCaps(caps *pipeline.Caps) (*MediaType, error) {
	info, err := pipeline.ParseVideoInfo(caps)
	if err != nil {
		return nil, ErrUnsupportedStream{Caps: caps.String(), Err: err}
	}

	vih := &VideoInfoHeader{
		Source:          Rect{Right: info.Width, Bottom: info.Height},
		Target:          Rect{Right: info.Width, Bottom: info.Height},
		AvgTimePerFrame: AvgTimePerFrame(info.FrameRate),
		Width:           info.Width,
		Height:          info.Height,
		Planes:          1,
	}

	var subtype Subtype
	switch {
	case info.Format.IsRGB():
		vih.BitCount = info.Format.Bits()
		vih.Compression = CompressionRGB
		switch {
		case info.Format == pipeline.VideoFormatRGB16:
			subtype = SubtypeRGB565
		case vih.BitCount == 16:
			subtype = SubtypeRGB555
		case vih.BitCount == 24:
			subtype = SubtypeRGB24
		case vih.BitCount == 32:
			subtype = SubtypeRGB32
		default:
			return nil, ErrUnsupportedStream{Caps: caps.String(), Err: fmt.Errorf("unknown RGB bit count %d", vih.BitCount)}
		}
	default:
		fourCC := info.Format.FourCC()
		if fourCC == 0 {
			return nil, ErrUnsupportedStream{Caps: caps.String(), Err: fmt.Errorf("format '%s' has no fourcc", info.Format)}
		}
		bitCount, ok := yuvBitCounts[info.Format]
		if !ok {
			return nil, ErrUnsupportedStream{Caps: caps.String(), Err: fmt.Errorf("unknown bit count of format '%s'", info.Format)}
		}
		vih.BitCount = bitCount
		vih.Compression = fourCC
		subtype = SubtypeFromFourCC(fourCC)
	}
	vih.SizeImage = info.Width * info.Height * vih.BitCount / 8

	return &MediaType{
		Major:               types.MediaTypeVideo,
		Subtype:             subtype,
		FixedSizeSamples:    true,
		TemporalCompression: true,
		SampleSize:          vih.SizeImage,
		Format:              vih,
	}, nil
}

// AvgTimePerFrame returns the frame duration of the frame rate, or zero if
// the rate is zero, negative or the duration overflows.
func AvgTimePerFrame(frameRate types.Rational) types.ReferenceTime {
	if frameRate.Num <= 0 || frameRate.Den <= 0 || frameRate.Den > math.MaxInt32 {
		return 0
	}
	// rounded to the nearest unit
	v, ok := types.Rational{
		Num: frameRate.Den * 2,
		Den: frameRate.Num,
	}.ScaleInt64(int64(types.ReferenceTimeUnitsPerSecond))
	if !ok {
		return 0
	}
	return types.ReferenceTime((v + 1) / 2)
}
