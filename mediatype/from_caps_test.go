package mediatype

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
)

func audioCaps(format string, rate, channels int) *pipeline.Caps {
	return pipeline.NewCaps(pipeline.CapsNameRawAudio, map[string]any{
		"format":   format,
		"rate":     rate,
		"channels": channels,
	})
}

func videoCaps(format string, width, height int, fps types.Rational) *pipeline.Caps {
	return pipeline.NewCaps(pipeline.CapsNameRawVideo, map[string]any{
		"format":    format,
		"width":     width,
		"height":    height,
		"framerate": fps,
	})
}

func TestFromCapsAudioByteRateAndMask(t *testing.T) {
	expectedMasks := map[int]uint32{
		1: 0x4,
		2: 0x3,
		3: 0,
		4: 0x33,
		5: 0,
		6: 0x3F,
		7: 0,
		8: 0xFF,
		9: 0,
	}
	for _, format := range []string{"S8", "U8", "S16LE", "S24LE", "S24_32LE", "S32LE", "F32LE", "F64LE"} {
		for _, rate := range []int{8000, 44100, 48000} {
			for channels, mask := range expectedMasks {
				mt, err := FromCaps(audioCaps(format, rate, channels))
				require.NoError(t, err)
				require.Equal(t, types.MediaTypeAudio, mt.Major)

				wf, ok := mt.WaveFormat()
				require.True(t, ok)
				require.Equal(t, rate*channels*(wf.BitsPerSample/8), wf.AvgBytesPerSec, format)
				require.Equal(t, mask, wf.ChannelMask, "%s/%d", format, channels)
				require.Equal(t, channels, wf.Channels)
			}
		}
	}
}

func TestFromCapsAudioFormatTag(t *testing.T) {
	mt, err := FromCaps(audioCaps("S16LE", 44100, 2))
	require.NoError(t, err)
	wf, _ := mt.WaveFormat()
	require.Equal(t, WaveFormatTagPCM, wf.FormatTag)
	require.Equal(t, SubtypePCM, mt.Subtype)
	require.Equal(t, 4, wf.BlockAlign)

	mt, err = FromCaps(audioCaps("S16LE", 44100, 6))
	require.NoError(t, err)
	wf, _ = mt.WaveFormat()
	require.Equal(t, WaveFormatTagExtensible, wf.FormatTag)

	mt, err = FromCaps(audioCaps("S24_32LE", 48000, 2))
	require.NoError(t, err)
	wf, _ = mt.WaveFormat()
	require.Equal(t, WaveFormatTagExtensible, wf.FormatTag)
	require.Equal(t, 32, wf.BitsPerSample)
	require.Equal(t, 24, wf.ValidBitsPerSample)

	mt, err = FromCaps(audioCaps("F32LE", 48000, 2))
	require.NoError(t, err)
	wf, _ = mt.WaveFormat()
	require.Equal(t, SubtypeIEEEFloat, mt.Subtype)
	require.Equal(t, SubtypeIEEEFloat, wf.SubFormat)
	require.Equal(t, WaveFormatTagExtensible, wf.FormatTag)
}

func TestFromCapsVideo(t *testing.T) {
	mt, err := FromCaps(videoCaps("I420", 320, 240, types.Rational{Num: 25, Den: 1}))
	require.NoError(t, err)
	require.Equal(t, types.MediaTypeVideo, mt.Major)
	require.Equal(t, Subtype("I420"), mt.Subtype)
	vih, ok := mt.VideoInfo()
	require.True(t, ok)
	require.Equal(t, 12, vih.BitCount)
	require.Equal(t, 320*240*12/8, vih.SizeImage)
	require.Equal(t, types.ReferenceTime(400_000), vih.AvgTimePerFrame)
	require.Equal(t, Rect{Right: 320, Bottom: 240}, vih.Source)

	mt, err = FromCaps(videoCaps("BGRx", 64, 48, types.Rational{Num: 30000, Den: 1001}))
	require.NoError(t, err)
	require.Equal(t, SubtypeRGB32, mt.Subtype)
	vih, _ = mt.VideoInfo()
	require.Equal(t, CompressionRGB, vih.Compression)
	require.Equal(t, 32, vih.BitCount)
	require.Equal(t, types.ReferenceTime(333_667), vih.AvgTimePerFrame)

	mt, err = FromCaps(videoCaps("RGB16", 64, 48, types.Rational{Num: 30, Den: 1}))
	require.NoError(t, err)
	require.Equal(t, SubtypeRGB565, mt.Subtype)

	mt, err = FromCaps(videoCaps("YUY2", 64, 48, types.Rational{Num: 30, Den: 1}))
	require.NoError(t, err)
	vih, _ = mt.VideoInfo()
	require.Equal(t, 16, vih.BitCount)
	require.Equal(t, uint32('Y')|uint32('U')<<8|uint32('Y')<<16|uint32('2')<<24, vih.Compression)
}

func TestAvgTimePerFrameGuards(t *testing.T) {
	require.Zero(t, AvgTimePerFrame(types.Rational{Num: 0, Den: 1}))
	require.Zero(t, AvgTimePerFrame(types.Rational{Num: 0, Den: 0}))
	require.Zero(t, AvgTimePerFrame(types.Rational{Num: -25, Den: 1}))
	require.Zero(t, AvgTimePerFrame(types.Rational{Num: 1, Den: math.MaxInt}))

	mt, err := FromCaps(videoCaps("NV12", 16, 16, types.Rational{Num: 0, Den: 1}))
	require.NoError(t, err)
	vih, _ := mt.VideoInfo()
	require.Zero(t, vih.AvgTimePerFrame)
}

func TestFromCapsUnsupported(t *testing.T) {
	for _, caps := range []*pipeline.Caps{
		nil,
		pipeline.NewCaps("text/x-raw", nil),
		pipeline.NewCaps("video/x-h264", nil),
		audioCaps("S16BE", 44100, 2),
		videoCaps("GRAY8", 16, 16, types.Rational{Num: 25, Den: 1}),
	} {
		_, err := FromCaps(caps)
		var errUnsupported ErrUnsupportedStream
		require.True(t, errors.As(err, &errUnsupported), "%s", caps)
	}
}
