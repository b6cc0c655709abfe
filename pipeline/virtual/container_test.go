package virtual

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
)

func TestContainerEncodeDecode(t *testing.T) {
	c := SampleContainer(SampleParams{Duration: 200 * time.Millisecond})
	b, err := EncodeBytes(c)
	require.NoError(t, err)

	h, packets, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, h.Streams, 2)
	require.Equal(t, c.Streams[0].Caps.String(), h.Streams[0].Caps.String())
	require.Equal(t, c.Streams[1].Caps.String(), h.Streams[1].Caps.String())
	require.Equal(t, "Virtual PCM Decoder", h.Streams[0].Decoder)
	require.Equal(t, pipeline.ClockTimeFromDuration(200*time.Millisecond), h.Streams[1].Duration)
	require.Len(t, packets, len(c.Packets))
	for idx := range packets {
		require.Equal(t, c.Packets[idx].PTS, packets[idx].PTS)
		require.Equal(t, c.Packets[idx].Flags, packets[idx].Flags)
		require.True(t, bytes.Equal(c.Packets[idx].Payload, packets[idx].Payload))
	}

	for _, e := range h.Index {
		p, _, err := ParseRecord(b[e.Offset:], len(h.Streams))
		require.NoError(t, err)
		require.Equal(t, e.Stream, p.Stream)
		require.Equal(t, e.PTS, p.PTS)
		require.NotZero(t, p.Flags&PacketFlagKeyFrame)
	}
}

func TestContainerPartialInput(t *testing.T) {
	b, err := EncodeBytes(SampleContainer(SampleParams{Duration: 100 * time.Millisecond}))
	require.NoError(t, err)

	h, err := ParseHeader(b)
	require.NoError(t, err)
	for n := 0; n < int(h.Size); n++ {
		_, err := ParseHeader(b[:n])
		require.ErrorIs(t, err, errNeedMoreData, n)
	}

	_, _, err = ParseRecord(b[h.Size:h.Size+recordHeaderSize-1], len(h.Streams))
	require.ErrorIs(t, err, errNeedMoreData)

	_, err = ParseHeader([]byte("RIFF\x01\x01"))
	require.Error(t, err)
	require.NotErrorIs(t, err, errNeedMoreData)
}

func TestHeaderSeekOffset(t *testing.T) {
	b, err := EncodeBytes(SampleContainer(SampleParams{Duration: time.Second}))
	require.NoError(t, err)
	h, packets, err := Decode(b)
	require.NoError(t, err)

	offset, keyPTS := h.SeekOffset(0)
	require.Equal(t, h.Size, offset)
	require.Equal(t, pipeline.ClockTime(0), keyPTS)

	// video keyframes are 200ms apart, audio packets are all keyframes
	target := pipeline.ClockTimeFromDuration(500 * time.Millisecond)
	offset, keyPTS = h.SeekOffset(target)
	require.Equal(t, pipeline.ClockTimeFromDuration(400*time.Millisecond), keyPTS)

	p, _, err := ParseRecord(b[offset:], len(h.Streams))
	require.NoError(t, err)
	require.LessOrEqual(t, p.PTS, keyPTS)
	require.NotZero(t, p.Flags&PacketFlagKeyFrame)

	// every stream must have its last keyframe at or after the offset
	var d demuxer
	d.header = h
	d.reset(offset)
	d.feed(0, b[offset:])
	seen := map[int]bool{}
	for {
		_, pkt, err := d.next()
		if err != nil {
			break
		}
		if pkt.PTS <= target && pkt.Flags&PacketFlagKeyFrame != 0 {
			seen[pkt.Stream] = true
		}
	}
	require.True(t, seen[0])
	require.True(t, seen[1])
	require.NotEmpty(t, packets)
}
