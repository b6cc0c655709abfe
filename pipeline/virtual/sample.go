package virtual

import (
	"time"

	"github.com/xaionaro-go/avbridge/pipeline"
)

type SampleParams struct {
	Duration time.Duration

	AudioPacketDuration time.Duration
	AudioRate           int
	AudioChannels       int

	VideoWidth       int
	VideoHeight      int
	VideoFPS         int
	KeyFrameInterval int

	// NoAudio and NoVideo drop the respective stream.
	NoAudio bool
	NoVideo bool

	// ExtraStreams are appended as is, without packets.
	ExtraStreams []StreamInfo
}

func (p SampleParams) withDefaults() SampleParams {
	if p.Duration <= 0 {
		p.Duration = time.Second
	}
	if p.AudioPacketDuration <= 0 {
		p.AudioPacketDuration = 20 * time.Millisecond
	}
	if p.AudioRate <= 0 {
		p.AudioRate = 48000
	}
	if p.AudioChannels <= 0 {
		p.AudioChannels = 2
	}
	if p.VideoWidth <= 0 {
		p.VideoWidth = 4
	}
	if p.VideoHeight <= 0 {
		p.VideoHeight = 2
	}
	if p.VideoFPS <= 0 {
		p.VideoFPS = 25
	}
	if p.KeyFrameInterval <= 0 {
		p.KeyFrameInterval = 5
	}
	return p
}

// SampleContainer generates a container with an S16LE audio stream and an
// RGB video stream, interleaved by timestamp. Payload bytes encode the
// packet sequence number.
func SampleContainer(params SampleParams) *Container {
	params = params.withDefaults()
	c := &Container{}
	duration := pipeline.ClockTimeFromDuration(params.Duration)

	audioStream, videoStream := -1, -1
	if !params.NoAudio {
		audioStream = len(c.Streams)
		c.Streams = append(c.Streams, StreamInfo{
			Caps: pipeline.NewCaps(pipeline.CapsNameRawAudio, map[string]any{
				"format":   "S16LE",
				"rate":     params.AudioRate,
				"channels": params.AudioChannels,
				"layout":   "interleaved",
			}),
			Decoder:  "Virtual PCM Decoder",
			Duration: duration,
		})
	}
	if !params.NoVideo {
		videoStream = len(c.Streams)
		c.Streams = append(c.Streams, StreamInfo{
			Caps: pipeline.NewCaps(pipeline.CapsNameRawVideo, map[string]any{
				"format":    "RGB",
				"width":     params.VideoWidth,
				"height":    params.VideoHeight,
				"framerate": Fraction(params.VideoFPS, 1),
			}),
			Decoder:  "Virtual Raw Video Decoder",
			Duration: duration,
		})
	}
	c.Streams = append(c.Streams, params.ExtraStreams...)

	audioStep := params.AudioPacketDuration
	audioSize := int(int64(params.AudioRate)*int64(audioStep)/int64(time.Second)) * params.AudioChannels * 2
	videoStep := time.Second / time.Duration(params.VideoFPS)
	videoSize := params.VideoWidth * params.VideoHeight * 3

	var audioTS, videoTS time.Duration
	audioSeq, videoSeq := 0, 0
	for {
		audioLeft := audioStream >= 0 && audioTS < params.Duration
		videoLeft := videoStream >= 0 && videoTS < params.Duration
		if !audioLeft && !videoLeft {
			break
		}
		if audioLeft && (!videoLeft || audioTS <= videoTS) {
			c.Packets = append(c.Packets, Packet{
				Stream:   audioStream,
				Flags:    PacketFlagKeyFrame,
				PTS:      pipeline.ClockTimeFromDuration(audioTS),
				Duration: pipeline.ClockTimeFromDuration(audioStep),
				Payload:  fill(audioSize, audioSeq),
			})
			audioSeq++
			audioTS += audioStep
			continue
		}
		var flags PacketFlags
		if videoSeq%params.KeyFrameInterval == 0 {
			flags |= PacketFlagKeyFrame
		}
		c.Packets = append(c.Packets, Packet{
			Stream:   videoStream,
			Flags:    flags,
			PTS:      pipeline.ClockTimeFromDuration(videoTS),
			Duration: pipeline.ClockTimeFromDuration(videoStep),
			Payload:  fill(videoSize, videoSeq),
		})
		videoSeq++
		videoTS += videoStep
	}
	return c
}

func fill(size, seq int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(seq)
	}
	return b
}
