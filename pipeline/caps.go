// caps.go provides the negotiated stream capabilities and their raw audio
// and raw video interpretations.

package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xaionaro-go/avbridge/types"
)

const (
	CapsNameRawAudio = "audio/x-raw"
	CapsNameRawVideo = "video/x-raw"
)

type Caps struct {
	Name   string
	Fields map[string]any
}

func NewCaps(name string, fields map[string]any) *Caps {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Caps{Name: name, Fields: fields}
}

func (c *Caps) String() string {
	if c == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(c.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=%v", k, c.Fields[k])
	}
	return b.String()
}

// Family returns the part of the name before the slash ("audio", "video", ...).
func (c *Caps) Family() string {
	if c == nil {
		return ""
	}
	family, _, _ := strings.Cut(c.Name, "/")
	return family
}

func (c *Caps) Int(key string) (int, bool) {
	switch v := c.Fields[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint32:
		return int(v), true
	}
	return 0, false
}

func (c *Caps) Str(key string) (string, bool) {
	v, ok := c.Fields[key].(string)
	return v, ok
}

func (c *Caps) Fraction(key string) (types.Rational, bool) {
	switch v := c.Fields[key].(type) {
	case types.Rational:
		return v, true
	case *types.Rational:
		if v == nil {
			return types.Rational{}, false
		}
		return *v, true
	}
	return types.Rational{}, false
}

type AudioInfo struct {
	Format   AudioFormat
	Rate     int
	Channels int
}

func ParseAudioInfo(caps *Caps) (*AudioInfo, error) {
	if caps == nil || caps.Name != CapsNameRawAudio {
		return nil, fmt.Errorf("not raw audio caps: %s", caps)
	}
	formatName, ok := caps.Str("format")
	if !ok {
		return nil, fmt.Errorf("no 'format' in caps %s", caps)
	}
	format := AudioFormatFromString(formatName)
	if format == AudioFormatUnknown {
		return nil, fmt.Errorf("unknown audio format '%s'", formatName)
	}
	rate, ok := caps.Int("rate")
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("invalid 'rate' in caps %s", caps)
	}
	channels, ok := caps.Int("channels")
	if !ok || channels <= 0 {
		return nil, fmt.Errorf("invalid 'channels' in caps %s", caps)
	}
	return &AudioInfo{
		Format:   format,
		Rate:     rate,
		Channels: channels,
	}, nil
}

type VideoInfo struct {
	Format    VideoFormat
	Width     int
	Height    int
	FrameRate types.Rational
}

func ParseVideoInfo(caps *Caps) (*VideoInfo, error) {
	if caps == nil || caps.Name != CapsNameRawVideo {
		return nil, fmt.Errorf("not raw video caps: %s", caps)
	}
	formatName, ok := caps.Str("format")
	if !ok {
		return nil, fmt.Errorf("no 'format' in caps %s", caps)
	}
	format := VideoFormatFromString(formatName)
	if format == VideoFormatUnknown {
		return nil, fmt.Errorf("unknown video format '%s'", formatName)
	}
	width, ok := caps.Int("width")
	if !ok || width <= 0 {
		return nil, fmt.Errorf("invalid 'width' in caps %s", caps)
	}
	height, ok := caps.Int("height")
	if !ok || height <= 0 {
		return nil, fmt.Errorf("invalid 'height' in caps %s", caps)
	}
	frameRate, _ := caps.Fraction("framerate")
	return &VideoInfo{
		Format:    format,
		Width:     width,
		Height:    height,
		FrameRate: frameRate,
	}, nil
}
