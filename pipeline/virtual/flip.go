package virtual

import (
	"github.com/xaionaro-go/avbridge/pipeline"
)

type plane struct {
	stride int
	rows   int
}

func planesOf(info *pipeline.VideoInfo) []plane {
	w, h := info.Width, info.Height
	cw, ch := (w+1)/2, (h+1)/2
	switch info.Format {
	case pipeline.VideoFormatI420, pipeline.VideoFormatYV12:
		return []plane{{w, h}, {cw, ch}, {cw, ch}}
	case pipeline.VideoFormatNV12, pipeline.VideoFormatNV21:
		return []plane{{w, h}, {cw * 2, ch}}
	case pipeline.VideoFormatYUY2, pipeline.VideoFormatUYVY, pipeline.VideoFormatYVYU:
		return []plane{{cw * 4, h}}
	case pipeline.VideoFormatAYUV:
		return []plane{{w * 4, h}}
	case pipeline.VideoFormatGray8:
		return []plane{{w, h}}
	}
	if bits := info.Format.Bits(); bits > 0 {
		return []plane{{w * bits / 8, h}}
	}
	return nil
}

// flipVertically returns a copy of the frame with its rows in the reverse
// order, plane by plane. False is returned when the layout is unknown or
// the data is too short.
func flipVertically(data []byte, info *pipeline.VideoInfo) ([]byte, bool) {
	planes := planesOf(info)
	if planes == nil {
		return data, false
	}
	total := 0
	for _, p := range planes {
		total += p.stride * p.rows
	}
	if len(data) < total {
		return data, false
	}
	out := make([]byte, len(data))
	pos := 0
	for _, p := range planes {
		for row := 0; row < p.rows; row++ {
			src := data[pos+row*p.stride : pos+(row+1)*p.stride]
			dstRow := p.rows - 1 - row
			copy(out[pos+dstRow*p.stride:], src)
		}
		pos += p.stride * p.rows
	}
	copy(out[pos:], data[pos:])
	return out, true
}
