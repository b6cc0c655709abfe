package pipeline

type VideoFormat int

const (
	VideoFormatUnknown = VideoFormat(iota)
	VideoFormatI420
	VideoFormatYV12
	VideoFormatNV12
	VideoFormatNV21
	VideoFormatYUY2
	VideoFormatUYVY
	VideoFormatYVYU
	VideoFormatAYUV
	VideoFormatRGB
	VideoFormatBGR
	VideoFormatRGBx
	VideoFormatBGRx
	VideoFormatXRGB
	VideoFormatXBGR
	VideoFormatRGBA
	VideoFormatBGRA
	VideoFormatARGB
	VideoFormatABGR
	VideoFormatRGB16
	VideoFormatRGB15
	VideoFormatGray8
)

var videoFormatNames = map[VideoFormat]string{
	VideoFormatI420:  "I420",
	VideoFormatYV12:  "YV12",
	VideoFormatNV12:  "NV12",
	VideoFormatNV21:  "NV21",
	VideoFormatYUY2:  "YUY2",
	VideoFormatUYVY:  "UYVY",
	VideoFormatYVYU:  "YVYU",
	VideoFormatAYUV:  "AYUV",
	VideoFormatRGB:   "RGB",
	VideoFormatBGR:   "BGR",
	VideoFormatRGBx:  "RGBx",
	VideoFormatBGRx:  "BGRx",
	VideoFormatXRGB:  "xRGB",
	VideoFormatXBGR:  "xBGR",
	VideoFormatRGBA:  "RGBA",
	VideoFormatBGRA:  "BGRA",
	VideoFormatARGB:  "ARGB",
	VideoFormatABGR:  "ABGR",
	VideoFormatRGB16: "RGB16",
	VideoFormatRGB15: "RGB15",
	VideoFormatGray8: "GRAY8",
}

func VideoFormatFromString(s string) VideoFormat {
	for f, name := range videoFormatNames {
		if name == s {
			return f
		}
	}
	return VideoFormatUnknown
}

func (f VideoFormat) String() string {
	if name, ok := videoFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

func (f VideoFormat) IsRGB() bool {
	switch f {
	case VideoFormatRGB, VideoFormatBGR,
		VideoFormatRGBx, VideoFormatBGRx, VideoFormatXRGB, VideoFormatXBGR,
		VideoFormatRGBA, VideoFormatBGRA, VideoFormatARGB, VideoFormatABGR,
		VideoFormatRGB16, VideoFormatRGB15:
		return true
	}
	return false
}

// Bits returns the amount of bits per pixel of packed RGB formats, and 0
// for everything else.
func (f VideoFormat) Bits() int {
	switch f {
	case VideoFormatRGB15, VideoFormatRGB16:
		return 16
	case VideoFormatRGB, VideoFormatBGR:
		return 24
	case VideoFormatRGBx, VideoFormatBGRx, VideoFormatXRGB, VideoFormatXBGR,
		VideoFormatRGBA, VideoFormatBGRA, VideoFormatARGB, VideoFormatABGR:
		return 32
	}
	return 0
}

// FourCC returns the four-character code of YUV formats, and 0 when the
// format has none.
func (f VideoFormat) FourCC() uint32 {
	switch f {
	case VideoFormatI420, VideoFormatYV12, VideoFormatNV12, VideoFormatNV21,
		VideoFormatYUY2, VideoFormatUYVY, VideoFormatYVYU, VideoFormatAYUV:
		name := videoFormatNames[f]
		return uint32(name[0]) | uint32(name[1])<<8 | uint32(name[2])<<16 | uint32(name[3])<<24
	}
	return 0
}
