package mediatype

import (
	"fmt"

	"github.com/xaionaro-go/avbridge/types"
)

// CompressionRGB marks uncompressed RGB bitmaps.
const CompressionRGB = uint32(0)

type Rect struct {
	Left, Top, Right, Bottom int
}

// VideoInfoHeader is a raster video description with a bitmap header.
type VideoInfoHeader struct {
	Source          Rect
	Target          Rect
	AvgTimePerFrame types.ReferenceTime
	Width           int
	Height          int
	Planes          int
	BitCount        int
	Compression     uint32
	SizeImage       int
}

func (*VideoInfoHeader) isFormat() {}

func (h *VideoInfoHeader) String() string {
	return fmt.Sprintf(
		"video(%dx%d, %dbpp, compression:0x%08x, size:%d, frame:%s)",
		h.Width, h.Height, h.BitCount, h.Compression, h.SizeImage, h.AvgTimePerFrame,
	)
}
