// Package mediatype describes the media types negotiated on graph ports and
// derives them from pipeline caps.
package mediatype

import (
	"fmt"

	"github.com/xaionaro-go/avbridge/types"
)

type Subtype string

const (
	SubtypeNone      = Subtype("")
	SubtypeAny       = Subtype("*")
	SubtypePCM       = Subtype("PCM")
	SubtypeIEEEFloat = Subtype("IEEE_FLOAT")
	SubtypeRGB555    = Subtype("RGB555")
	SubtypeRGB565    = Subtype("RGB565")
	SubtypeRGB24     = Subtype("RGB24")
	SubtypeRGB32     = Subtype("RGB32")
)

// SubtypeFromFourCC returns the subtype identified by a four-character code.
func SubtypeFromFourCC(fourCC uint32) Subtype {
	return Subtype([]byte{
		byte(fourCC),
		byte(fourCC >> 8),
		byte(fourCC >> 16),
		byte(fourCC >> 24),
	})
}

// Format is the type-specific format block of a MediaType.
type Format interface {
	fmt.Stringer
	isFormat()
}

type MediaType struct {
	Major               types.MediaType
	Subtype             Subtype
	FixedSizeSamples    bool
	TemporalCompression bool
	SampleSize          int
	Format              Format
}

// NewStream returns the type of a byte stream of the given container.
func NewStream(subtype Subtype) *MediaType {
	return &MediaType{
		Major:   types.MediaTypeStream,
		Subtype: subtype,
	}
}

func (mt *MediaType) String() string {
	if mt == nil {
		return "<nil>"
	}
	if mt.Format == nil {
		return fmt.Sprintf("%s/%s", mt.Major, mt.Subtype)
	}
	return fmt.Sprintf("%s/%s: %s", mt.Major, mt.Subtype, mt.Format)
}

func (mt *MediaType) WaveFormat() (*WaveFormat, bool) {
	if mt == nil {
		return nil, false
	}
	f, ok := mt.Format.(*WaveFormat)
	return f, ok
}

func (mt *MediaType) VideoInfo() (*VideoInfoHeader, bool) {
	if mt == nil {
		return nil, false
	}
	f, ok := mt.Format.(*VideoInfoHeader)
	return f, ok
}
