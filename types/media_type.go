// media_type.go defines the MediaType enum of elementary stream families.

package types

import "fmt"

type MediaType int

const (
	MediaTypeUnknown = MediaType(-0x1)
	MediaTypeVideo   = MediaType(0x0)
	MediaTypeAudio   = MediaType(0x1)
	MediaTypeStream  = MediaType(0x2)
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeStream:
		return "stream"
	case MediaTypeUnknown:
		return "unknown"
	default:
		return "MediaType(" + fmt.Sprintf("%d", int(t)) + ")"
	}
}
