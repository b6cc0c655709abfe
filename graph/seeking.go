package graph

import (
	"fmt"
	"strings"
)

type SeekingCapabilities uint32

const (
	SeekingCanSeekAbsolute = SeekingCapabilities(1 << iota)
	SeekingCanSeekForwards
	SeekingCanSeekBackwards
	SeekingCanGetCurrentPos
	SeekingCanGetStopPos
	SeekingCanGetDuration
	SeekingCanPlayBackwards
	SeekingCanDoSegments
	SeekingSource
)

func (c SeekingCapabilities) Has(caps SeekingCapabilities) bool {
	return c&caps == caps
}

// SeekingFlags modify a position passed to SetPositions.
type SeekingFlags uint32

const (
	SeekingNoPositioning       = SeekingFlags(0x0)
	SeekingAbsolutePositioning = SeekingFlags(0x1)
	SeekingRelativePositioning = SeekingFlags(0x2)
	SeekingIncrementalPosition = SeekingFlags(0x3)
	SeekingPositioningBitsMask = SeekingFlags(0x3)
	SeekingSeekToKeyFrame      = SeekingFlags(0x4)
	SeekingReturnTime          = SeekingFlags(0x8)
	SeekingSegment             = SeekingFlags(0x10)
	SeekingNoFlush             = SeekingFlags(0x20)
)

func (f SeekingFlags) Positioning() SeekingFlags {
	return f & SeekingPositioningBitsMask
}

func (f SeekingFlags) String() string {
	var parts []string
	switch f.Positioning() {
	case SeekingNoPositioning:
		parts = append(parts, "none")
	case SeekingAbsolutePositioning:
		parts = append(parts, "absolute")
	case SeekingRelativePositioning:
		parts = append(parts, "relative")
	case SeekingIncrementalPosition:
		parts = append(parts, "incremental")
	}
	if f&SeekingSeekToKeyFrame != 0 {
		parts = append(parts, "keyframe")
	}
	if f&SeekingSegment != 0 {
		parts = append(parts, "segment")
	}
	if f&SeekingNoFlush != 0 {
		parts = append(parts, "noflush")
	}
	return strings.Join(parts, "|")
}

type TimeFormat int

const (
	TimeFormatNone = TimeFormat(iota)
	TimeFormatMediaTime
	TimeFormatByte
	TimeFormatFrame
	TimeFormatSample
	TimeFormatField
)

func (f TimeFormat) String() string {
	switch f {
	case TimeFormatNone:
		return "none"
	case TimeFormatMediaTime:
		return "media-time"
	case TimeFormatByte:
		return "byte"
	case TimeFormatFrame:
		return "frame"
	case TimeFormatSample:
		return "sample"
	case TimeFormatField:
		return "field"
	}
	return fmt.Sprintf("unknown-time-format-%d", int(f))
}
