package virtual

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
)

func TestFlipVertically(t *testing.T) {
	info := &pipeline.VideoInfo{Format: pipeline.VideoFormatRGB, Width: 1, Height: 3}
	out, ok := flipVertically([]byte{1, 1, 1, 2, 2, 2, 3, 3, 3}, info)
	require.True(t, ok)
	require.Equal(t, []byte{3, 3, 3, 2, 2, 2, 1, 1, 1}, out)

	info = &pipeline.VideoInfo{Format: pipeline.VideoFormatI420, Width: 2, Height: 2}
	// Y: 2 rows of 2, U: 1x1, V: 1x1
	out, ok = flipVertically([]byte{1, 1, 2, 2, 5, 6}, info)
	require.True(t, ok)
	require.Equal(t, []byte{2, 2, 1, 1, 5, 6}, out)

	_, ok = flipVertically([]byte{1}, info)
	require.False(t, ok)

	_, ok = flipVertically([]byte{1}, &pipeline.VideoInfo{Format: pipeline.VideoFormatUnknown, Width: 1, Height: 1})
	require.False(t, ok)
}
