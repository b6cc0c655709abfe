package gst

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
)

func TestBufferOffsetRoundTrip(t *testing.T) {
	NewFactory(DefaultConfig())

	t.Run("set", func(t *testing.T) {
		buf := pipeline.NewBuffer([]byte{1, 2, 3, 4})
		buf.Offset = 4096
		gstBuf := toGstBuffer(buf)
		require.Equal(t, int64(4096), gstBuf.Offset())
		require.Equal(t, uint64(4096), fromGstBuffer(gstBuf).Offset)
	})

	t.Run("none", func(t *testing.T) {
		gstBuf := toGstBuffer(pipeline.NewBuffer([]byte{1}))
		require.Equal(t, pipeline.BufferOffsetNone, fromGstBuffer(gstBuf).Offset)
	})
}
