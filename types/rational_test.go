package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRationalScaleInt64(t *testing.T) {
	v, ok := Rational{Num: 1001, Den: 30000}.ScaleInt64(10_000_000)
	require.True(t, ok)
	require.Equal(t, int64(333666), v)

	_, ok = Rational{Num: 1, Den: 0}.ScaleInt64(10)
	require.False(t, ok)

	_, ok = Rational{Num: math.MaxInt32, Den: 1}.ScaleInt64(math.MaxInt64 / 2)
	require.False(t, ok)

	v, ok = Rational{Num: 1, Den: -2}.ScaleInt64(10)
	require.True(t, ok)
	require.Equal(t, int64(-5), v)
}
