package types

import (
	"fmt"
	"math"
)

type Rational struct {
	Num int
	Den int
}

func (r Rational) Reverse() Rational {
	return Rational{
		Num: r.Den,
		Den: r.Num,
	}
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ScaleInt64 returns v*Num/Den, and false if the result is undefined
// (zero denominator) or does not fit into int64.
func (r Rational) ScaleInt64(v int64) (int64, bool) {
	if r.Den == 0 {
		return 0, false
	}
	num, den := int64(r.Num), int64(r.Den)
	if den < 0 {
		num, den = -num, -den
	}
	if v != 0 && num != 0 {
		if absInt64(v) > math.MaxInt64/absInt64(num) {
			return 0, false
		}
	}
	return v * num / den, true
}

func absInt64(v int64) int64 {
	if v < 0 {
		if v == math.MinInt64 {
			return math.MaxInt64
		}
		return -v
	}
	return v
}
