// Package timeutil provides clock-skew helpers used by the session manager.
package timeutil

import (
	"math"
	"time"
)

// SkewSecondsCeil rounds d up to whole seconds, floored at zero.
func SkewSecondsCeil(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return int64(secs)
}

// NormalizeSkew rounds a configured clock-skew duration up to whole seconds.
func NormalizeSkew(d time.Duration) time.Duration {
	return time.Duration(SkewSecondsCeil(d)) * time.Second
}

// AddSkewUnix adds a clock-skew allowance to a Unix timestamp, saturating at
// math.MaxInt64 instead of overflowing.
func AddSkewUnix(unix int64, skew time.Duration) int64 {
	add := SkewSecondsCeil(skew)
	if add == 0 {
		return unix
	}
	if unix > math.MaxInt64-add {
		return math.MaxInt64
	}
	return unix + add
}
