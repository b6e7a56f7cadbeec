package engine

import "math"

// UnwrapDegrees converts a time-ordered sequence of wrapped angles in degrees
// into a continuous sequence in radians, removing 2π discontinuities: whenever
// a raw step exceeds π in magnitude it is shifted by whole turns so that every
// successive difference lands in (-π, π].
//
// The input must be in strictly increasing timestamp order. The unwrapper has
// no notion of gaps; callers decide whether a window with an oversized gap is
// usable at all (see SelectWindow).
func UnwrapDegrees(deg []float64) []float64 {
	out := make([]float64, len(deg))
	if len(deg) == 0 {
		return out
	}

	out[0] = deg[0] * math.Pi / 180
	shift := 0.0
	prev := out[0]
	for i := 1; i < len(deg); i++ {
		rad := deg[i] * math.Pi / 180
		d := rad - prev
		adj := math.Mod(d+math.Pi, 2*math.Pi)
		if adj < 0 {
			adj += 2 * math.Pi
		}
		adj -= math.Pi
		// Map a raw +π step to +π, not -π, so differences stay in (-π, π].
		if adj == -math.Pi && d > 0 {
			adj = math.Pi
		}
		shift += adj - d
		out[i] = rad + shift
		prev = rad
	}
	return out
}
