package ceremony

import "math"

// DefaultDecayRate is the k used when config gives none.
const DefaultDecayRate = 0.15

// Decay applies the nightly exposure decay: v shrinks with hours since its
// last update, scaled by v·(1−v) so the effect vanishes at both extremes
// (0 is a floor, 1 is a stability ceiling) and peaks near the midpoint.
// The logarithmic time term keeps long gaps from collapsing a value in one
// step. The result is always clamped to [0, 1].
func Decay(v, hours, k float64) float64 {
	if hours <= 0 || k <= 0 {
		return clamp01(v)
	}
	v = clamp01(v)
	if v == 0 || v == 1 {
		return v
	}
	decayed := v - k*math.Log1p(hours)*v*(1-v)
	return clamp01(decayed)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
