package particle

// EaseOutCubic maps linear progress t in [0, 1] onto a cubic ease-out
// curve: fast at the start, settling gently at the end. Inputs outside
// the range are clamped.
func EaseOutCubic(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	u := 1 - t
	return 1 - u*u*u
}

// Lerp linearly interpolates between a and b by t.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
