package util

// adapted from the fixed-point helpers in linux/fixp-arith.h

// FixpLinearInterpolate maps x on the segment (x0,y0)-(x1,y1) using integer
// arithmetic only, rounding to the nearest value. A degenerate segment
// (x1 == x0) yields y0, so scaling out of an empty range is well defined.
func FixpLinearInterpolate(x0, y0, x1, y1, x int) int {
	if x1 == x0 {
		return y0
	}

	num := (y1 - y0) * (x - x0)
	den := x1 - x0
	if den < 0 {
		num, den = -num, -den
	}
	if num < 0 {
		return y0 - (-num+den/2)/den
	}
	return y0 + (num+den/2)/den
}
