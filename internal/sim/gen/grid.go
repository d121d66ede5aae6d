package gen

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CellOf maps a world position to its cell coordinate. size > 0.
func CellOf(wx, wz, size float64) (int, int) {
	return int(math.Floor(wx / size)), int(math.Floor(wz / size))
}

// CellOrigin is the minimum-corner world position of a cell.
func CellOrigin(cx, cz int, size float64) (float64, float64) {
	return float64(cx) * size, float64(cz) * size
}

func Manhattan(ax, az, bx, bz int) int {
	return AbsInt(ax-bx) + AbsInt(az-bz)
}
