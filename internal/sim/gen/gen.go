// Package gen derives reproducible values from a world seed and cell
// coordinates. Every function is pure; independent peers evaluating the
// same inputs get byte-identical results.
package gen

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0,1) using the top 53 bits.
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// InRange maps a hash to [lo,hi).
func InRange(h uint64, lo, hi float64) float64 {
	return lo + Unit(h)*(hi-lo)
}

// PermilleOf maps a hash to 0..999.
func PermilleOf(h uint64) int {
	return int(h % 1000)
}

// CellSeed is the root seed for one content category in one cell. The
// category offset keeps draw streams disjoint between categories sharing
// a cell; draw ordinals keep them disjoint within a category.
func CellSeed(worldSeed, categoryOffset int64, cx, cz int) int64 {
	return int64(Hash2(worldSeed+categoryOffset, cx, cz))
}

// Draw ordinals below zero are reserved for cell-level values so they can
// never collide with per-candidate draws (candidate, try, field >= 0).
const (
	drawDensity = -1
	drawQuality = -2
)

// DensityMul returns the cell's density multiplier in [lo,hi).
func DensityMul(cellSeed int64, lo, hi float64) float64 {
	return InRange(Hash3(cellSeed, drawDensity, 0, 0), lo, hi)
}

type Quality struct {
	Min float64
	Max float64
}

// QualityRange picks the cell's quality bucket for a category: [lo,hi] is
// split into buckets equal spans and the cell lands deterministically in
// one of them.
func QualityRange(cellSeed int64, lo, hi float64, buckets int) Quality {
	if buckets <= 1 {
		return Quality{Min: lo, Max: hi}
	}
	span := (hi - lo) / float64(buckets)
	idx := int(Hash3(cellSeed, drawQuality, 0, 0) % uint64(buckets))
	return Quality{Min: lo + span*float64(idx), Max: lo + span*float64(idx+1)}
}
