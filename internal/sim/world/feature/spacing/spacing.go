// Package spacing answers "is anything within r of this point" for the
// populator's rejection sampling. A uniform bucket grid keeps the check
// O(points in nearby buckets) instead of scanning every placement in the
// cell and its neighbors.
package spacing

import "math"

type Point struct {
	X float64
	Z float64
}

type Index struct {
	bucket float64
	cells  map[[2]int][]Point
	n      int
}

// NewIndex sizes buckets to the largest spacing radius that will be
// queried, so a query never has to look past the 3x3 bucket block.
func NewIndex(maxRadius float64) *Index {
	if maxRadius <= 0 {
		maxRadius = 8
	}
	return &Index{bucket: maxRadius, cells: make(map[[2]int][]Point)}
}

func (ix *Index) key(x, z float64) [2]int {
	return [2]int{int(math.Floor(x / ix.bucket)), int(math.Floor(z / ix.bucket))}
}

func (ix *Index) Add(p Point) {
	k := ix.key(p.X, p.Z)
	ix.cells[k] = append(ix.cells[k], p)
	ix.n++
}

// Near reports whether any indexed point lies within r of (x,z).
// r must not exceed the radius the index was built with.
func (ix *Index) Near(x, z, r float64) bool {
	if r <= 0 {
		return false
	}
	k := ix.key(x, z)
	r2 := r * r
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			for _, p := range ix.cells[[2]int{k[0] + dx, k[1] + dz}] {
				ddx := p.X - x
				ddz := p.Z - z
				if ddx*ddx+ddz*ddz < r2 {
					return true
				}
			}
		}
	}
	return false
}

func (ix *Index) Len() int { return ix.n }
