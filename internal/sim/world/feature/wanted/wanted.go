// Package wanted computes which cells should exist around an observer and
// the order newly-needed cells should be created in. Pure functions; the
// lifecycle manager owns the state.
package wanted

import (
	"math"
	"sort"

	"github.com/collin2985/chunkstream/internal/sim/gen"
)

type Key struct {
	CX int
	CZ int
}

// Square returns the (2r+1)^2 neighborhood around the center cell.
func Square(center Key, radius int) map[Key]struct{} {
	if radius < 0 {
		radius = 0
	}
	out := make(map[Key]struct{}, (2*radius+1)*(2*radius+1))
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			out[Key{CX: center.CX + dx, CZ: center.CZ + dz}] = struct{}{}
		}
	}
	return out
}

// Diff splits want against have into cells to create and cells to drop.
// keep is the hysteresis set; cells inside keep are never dropped even
// when they left want.
func Diff(have map[Key]struct{}, want, keep map[Key]struct{}) (create, drop []Key) {
	for k := range want {
		if _, ok := have[k]; !ok {
			create = append(create, k)
		}
	}
	for k := range have {
		if _, ok := keep[k]; !ok {
			drop = append(drop, k)
		}
	}
	return create, drop
}

// Score is the creation priority key: Manhattan distance minus the
// alignment of the cell's direction with the observer's recent movement,
// scaled by alignWeight. Lower runs first, so near cells ahead of travel
// beat near cells behind. The weighting is a tuned heuristic; any order
// is correct, this one just hides loading seams better.
func Score(center Key, k Key, moveX, moveZ float64, alignWeight float64) float64 {
	d := float64(gen.Manhattan(center.CX, center.CZ, k.CX, k.CZ))
	if moveX == 0 && moveZ == 0 {
		return d
	}
	dx := float64(k.CX - center.CX)
	dz := float64(k.CZ - center.CZ)
	n := math.Hypot(dx, dz)
	if n == 0 {
		return d - alignWeight
	}
	m := math.Hypot(moveX, moveZ)
	align := (dx*moveX + dz*moveZ) / (n * m)
	return d - alignWeight*align
}

// SortByPriority orders keys by Score ascending, breaking ties on CX
// then CZ so the order is stable across peers and runs.
func SortByPriority(keys []Key, center Key, moveX, moveZ float64, alignWeight float64) {
	sort.Slice(keys, func(i, j int) bool {
		si := Score(center, keys[i], moveX, moveZ, alignWeight)
		sj := Score(center, keys[j], moveX, moveZ, alignWeight)
		if si != sj {
			return si < sj
		}
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
}
