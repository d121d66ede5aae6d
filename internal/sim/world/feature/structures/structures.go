// Package structures decides whether a cell hosts a rare structure and
// lays out its parts. Rolls use each structure's own seed offset so the
// outcome never perturbs the ordinary category draw sequence, and a cell
// hosts at most one structure (first catalog-order hit wins).
package structures

import (
	"math"

	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/sim/gen"
)

// Roll reports whether the structure lands in the cell. Cells too close
// to the world origin never roll a structure, keeping the start area
// predictable.
func Roll(worldSeed int64, def catalogs.StructureDef, cx, cz int) bool {
	if gen.AbsInt(cx) < def.MinOriginCells && gen.AbsInt(cz) < def.MinOriginCells {
		return false
	}
	h := gen.Hash2(worldSeed+def.SeedOffset, cx, cz)
	return gen.PermilleOf(h) < def.ChancePermille
}

// Pick returns the first structure in catalog order that rolls for the
// cell, or false.
func Pick(worldSeed int64, cat *catalogs.StructureCatalog, cx, cz int) (catalogs.StructureDef, bool) {
	for _, id := range cat.Order {
		def := cat.ByID[id]
		if Roll(worldSeed, def, cx, cz) {
			return def, true
		}
	}
	return catalogs.StructureDef{}, false
}

// Part is one placed structure piece in world coordinates.
type Part struct {
	Kind        string
	X, Z        float64
	Yaw         float64
	Shape       string
	HalfExtents [3]float64
	NavRadius   float64
}

// Layout anchors the structure deterministically inside the cell's inner
// area (parts offset from the anchor, so the anchor keeps a margin from
// the cell edge) and yaws the whole footprint as one rigid group.
func Layout(worldSeed int64, def catalogs.StructureDef, cx, cz int, cellSize float64) []Part {
	seed := gen.CellSeed(worldSeed, def.SeedOffset, cx, cz)
	ox, oz := gen.CellOrigin(cx, cz, cellSize)

	margin := cellSize * 0.2
	ax := ox + margin + gen.InRange(gen.Hash3(seed, 0, 0, 0), 0, cellSize-2*margin)
	az := oz + margin + gen.InRange(gen.Hash3(seed, 0, 0, 1), 0, cellSize-2*margin)
	yaw := gen.InRange(gen.Hash3(seed, 0, 0, 2), 0, 2*math.Pi)

	sinY, cosY := math.Sin(yaw), math.Cos(yaw)
	out := make([]Part, 0, len(def.Parts))
	for _, p := range def.Parts {
		rx := p.DX*cosY - p.DZ*sinY
		rz := p.DX*sinY + p.DZ*cosY
		out = append(out, Part{
			Kind:        p.Kind,
			X:           ax + rx,
			Z:           az + rz,
			Yaw:         yaw,
			Shape:       p.Shape,
			HalfExtents: p.HalfExtents,
			NavRadius:   p.NavRadius,
		})
	}
	return out
}
