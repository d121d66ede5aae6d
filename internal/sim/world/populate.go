package world

import (
	"fmt"
	"math"
	"time"

	"github.com/collin2985/chunkstream/internal/protocol"
	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/sim/gen"
	"github.com/collin2985/chunkstream/internal/sim/schedule"
	"github.com/collin2985/chunkstream/internal/sim/world/feature/spacing"
	"github.com/collin2985/chunkstream/internal/sim/world/feature/structures"
)

// minGenSlice is the broker headroom the populator requires before
// starting another placement batch.
const minGenSlice = 300 * time.Microsecond

// populator fills newly created cells with deterministic content across
// many frames. It owns a FIFO queue of cells awaiting population and at
// most one in-flight generation; everything else lives in the world.
type populator struct {
	w      *World
	queue  []Key
	queued map[Key]struct{}
	cur    *genProgress

	// maxSpacing sizes the spacing index buckets; computed once from the
	// category catalog.
	maxSpacing float64
}

// genProgress is the resumable cursor for one cell's generation. It is
// destroyed when the cell finalizes or is invalidated mid-generation.
type genProgress struct {
	key Key

	catIdx    int
	candidate int
	placed    int

	// target is floor(baseTotal x density multiplier) for the current
	// category; candidateCap bounds the candidate ordinal so a cell
	// where spacing can never be satisfied still terminates.
	target       int
	candidateCap int

	catSeed int64
	def     catalogs.CategoryDef
	quality gen.Quality

	spacing *spacing.Index
	pending []*Content
}

func (p *populator) init(w *World) {
	p.w = w
	p.queued = make(map[Key]struct{})
	p.maxSpacing = 8
	if w.cats != nil {
		for _, id := range w.cats.Categories.Order {
			if s := w.cats.Categories.ByID[id].MinSpacing; s > p.maxSpacing {
				p.maxSpacing = s
			}
		}
	}
}

func (p *populator) enqueue(k Key) {
	if _, dup := p.queued[k]; dup {
		return
	}
	if p.cur != nil && p.cur.key == k {
		return
	}
	p.queued[k] = struct{}{}
	p.queue = append(p.queue, k)
}

// invalidate discards any in-flight or queued generation for the cell.
// Pending placements were never registered with physics/nav/scene, so
// discarding the progress struct is the whole undo.
func (p *populator) invalidate(k Key) {
	if p.cur != nil && p.cur.key == k {
		p.cur = nil
		p.w.counters.discarded++
	}
	if _, ok := p.queued[k]; ok {
		delete(p.queued, k)
		for i, q := range p.queue {
			if q == k {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				break
			}
		}
	}
}

// advance runs placement batches while frame budget remains. Called once
// per frame from the world step.
func (p *populator) advance() {
	w := p.w
	if w.deps.Terrain == nil {
		// Not initialized yet; retry next frame.
		return
	}
	for w.broker.HasTime(minGenSlice) {
		if p.cur == nil && !p.next() {
			return
		}
		c := w.liveCell(p.cur.key)
		if c == nil || c.Generated {
			// Left the loaded set while in flight: discard everything
			// unflushed rather than finalize.
			p.cur = nil
			w.counters.discarded++
			continue
		}
		if p.step(c) {
			p.finalize(c)
		}
	}
}

// next pulls the head-of-queue cell and builds its generation cursor,
// seeding the spacing index with placements carried over from loaded
// neighbors so clusters do not form across cell seams.
func (p *populator) next() bool {
	w := p.w
	for len(p.queue) > 0 {
		k := p.queue[0]
		p.queue = p.queue[1:]
		delete(p.queued, k)

		c := w.liveCell(k)
		if c == nil || c.Generated {
			continue
		}

		g := &genProgress{key: k, spacing: spacing.NewIndex(p.maxSpacing)}
		ring := w.cfg.NeighborRing
		for dz := -ring; dz <= ring; dz++ {
			for dx := -ring; dx <= ring; dx++ {
				nk := Key{CX: k.CX + dx, CZ: k.CZ + dz}
				if nk == k {
					continue
				}
				nc := w.cells[nk]
				if nc == nil || !nc.Generated {
					continue
				}
				for _, e := range nc.Content {
					g.spacing.Add(spacing.Point{X: e.X, Z: e.Z})
				}
			}
		}
		p.cur = g
		p.startCategory()
		return true
	}
	return false
}

// startCategory derives the per-category seed and the accepted-placement
// target for the current category index. Categories whose target lands
// at zero are skipped immediately.
func (p *populator) startCategory() {
	w := p.w
	g := p.cur
	for g.catIdx < len(w.cats.Categories.Order) {
		def := w.cats.Categories.ByID[w.cats.Categories.Order[g.catIdx]]
		catSeed := gen.CellSeed(w.cfg.Seed, def.SeedOffset, g.key.CX, g.key.CZ)
		density := gen.DensityMul(catSeed, def.Density.Min, def.Density.Max)
		target := int(math.Floor(float64(def.BaseTotal) * density))
		if target <= 0 {
			g.catIdx++
			continue
		}
		g.def = def
		g.catSeed = catSeed
		g.quality = gen.QualityRange(catSeed, def.Quality.Min, def.Quality.Max, def.Quality.Buckets)
		g.target = target
		g.candidateCap = target * w.cfg.MaxTries * 4
		g.candidate = 0
		g.placed = 0
		return
	}
}

// step runs one bounded batch of candidates for the current category and
// reports whether every category is now exhausted. The broker is
// re-checked between candidates because a single candidate can cost
// several terrain and overlap queries.
func (p *populator) step(c *Cell) bool {
	w := p.w
	g := p.cur
	for i := 0; i < w.cfg.BatchCandidates; i++ {
		if g.catIdx >= len(w.cats.Categories.Order) {
			return true
		}
		if !w.broker.HasTime(minGenSlice) {
			return false
		}
		p.attemptCandidate(c)
		if g.placed >= g.target || g.candidate >= g.candidateCap {
			g.catIdx++
			p.startCategory()
		}
	}
	return g.catIdx >= len(w.cats.Categories.Order)
}

// attemptCandidate rejection-samples one candidate: up to MaxTries
// deterministic positions, validated against terrain gates, the spacing
// index (own placements plus neighbor carry-over) and the physics space.
// Every draw derives from (catSeed, candidate, try, field), never from an
// unseeded source.
func (p *populator) attemptCandidate(c *Cell) {
	w := p.w
	g := p.cur
	cand := g.candidate
	g.candidate++

	ox, oz := gen.CellOrigin(g.key.CX, g.key.CZ, w.cfg.CellSize)
	for try := 0; try < w.cfg.MaxTries; try++ {
		px := ox + gen.InRange(gen.Hash3(g.catSeed, cand, try, 0), 0, w.cfg.CellSize)
		pz := oz + gen.InRange(gen.Hash3(g.catSeed, cand, try, 1), 0, w.cfg.CellSize)

		h := w.deps.Terrain.HeightAt(px, pz)
		if h < g.def.MinAltitude || h > g.def.MaxAltitude {
			continue
		}
		nx, ny, nz := w.deps.Terrain.NormalAt(px, pz)
		if ny <= 0 || math.Hypot(nx, nz)/ny > g.def.MaxSlope {
			continue
		}
		if g.spacing.Near(px, pz, g.def.MinSpacing) {
			continue
		}

		yaw := gen.InRange(gen.Hash3(g.catSeed, cand, try, 2), 0, 2*math.Pi)
		scale := gen.InRange(gen.Hash3(g.catSeed, cand, try, 3), g.def.Scale.Min, g.def.Scale.Max)
		quality := gen.InRange(gen.Hash3(g.catSeed, cand, try, 4), g.quality.Min, g.quality.Max)

		e := &Content{
			ID:          fmt.Sprintf("C%d_%d_%s_%d", g.key.CX, g.key.CZ, g.def.ID, g.placed),
			Cell:        g.key,
			Category:    g.def.ID,
			X:           px,
			Y:           h,
			Z:           pz,
			Yaw:         yaw,
			Scale:       scale,
			Quality:     quality,
			Shape:       g.def.Shape,
			HalfExtents: g.def.HalfExtents,
			NavRadius:   g.def.NavRadius,
		}
		if w.deps.Physics != nil && w.deps.Physics.Overlaps(e.box(), MaskStatic) {
			continue
		}
		g.spacing.Add(spacing.Point{X: px, Z: pz})
		g.pending = append(g.pending, e)
		g.placed++
		return
	}
}

// finalize commits the in-progress generation: tombstones are re-applied
// (dropped entries still consumed their deterministic ordinals, so peers
// with and without the tombstone agree on every other id), the survivors
// merge into the permanent content list, registration and broadcast are
// requested, and a satisfied rare-structure predicate triggers its
// one-shot pass.
func (p *populator) finalize(c *Cell) {
	w := p.w
	g := p.cur
	p.cur = nil

	var entries []protocol.PlacementEntry
	var rows []PlacementRow
	for _, e := range g.pending {
		if _, dead := c.Tombstones[e.ID]; dead {
			continue
		}
		c.Content[e.ID] = e
		entries = append(entries, placementEntry(e))
		rows = append(rows, placementRow(e))
	}
	c.Generated = true
	w.counters.finalized++

	w.submitRegistration(c.Key)
	w.broadcastPlace(c.Key, entries)
	if w.deps.Index != nil && len(rows) > 0 {
		w.deps.Index.WritePlacements(w.broker.Seq(), [2]int{c.Key.CX, c.Key.CZ}, rows)
	}
	w.journal(journalCellGenerated{
		Frame:   w.broker.Seq(),
		Cell:    [2]int{c.Key.CX, c.Key.CZ},
		Content: len(c.Content),
	})

	if def, ok := structures.Pick(w.cfg.Seed, &w.cats.Structures, c.Key.CX, c.Key.CZ); ok {
		k := c.Key
		w.sched.Submit(schedule.Task{
			Kind: schedule.KindGenerate,
			Tier: schedule.TierNormal,
			ID:   k.RegionKey() + "structures",
			Run:  func() error { return w.placeStructure(k, def) },
		})
	}
}

// placeStructure runs the one-shot rare-structure pass. It uses the
// structure's own seed offset, so whether it runs never perturbs the
// ordinary category draws.
func (w *World) placeStructure(k Key, def catalogs.StructureDef) error {
	c := w.liveCell(k)
	if c == nil || !c.Generated {
		return nil
	}
	parts := structures.Layout(w.cfg.Seed, def, k.CX, k.CZ, w.cfg.CellSize)

	var entries []protocol.PlacementEntry
	var rows []PlacementRow
	for i, part := range parts {
		id := fmt.Sprintf("S%d_%d_%s_%d", k.CX, k.CZ, def.ID, i)
		if _, dead := c.Tombstones[id]; dead {
			continue
		}
		y := 0.0
		if w.deps.Terrain != nil {
			y = w.deps.Terrain.HeightAt(part.X, part.Z)
		}
		e := &Content{
			ID:          id,
			Cell:        k,
			Category:    def.ID,
			Kind:        part.Kind,
			X:           part.X,
			Y:           y,
			Z:           part.Z,
			Yaw:         part.Yaw,
			Scale:       1,
			Quality:     1,
			Shape:       part.Shape,
			HalfExtents: part.HalfExtents,
			NavRadius:   part.NavRadius,
		}
		c.Content[id] = e
		entries = append(entries, placementEntry(e))
		rows = append(rows, placementRow(e))
	}
	w.counters.structures++

	w.submitRegistration(k)
	w.broadcastPlace(k, entries)
	if w.deps.Index != nil && len(rows) > 0 {
		w.deps.Index.WritePlacements(w.broker.Seq(), [2]int{k.CX, k.CZ}, rows)
	}
	w.journal(journalStructure{
		Frame:     w.broker.Seq(),
		Cell:      [2]int{k.CX, k.CZ},
		Structure: def.ID,
		Parts:     len(entries),
	})
	return nil
}

func placementEntry(e *Content) protocol.PlacementEntry {
	return protocol.PlacementEntry{
		ID:       e.ID,
		Category: e.Category,
		Kind:     e.Kind,
		Pos:      [3]float64{e.X, e.Y, e.Z},
		Yaw:      e.Yaw,
		Scale:    e.Scale,
		Quality:  e.Quality,
	}
}

func placementRow(e *Content) PlacementRow {
	return PlacementRow{
		ID:       e.ID,
		Category: e.Category,
		Kind:     e.Kind,
		X:        e.X,
		Y:        e.Y,
		Z:        e.Z,
		Yaw:      e.Yaw,
		Scale:    e.Scale,
		Quality:  e.Quality,
	}
}

// Generating reports whether a generation is in flight or queued.
func (w *World) Generating() bool {
	return w.pop.cur != nil || len(w.pop.queue) > 0
}
