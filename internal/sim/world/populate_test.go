package world

import (
	"strings"
	"testing"
	"time"

	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/terrain"
)

func TestPopulate_DensityYieldsExactTarget(t *testing.T) {
	// Density band pinned to a single value and spacing disabled: the
	// accepted count must be exactly floor(base x density), no matter
	// how many candidates were rejected along the way.
	cat := testCategory("grass", 201, 500, 0, 0.75, 0.75)
	env := newTestEnv(testCatalogs(cat), func(c *Config) {
		c.LoadRadius = 0
	})
	w := env.w

	env.frame(moveTo(1, 1))
	env.settle(500)

	origin := Key{CX: 0, CZ: 0}
	c := w.cells[origin]
	if c == nil || !c.Generated {
		t.Fatalf("origin cell not generated")
	}
	want := 375 // floor(500 * 0.75)
	if got := len(c.Content); got != want {
		t.Fatalf("placed %d entities, want exactly %d", got, want)
	}
}

func TestPopulate_SpacingRespected(t *testing.T) {
	cat := testCategory("rock", 202, 40, 6, 1.0, 1.0)
	env := newTestEnv(testCatalogs(cat), func(c *Config) {
		c.LoadRadius = 0
	})
	w := env.w

	env.frame(moveTo(1, 1))
	env.settle(500)

	c := w.cells[Key{CX: 0, CZ: 0}]
	if c == nil || !c.Generated {
		t.Fatalf("origin cell not generated")
	}
	var pts [][2]float64
	for _, e := range c.Content {
		pts = append(pts, [2]float64{e.X, e.Z})
	}
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[i][0] - pts[j][0]
			dz := pts[i][1] - pts[j][1]
			if dx*dx+dz*dz < 36 {
				t.Fatalf("placements %v and %v closer than min spacing", pts[i], pts[j])
			}
		}
	}
}

func TestPopulate_DeterministicAcrossBudgets(t *testing.T) {
	cats := func() *catalogs.Catalogs {
		c := testCatalogs(
			testCategory("tree", 101, 18, 4, 0.6, 1.4),
			testCategory("rock", 102, 10, 6, 0.5, 1.2),
		)
		addTestStructure(c, catalogs.StructureDef{
			ID: "camp", SeedOffset: 901, ChancePermille: 1000, MinOriginCells: 0,
			Parts: []catalogs.StructurePart{
				{Kind: "tent", DX: 0, DZ: 0, Shape: "box:1x1x1", HalfExtents: [3]float64{1, 1, 1}, NavRadius: 1},
				{Kind: "crate", DX: 2, DZ: 1, Shape: "box:0.5x0.5x0.5", HalfExtents: [3]float64{0.5, 0.5, 0.5}},
			},
		})
		return c
	}

	run := func(batch int) string {
		env := newTestEnv(cats(), func(c *Config) {
			c.BatchCandidates = batch
		})
		env.frame(moveTo(1, 1))
		env.settle(2000)
		return env.w.StateDigest()
	}

	a := run(2)
	b := run(64)
	if a != b {
		t.Fatalf("digest differs across batch sizes:\n  small=%s\n  large=%s", a, b)
	}
}

func TestPopulate_InvalidatedCellLeavesNothing(t *testing.T) {
	cat := testCategory("tree", 101, 200, 0, 1.0, 1.0)
	env := newTestEnv(testCatalogs(cat), func(c *Config) {
		c.LoadRadius = 0
		c.BatchCandidates = 4
		// Tight budget so generation cannot finish in one frame once
		// terrain sampling costs time.
		c.FrameBudget = 2 * time.Millisecond
		c.EmergencyBudget = 2 * time.Millisecond
	})
	env.w.deps.Terrain = costTerrain{inner: terrain.Flat{Height: 10}, clock: env.clock, cost: 100 * time.Microsecond}
	w := env.w

	env.frame(moveTo(1, 1))
	origin := Key{CX: 0, CZ: 0}
	if w.cells[origin] == nil || w.cells[origin].Generated {
		t.Fatalf("expected origin cell mid-generation after one tight frame")
	}

	// Invalidate mid-flight by moving the observer far away, then let
	// everything drain.
	env.frame(moveTo(1+20*w.cfg.CellSize, 1))
	for i := 0; i < 600; i++ {
		env.frame(FrameInput{})
	}
	env.settle(600)

	if w.cells[origin] != nil {
		t.Fatalf("invalidated cell still present")
	}
	for k, c := range w.cells {
		for id := range c.Content {
			if strings.HasPrefix(id, "C0_0_") {
				t.Fatalf("content %s of invalidated cell survived in cell %v", id, k)
			}
		}
	}
	if w.counters.discarded == 0 {
		t.Fatalf("discard counter not incremented")
	}
	if env.scene.Count() == 0 {
		// The new neighborhood around the teleport target must still
		// have generated normally.
		t.Fatalf("no content registered anywhere; generation stalled")
	}
}

func TestPopulate_StructurePassPlacesParts(t *testing.T) {
	c := testCatalogs(testCategory("tree", 101, 4, 3, 1.0, 1.0))
	addTestStructure(c, catalogs.StructureDef{
		ID: "camp", SeedOffset: 901, ChancePermille: 1000, MinOriginCells: 0,
		Parts: []catalogs.StructurePart{
			{Kind: "tent", DX: 0, DZ: 0, Shape: "box:1.6x1.4x1.6", HalfExtents: [3]float64{1.6, 1.4, 1.6}, NavRadius: 2},
			{Kind: "firepit", DX: 3.5, DZ: 0.5, Shape: "box:0.7x0.4x0.7", HalfExtents: [3]float64{0.7, 0.4, 0.7}, NavRadius: 1},
		},
	})
	env := newTestEnv(c, func(cfg *Config) {
		cfg.LoadRadius = 0
	})
	w := env.w

	env.frame(moveTo(1, 1))
	env.settle(500)

	cell := w.cells[Key{CX: 0, CZ: 0}]
	if cell == nil || !cell.Generated {
		t.Fatalf("origin cell not generated")
	}
	parts := 0
	for id, e := range cell.Content {
		if strings.HasPrefix(id, "S0_0_camp_") {
			parts++
			if e.Kind == "" {
				t.Fatalf("structure part %s has empty kind", id)
			}
			if !env.scene.Has(id) {
				t.Fatalf("structure part %s not registered with scene", id)
			}
		}
	}
	if parts != 2 {
		t.Fatalf("structure placed %d parts, want 2", parts)
	}
	if w.counters.structures != 1 {
		t.Fatalf("structure counter %d, want 1", w.counters.structures)
	}
}

func TestPopulate_TombstoneSurvivesUnloadReload(t *testing.T) {
	cat := testCategory("tree", 101, 10, 3, 1.0, 1.0)
	env := newTestEnv(testCatalogs(cat), func(c *Config) {
		c.LoadRadius = 0
	})
	w := env.w

	env.frame(moveTo(1, 1))
	env.settle(500)
	origin := Key{CX: 0, CZ: 0}
	before := len(w.cells[origin].Content)
	var victim string
	for id := range w.cells[origin].Content {
		if victim == "" || id < victim {
			victim = id
		}
	}

	env.frame(FrameInput{Removals: []RemoveRequest{{ID: victim, Cell: origin, Local: true}}})
	if _, ok := w.cells[origin].Content[victim]; ok {
		t.Fatalf("removed entity still present")
	}

	// Unload, then come back and regenerate.
	env.frame(moveTo(1+20*w.cfg.CellSize, 1))
	for i := 0; i < 600; i++ {
		env.frame(FrameInput{})
	}
	env.settle(600)
	if w.cells[origin] != nil {
		t.Fatalf("origin cell not torn down")
	}

	env.frame(moveTo(1, 1))
	env.settle(600)
	c := w.cells[origin]
	if c == nil || !c.Generated {
		t.Fatalf("origin cell not regenerated")
	}
	if _, ok := c.Content[victim]; ok {
		t.Fatalf("tombstoned entity %s came back after reload", victim)
	}
	if got := len(c.Content); got != before-1 {
		t.Fatalf("regenerated content count %d, want %d (tombstone applied, rest identical)", got, before-1)
	}
	if env.scene.Has(victim) {
		t.Fatalf("tombstoned entity re-registered with scene")
	}
}
