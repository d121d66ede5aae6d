package world

import (
	"time"

	"github.com/collin2985/chunkstream/internal/nav"
	"github.com/collin2985/chunkstream/internal/physics"
	"github.com/collin2985/chunkstream/internal/scene"
	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/terrain"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// costTerrain charges fake wall-clock time per sample, so tests can force
// the populator to run out of budget mid-generation.
type costTerrain struct {
	inner Terrain
	clock *fakeClock
	cost  time.Duration
}

func (t costTerrain) HeightAt(x, z float64) float64 {
	t.clock.advance(t.cost)
	return t.inner.HeightAt(x, z)
}

func (t costTerrain) NormalAt(x, z float64) (float64, float64, float64) {
	return t.inner.NormalAt(x, z)
}

func testCategory(id string, offset int64, base int, spacing float64, densityLo, densityHi float64) catalogs.CategoryDef {
	return catalogs.CategoryDef{
		ID:          id,
		SeedOffset:  offset,
		BaseTotal:   base,
		MinSpacing:  spacing,
		Density:     catalogs.Band{Min: densityLo, Max: densityHi},
		Quality:     catalogs.QualityBand{Min: 1, Max: 5, Buckets: 4},
		Scale:       catalogs.Band{Min: 0.8, Max: 1.2},
		Shape:       "box:0.5x1.0x0.5",
		HalfExtents: [3]float64{0.5, 1.0, 0.5},
		NavRadius:   0.8,
		MinAltitude: -1000,
		MaxAltitude: 1000,
		MaxSlope:    10,
	}
}

func testCatalogs(defs ...catalogs.CategoryDef) *catalogs.Catalogs {
	c := &catalogs.Catalogs{}
	c.Categories.ByID = map[string]catalogs.CategoryDef{}
	for _, d := range defs {
		c.Categories.ByID[d.ID] = d
		c.Categories.Order = append(c.Categories.Order, d.ID)
	}
	c.Categories.Digest = "test"
	c.Structures.ByID = map[string]catalogs.StructureDef{}
	c.Structures.Digest = "test"
	return c
}

func addTestStructure(c *catalogs.Catalogs, def catalogs.StructureDef) {
	c.Structures.ByID[def.ID] = def
	c.Structures.Order = append(c.Structures.Order, def.ID)
}

type testEnv struct {
	w     *World
	clock *fakeClock
	phys  *physics.Space
	nav   *nav.Registry
	scene *scene.Registry
	sent  []sentMsg
}

type sentMsg struct {
	Type    string
	Payload []byte
}

func (e *testEnv) Send(msgType string, payload []byte) {
	e.sent = append(e.sent, sentMsg{Type: msgType, Payload: payload})
}

func newTestEnv(cats *catalogs.Catalogs, mutate func(*Config)) *testEnv {
	clock := newFakeClock()
	env := &testEnv{
		clock: clock,
		phys:  physics.NewSpace(16),
		nav:   nav.NewRegistry(),
		scene: scene.NewRegistry(),
	}
	cfg := Config{
		WorldID:          "test",
		Seed:             1337,
		CellSize:         64,
		LoadRadius:       1,
		KeepMargin:       0,
		DisposalInterval: 250 * time.Millisecond,
		DisposalBatch:    8,
		StateEveryFrames: 1 << 30,
		FrameBudget:      50 * time.Millisecond,
		EmergencyBudget:  200 * time.Millisecond,
		BatchCandidates:  16,
		MaxTries:         8,
		NeighborRing:     1,
		Now:              clock.now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.w = New(cfg, cats, Deps{
		Terrain: terrain.Flat{Height: 10},
		Physics: env.phys,
		Nav:     env.nav,
		Scene:   env.scene,
		Net:     env,
	})
	return env
}

// frame advances one frame and moves the fake clock forward so wall-clock
// cadences (disposal) make progress between frames.
func (e *testEnv) frame(in FrameInput) {
	e.w.FrameOnce(in)
	e.clock.advance(33 * time.Millisecond)
}

// settle runs frames with no input until generation and the scheduler go
// idle, or the frame cap is hit.
func (e *testEnv) settle(maxFrames int) {
	for i := 0; i < maxFrames; i++ {
		if !e.w.Generating() && e.w.Scheduler().Pending() == 0 && len(e.w.createQueue) == 0 && len(e.w.disposeQueue) == 0 {
			return
		}
		e.frame(FrameInput{})
	}
}

func moveTo(x, z float64) FrameInput {
	return FrameInput{Move: &ObserverMove{X: x, Z: z}}
}
