package world

import (
	"log"

	"github.com/collin2985/chunkstream/internal/nav"
	"github.com/collin2985/chunkstream/internal/physics"
	"github.com/collin2985/chunkstream/internal/scene"
)

// Collaborator interfaces. Implementations live outside the core; every
// one of them may be nil, in which case the world treats the concern as
// not yet initialized and retries next frame (or skips it entirely for
// advisory concerns like the journal).

// Terrain samples the height field used to validate placements. Must be
// pure: equal inputs, equal outputs, on every peer.
type Terrain interface {
	HeightAt(x, z float64) float64
	NormalAt(x, z float64) (nx, ny, nz float64)
}

// Physics rejects placements and registers finalized colliders.
type Physics interface {
	Add(id string, b physics.Box, mask uint32) error
	Remove(id string) bool
	Overlaps(b physics.Box, mask uint32) bool
}

// Nav registers navigation obstacles keyed by owning cell.
type Nav interface {
	Add(cell [2]int, ob nav.Obstacle) error
	Remove(cell [2]int, id string) bool
	RemoveCell(cell [2]int) int
}

// Scene owns the visual representation of finalized content.
type Scene interface {
	Add(n scene.Node) error
	Remove(id string) bool
}

// Net is the fire-and-forget broadcast channel to other participants.
type Net interface {
	Send(msgType string, payload []byte)
}

// Journal receives one JSON-encodable entry per event.
type Journal interface {
	Write(v any) error
}

// Index is the durable placement/tombstone/frame index.
type Index interface {
	WritePlacements(frame uint64, cell [2]int, rows []PlacementRow)
	WriteTombstone(frame uint64, cell [2]int, id string)
	WriteFrame(row FrameRow)
}

// PlacementRow mirrors one finalized content entity for the index.
type PlacementRow struct {
	ID       string
	Category string
	Kind     string
	X, Y, Z  float64
	Yaw      float64
	Scale    float64
	Quality  float64
}

// FrameRow is the per-frame stats sample written to the index.
type FrameRow struct {
	Frame       uint64
	ElapsedMS   float64
	Overrun     bool
	CellsLoaded int
	Content     int
	Executed    uint64
	Failed      uint64
	Digest      string
}

// Deps is the explicit dependency context passed to New. There are no
// package-level registries; everything the world touches is here.
type Deps struct {
	Terrain Terrain
	Physics Physics
	Nav     Nav
	Scene   Scene
	Net     Net
	Journal Journal
	Index   Index
	Log     *log.Logger
}
