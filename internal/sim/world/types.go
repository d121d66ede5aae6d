package world

import (
	"fmt"
	"time"
)

// Key addresses a cell on the integer grid.
type Key struct {
	CX int
	CZ int
}

func (k Key) String() string { return fmt.Sprintf("%d,%d", k.CX, k.CZ) }

// RegionKey prefixes every scheduler task id that belongs to this cell, so
// ClearRegion can cancel all of them when the cell is invalidated.
func (k Key) RegionKey() string { return fmt.Sprintf("cell:%d,%d:", k.CX, k.CZ) }

type CellState int

const (
	// StatePendingCreate: wanted but not yet instantiated.
	StatePendingCreate CellState = iota + 1
	// StateLoaded: instantiated; content may still be generating.
	StateLoaded
	// StatePendingDispose: out of range, waiting for the disposal cadence.
	StatePendingDispose
)

func (s CellState) String() string {
	switch s {
	case StatePendingCreate:
		return "pending-create"
	case StateLoaded:
		return "loaded"
	case StatePendingDispose:
		return "pending-dispose"
	default:
		return "unloaded"
	}
}

// Cell is one loaded region of the streamed world. Owned by the world
// goroutine; external readers get published snapshots only.
type Cell struct {
	Key   Key
	State CellState

	// Generated flips once the populator finalizes the cell.
	Generated bool

	// Content is keyed by entity id. Iteration for digests and wire
	// messages always goes through sorted ids.
	Content map[string]*Content

	// Tombstones are removed content ids, re-applied on every
	// regeneration so removals survive unload/reload.
	Tombstones map[string]struct{}
}

func newCell(k Key) *Cell {
	return &Cell{
		Key:        k,
		State:      StatePendingCreate,
		Content:    make(map[string]*Content),
		Tombstones: make(map[string]struct{}),
	}
}

// Content is a placed object owned by exactly one cell at a time.
type Content struct {
	ID       string
	Cell     Key
	Category string
	// Kind is the structure part kind; empty for ordinary category content.
	Kind    string
	X, Y, Z float64
	Yaw     float64
	Scale   float64
	Quality float64

	// Collider/visual footprint, resolved from the catalog at placement
	// time so remote and regenerated content register identically.
	Shape       string
	HalfExtents [3]float64
	NavRadius   float64

	// Active marks the entity as occupied or controlled by a live
	// participant. Active entities are never torn down with their cell;
	// they migrate to the cell under their live position instead.
	Active bool

	inScene   bool
	inPhysics bool
	inNav     bool
}

// Config is the world's slice of the startup tuning. Values peers must
// agree on (Seed, CellSize, catalogs) also travel in the handshake.
type Config struct {
	WorldID string
	Seed    int64
	// PeerID identifies this node in outbound messages. Assigned by the
	// binary at startup; empty is fine for offline tools.
	PeerID string

	CellSize   float64
	LoadRadius int
	// KeepMargin widens the keep radius past the load radius so cells do
	// not thrash at the boundary.
	KeepMargin int
	// AlignWeight scales the movement-alignment term in the creation
	// priority. Tunable, not a contract.
	AlignWeight float64

	DisposalInterval time.Duration
	DisposalBatch    int

	// StateEveryFrames is the cadence of the STATE parity broadcast.
	StateEveryFrames int

	FrameRateHz     int
	FrameBudget     time.Duration
	EmergencyBudget time.Duration

	// Populator batch shape.
	BatchCandidates int
	MaxTries        int
	NeighborRing    int

	// Scheduler knobs, forwarded to schedule.New.
	KindBudget        map[string]time.Duration
	DefaultKindBudget time.Duration
	EmergencyPending  int

	// Now is the injectable clock. Nil means time.Now.
	Now func() time.Time
}

func (c *Config) normalize() {
	if c.CellSize <= 0 {
		c.CellSize = 64
	}
	if c.LoadRadius <= 0 {
		c.LoadRadius = 2
	}
	if c.KeepMargin < 0 {
		c.KeepMargin = 0
	}
	if c.AlignWeight == 0 {
		c.AlignWeight = 2.0
	}
	if c.DisposalInterval <= 0 {
		c.DisposalInterval = 250 * time.Millisecond
	}
	if c.DisposalBatch <= 0 {
		c.DisposalBatch = 4
	}
	if c.FrameRateHz <= 0 {
		c.FrameRateHz = 30
	}
	if c.BatchCandidates <= 0 {
		c.BatchCandidates = 12
	}
	if c.MaxTries <= 0 {
		c.MaxTries = 8
	}
	if c.NeighborRing < 0 {
		c.NeighborRing = 1
	}
	if c.StateEveryFrames <= 0 {
		c.StateEveryFrames = 150
	}
}
