// Package world streams an unbounded 2D world into and out of the
// simulation as the observer moves. It owns the loaded-cell set, the
// incremental population generator, and the glue between them, the frame
// budget broker and the task scheduler.
//
// All world state must be accessed only from the world loop goroutine.
// External goroutines talk to the world through channels and read
// published snapshots (atomic.Value metrics), never live structures.
package world

import (
	"sync/atomic"
	"time"

	"github.com/collin2985/chunkstream/internal/sim/catalogs"
	"github.com/collin2985/chunkstream/internal/sim/frame"
	"github.com/collin2985/chunkstream/internal/sim/schedule"
)

// ObserverMove is the observer's live world position, delivered on the
// move channel. Only the latest one per frame matters.
type ObserverMove struct {
	X float64
	Z float64
}

// RemoteEnvelope is one raw peer message awaiting application.
type RemoteEnvelope struct {
	PeerID string
	Type   string
	Raw    []byte
}

// RemoveRequest asks the world to remove a content entity and tombstone
// its id. Local requests broadcast the removal; remote ones do not.
type RemoveRequest struct {
	ID    string
	Cell  Key
	Local bool
}

// ActivateRequest marks a content entity as occupied/controlled by a live
// participant and updates its live position. Active entities migrate
// instead of unloading with their cell.
type ActivateRequest struct {
	ID      string
	Cell    Key
	Active  bool
	X, Y, Z float64
}

type World struct {
	cfg  Config
	cats *catalogs.Catalogs
	deps Deps

	broker *frame.Broker
	sched  *schedule.Scheduler

	cells map[Key]*Cell

	// Observer tracking. moveX/moveZ is the recent movement vector in
	// cell units, refreshed every time the observer's cell changes.
	obsX, obsZ     float64
	obsCell        Key
	hasObserver    bool
	moveX, moveZ   float64
	observerMoved  bool
	pendingObsMove *ObserverMove

	createQueue  []Key
	disposeQueue []Key
	lastDisposal time.Time

	pop populator

	// worldTombstones outlives cell unload: removed ids by cell, seeded
	// from the index at startup and re-applied on every regeneration.
	worldTombstones map[Key]map[string]struct{}

	moveCh     chan ObserverMove
	remoteCh   chan RemoteEnvelope
	removeCh   chan RemoveRequest
	activateCh chan ActivateRequest
	stop       chan struct{}

	pendingRemote   []RemoteEnvelope
	pendingRemove   []RemoveRequest
	pendingActivate []ActivateRequest

	counters counters
	metrics  atomic.Value // Metrics

	now func() time.Time
}

type counters struct {
	created    uint64
	finalized  uint64
	tornDown   uint64
	revived    uint64
	discarded  uint64
	migrated   uint64
	remoteDrop uint64
	structures uint64
}

func New(cfg Config, cats *catalogs.Catalogs, deps Deps) *World {
	cfg.normalize()
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	kindBudget := make(map[schedule.Kind]time.Duration, len(cfg.KindBudget))
	for k, d := range cfg.KindBudget {
		kindBudget[schedule.Kind(k)] = d
	}
	sched := schedule.New(schedule.Config{
		KindBudget:        kindBudget,
		DefaultKindBudget: cfg.DefaultKindBudget,
		EmergencyPending:  cfg.EmergencyPending,
	}, deps.Log)
	sched.SetClock(now)

	w := &World{
		cfg:             cfg,
		cats:            cats,
		deps:            deps,
		broker:          frame.NewWithClock(cfg.FrameBudget, cfg.EmergencyBudget, now),
		sched:           sched,
		cells:           make(map[Key]*Cell),
		worldTombstones: make(map[Key]map[string]struct{}),
		moveCh:          make(chan ObserverMove, 64),
		remoteCh:        make(chan RemoteEnvelope, 256),
		removeCh:        make(chan RemoveRequest, 64),
		activateCh:      make(chan ActivateRequest, 64),
		stop:            make(chan struct{}),
		now:             now,
	}
	w.pop.init(w)
	w.metrics.Store(Metrics{})
	return w
}

func (w *World) logf(format string, args ...any) {
	if w.deps.Log != nil {
		w.deps.Log.Printf(format, args...)
	}
}

// Channel accessors for the transport and other producers.

func (w *World) Moves() chan<- ObserverMove          { return w.moveCh }
func (w *World) RemoteInbox() chan<- RemoteEnvelope  { return w.remoteCh }
func (w *World) Removals() chan<- RemoveRequest      { return w.removeCh }
func (w *World) Activations() chan<- ActivateRequest { return w.activateCh }

func (w *World) Config() Config { return w.cfg }

// SeedTombstones installs removals loaded from the index before the loop
// starts. Must be called before Run.
func (w *World) SeedTombstones(rows map[[2]int][]string) {
	for c, ids := range rows {
		k := Key{CX: c[0], CZ: c[1]}
		m := w.worldTombstones[k]
		if m == nil {
			m = make(map[string]struct{}, len(ids))
			w.worldTombstones[k] = m
		}
		for _, id := range ids {
			m[id] = struct{}{}
		}
	}
}

// cell returns the cell in any state, or nil.
func (w *World) cell(k Key) *Cell { return w.cells[k] }

// liveCell returns the cell only if it is loaded; pending-create and
// pending-dispose cells read as absent, which is what the liveness
// re-checks in task bodies want.
func (w *World) liveCell(k Key) *Cell {
	c := w.cells[k]
	if c == nil || c.State != StateLoaded {
		return nil
	}
	return c
}

func (w *World) tombstoned(k Key, id string) bool {
	if m := w.worldTombstones[k]; m != nil {
		if _, ok := m[id]; ok {
			return true
		}
	}
	return false
}

func (w *World) addWorldTombstone(k Key, id string) {
	m := w.worldTombstones[k]
	if m == nil {
		m = make(map[string]struct{})
		w.worldTombstones[k] = m
	}
	m[id] = struct{}{}
}

// ContentCount is the number of finalized entities across loaded cells.
// World-goroutine only; tests and the digest use it.
func (w *World) ContentCount() int {
	n := 0
	for _, c := range w.cells {
		if c.State == StateLoaded || c.State == StatePendingDispose {
			n += len(c.Content)
		}
	}
	return n
}

func (w *World) LoadedCellCount() int {
	n := 0
	for _, c := range w.cells {
		if c.State == StateLoaded {
			n++
		}
	}
	return n
}

// CellPlacements returns a cell's finalized content sorted by id.
// World-goroutine only; offline tools driving FrameOnce use it.
func (w *World) CellPlacements(k Key) []PlacementRow {
	c := w.cells[k]
	if c == nil {
		return nil
	}
	rows := make([]PlacementRow, 0, len(c.Content))
	for _, id := range sortedContentIDs(c) {
		rows = append(rows, placementRow(c.Content[id]))
	}
	return rows
}

// Scheduler exposes the task scheduler for tests and metrics.
func (w *World) Scheduler() *schedule.Scheduler { return w.sched }

// Broker exposes the frame budget broker for tests.
func (w *World) Broker() *frame.Broker { return w.broker }
