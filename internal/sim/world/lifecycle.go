package world

import (
	"math"
	"sort"
	"time"

	"github.com/collin2985/chunkstream/internal/sim/gen"
	"github.com/collin2985/chunkstream/internal/sim/schedule"
	"github.com/collin2985/chunkstream/internal/sim/world/feature/wanted"
)

// teardownChunk bounds how many entities one teardown pass unregisters
// before re-queueing itself; keeps a content-heavy cell from eating a
// whole frame's teardown sub-budget.
const teardownChunk = 32

// minCreateSlice is the broker headroom required before instantiating
// another cell this frame.
const minCreateSlice = 200 * time.Microsecond

// updateObserver ingests the latest observer position. Cell-grain changes
// drive the want-set diff; sub-cell moves only update the live position.
func (w *World) updateObserver(m ObserverMove) {
	w.obsX, w.obsZ = m.X, m.Z
	cx, cz := gen.CellOf(m.X, m.Z, w.cfg.CellSize)
	k := Key{CX: cx, CZ: cz}
	if w.hasObserver && k == w.obsCell {
		return
	}
	w.updateObserverCell(k)
}

// updateObserverCell diffs the wanted neighborhood against the loaded set:
// newly-needed cells enter the creation queue in priority order,
// no-longer-needed cells enter the disposal queue, and pending-dispose
// cells that re-entered range are revived before the diff so they are
// never torn down.
func (w *World) updateObserverCell(k Key) {
	if w.hasObserver {
		dx := float64(k.CX - w.obsCell.CX)
		dz := float64(k.CZ - w.obsCell.CZ)
		if n := math.Hypot(dx, dz); n > 0 {
			w.moveX, w.moveZ = dx/n, dz/n
		}
	}
	w.obsCell = k
	w.hasObserver = true

	center := wanted.Key{CX: k.CX, CZ: k.CZ}
	want := wanted.Square(center, w.cfg.LoadRadius)
	keep := wanted.Square(center, w.cfg.LoadRadius+w.cfg.KeepMargin)

	// Revive first: a pending-dispose cell inside the keep set goes back
	// to loaded, its queued teardown is cancelled, and anything its
	// partial teardown unregistered is re-registered.
	for wk := range keep {
		ck := Key{CX: wk.CX, CZ: wk.CZ}
		if c := w.cells[ck]; c != nil && c.State == StatePendingDispose {
			w.reviveCell(c)
		}
	}

	have := make(map[wanted.Key]struct{}, len(w.cells))
	for ck, c := range w.cells {
		if c.State == StatePendingCreate || c.State == StateLoaded {
			have[wanted.Key{CX: ck.CX, CZ: ck.CZ}] = struct{}{}
		}
	}
	create, drop := wanted.Diff(have, want, keep)

	for _, wk := range create {
		ck := Key{CX: wk.CX, CZ: wk.CZ}
		if w.cells[ck] != nil {
			// Already pending or loaded: silent no-op.
			continue
		}
		w.cells[ck] = newCell(ck)
		w.createQueue = append(w.createQueue, ck)
	}

	for _, wk := range drop {
		ck := Key{CX: wk.CX, CZ: wk.CZ}
		c := w.cells[ck]
		if c == nil {
			continue
		}
		switch c.State {
		case StatePendingCreate:
			// Never instantiated; cancel outright.
			w.dropPendingCreate(ck)
		case StateLoaded:
			c.State = StatePendingDispose
			w.disposeQueue = append(w.disposeQueue, ck)
			w.pop.invalidate(ck)
		}
	}

	// Re-sort the whole creation queue against the new center and
	// movement vector; cells ahead of travel come first.
	wkeys := make([]wanted.Key, len(w.createQueue))
	for i, ck := range w.createQueue {
		wkeys[i] = wanted.Key{CX: ck.CX, CZ: ck.CZ}
	}
	wanted.SortByPriority(wkeys, center, w.moveX, w.moveZ, w.cfg.AlignWeight)
	for i, wk := range wkeys {
		w.createQueue[i] = Key{CX: wk.CX, CZ: wk.CZ}
	}
}

func (w *World) dropPendingCreate(k Key) {
	delete(w.cells, k)
	for i, q := range w.createQueue {
		if q == k {
			w.createQueue = append(w.createQueue[:i], w.createQueue[i+1:]...)
			break
		}
	}
	w.sched.ClearRegion(k.RegionKey())
}

// processCreation instantiates queued cells while budget remains.
// Instantiation itself is cheap (allocate, seed tombstones, hand to the
// populator); the expensive part happens incrementally in the populator.
func (w *World) processCreation() {
	for len(w.createQueue) > 0 && w.broker.HasTime(minCreateSlice) {
		k := w.createQueue[0]
		w.createQueue = w.createQueue[1:]
		c := w.cells[k]
		if c == nil || c.State != StatePendingCreate {
			// Cancelled or already loaded: silent no-op.
			continue
		}
		c.State = StateLoaded
		if m := w.worldTombstones[k]; m != nil {
			for id := range m {
				c.Tombstones[id] = struct{}{}
			}
		}
		w.counters.created++
		w.pop.enqueue(k)
		w.journal(journalCellCreated{Frame: w.broker.Seq(), Cell: [2]int{k.CX, k.CZ}})
	}
}

// processDisposal runs on a fixed wall-clock cadence independent of the
// frame budget: the safety checks are cheap but must not stall creation.
// Each tick takes a small batch off the disposal queue, migrates active
// entities out, and schedules budgeted teardown tasks.
func (w *World) processDisposal() {
	now := w.now()
	if now.Sub(w.lastDisposal) < w.cfg.DisposalInterval {
		return
	}
	w.lastDisposal = now

	batch := w.cfg.DisposalBatch
	for batch > 0 && len(w.disposeQueue) > 0 {
		k := w.disposeQueue[0]
		w.disposeQueue = w.disposeQueue[1:]
		batch--

		c := w.cells[k]
		if c == nil || c.State != StatePendingDispose {
			// Revived or already gone: idempotent no-op.
			continue
		}
		if w.migrateActive(c) {
			// An active entity is still inside and has nowhere loaded to
			// go. Defer the cell and retry on a later cadence tick.
			w.disposeQueue = append(w.disposeQueue, k)
			continue
		}
		w.scheduleTeardown(k)
	}
}

// migrateActive moves active entities whose live position now falls in a
// different loaded cell; ownership transfers atomically and the id leaves
// the source cell's tombstone-eligible set. Returns true while any active
// entity remains stranded in the cell.
func (w *World) migrateActive(c *Cell) bool {
	var ids []string
	for id, e := range c.Content {
		if e.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	stranded := false
	for _, id := range ids {
		e := c.Content[id]
		cx, cz := gen.CellOf(e.X, e.Z, w.cfg.CellSize)
		dst := Key{CX: cx, CZ: cz}
		dstCell := w.liveCell(dst)
		if dst == c.Key || dstCell == nil {
			stranded = true
			continue
		}
		delete(c.Content, id)
		delete(c.Tombstones, id)
		e.Cell = dst
		dstCell.Content[id] = e
		w.counters.migrated++
		w.journal(journalMigrated{
			Frame: w.broker.Seq(),
			ID:    id,
			From:  [2]int{c.Key.CX, c.Key.CZ},
			To:    [2]int{dst.CX, dst.CZ},
		})
	}
	return stranded
}

// scheduleTeardown queues the budgeted teardown task for a cell. The task
// re-checks cell state before touching anything, unregisters a bounded
// chunk of entities per pass, and re-queues itself until the cell is
// empty (the scheduler's explicit multi-pass re-queue case).
func (w *World) scheduleTeardown(k Key) {
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindTeardown,
		Tier: schedule.TierLow,
		ID:   k.RegionKey() + "teardown",
		Run:  func() error { return w.teardownStep(k) },
	})
}

func (w *World) teardownStep(k Key) error {
	c := w.cells[k]
	if c == nil || c.State != StatePendingDispose {
		// Revived (or already gone) after this task was queued.
		return nil
	}

	// Unregister in bounded chunks but keep the content list intact until
	// the cell is fully gone, so a revival after a partial teardown can
	// re-register instead of losing entities.
	done := 0
	for _, id := range sortedContentIDs(c) {
		if done >= teardownChunk {
			w.scheduleTeardown(k)
			return nil
		}
		e := c.Content[id]
		if e.inScene || e.inPhysics || e.inNav {
			w.unregisterContent(e)
			done++
		}
	}

	if w.deps.Nav != nil {
		w.deps.Nav.RemoveCell([2]int{k.CX, k.CZ})
	}
	// Tombstones persist at world level so regeneration re-applies them.
	if len(c.Tombstones) > 0 {
		m := w.worldTombstones[k]
		if m == nil {
			m = make(map[string]struct{}, len(c.Tombstones))
			w.worldTombstones[k] = m
		}
		for id := range c.Tombstones {
			m[id] = struct{}{}
		}
	}
	delete(w.cells, k)
	w.counters.tornDown++
	w.journal(journalCellDisposed{Frame: w.broker.Seq(), Cell: [2]int{k.CX, k.CZ}})
	return nil
}

// reviveCell cancels a pending disposal: queued region tasks are cleared,
// the disposal queue entry is filtered out, and any content a partial
// teardown already unregistered is re-registered.
func (w *World) reviveCell(c *Cell) {
	c.State = StateLoaded
	w.sched.ClearRegion(c.Key.RegionKey())
	for i := 0; i < len(w.disposeQueue); i++ {
		if w.disposeQueue[i] == c.Key {
			w.disposeQueue = append(w.disposeQueue[:i], w.disposeQueue[i+1:]...)
			i--
		}
	}
	w.counters.revived++
	if !c.Generated {
		// Generation was discarded on invalidation; start over. The
		// outcome is identical either way because every draw derives
		// from the cell seed.
		w.pop.enqueue(c.Key)
		return
	}
	w.submitRegistration(c.Key)
}

func sortedContentIDs(c *Cell) []string {
	ids := make([]string, 0, len(c.Content))
	for id := range c.Content {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisposeQueueLen is world-goroutine-only; tests assert revival removed
// the key.
func (w *World) DisposeQueueLen() int { return len(w.disposeQueue) }

// CreateQueue returns a copy of the pending creation order.
func (w *World) CreateQueue() []Key {
	out := make([]Key, len(w.createQueue))
	copy(out, w.createQueue)
	return out
}

// CellState reports a cell's lifecycle state; zero means unloaded.
func (w *World) CellState(k Key) CellState {
	c := w.cells[k]
	if c == nil {
		return 0
	}
	return c.State
}
