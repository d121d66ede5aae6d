package world

// Metrics is a thread-safe read-only view of the world's runtime signals,
// published once per frame from the world goroutine and read by HTTP
// handlers and tests.
type Metrics struct {
	Frame   uint64  `json:"frame"`
	FrameMS float64 `json:"frame_ms"`
	Overrun bool    `json:"overrun"`

	CellsLoaded   int `json:"cells_loaded"`
	CellsPending  int `json:"cells_pending_create"`
	CellsDraining int `json:"cells_pending_dispose"`
	ContentCount  int `json:"content_count"`

	CreateQueue  int `json:"create_queue"`
	DisposeQueue int `json:"dispose_queue"`
	GenQueue     int `json:"gen_queue"`

	SchedPending  int    `json:"sched_pending"`
	SchedExecuted uint64 `json:"sched_executed"`
	SchedFailed   uint64 `json:"sched_failed"`

	Created       uint64 `json:"cells_created"`
	Finalized     uint64 `json:"cells_finalized"`
	TornDown      uint64 `json:"cells_torn_down"`
	Revived       uint64 `json:"cells_revived"`
	Discarded     uint64 `json:"generations_discarded"`
	Migrated      uint64 `json:"entities_migrated"`
	Structures    uint64 `json:"structures_placed"`
	RemoteDropped uint64 `json:"remote_dropped"`

	BudgetOverruns uint64 `json:"budget_overruns"`

	ObserverCell [2]int `json:"observer_cell"`
}

// MetricsSnapshot returns the last published frame's metrics. Safe from
// any goroutine.
func (w *World) MetricsSnapshot() Metrics {
	if w == nil {
		return Metrics{}
	}
	v := w.metrics.Load()
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

func (w *World) publishMetrics(frameMS float64, overrun bool) {
	pendingCreate, draining := 0, 0
	for _, c := range w.cells {
		switch c.State {
		case StatePendingCreate:
			pendingCreate++
		case StatePendingDispose:
			draining++
		}
	}
	st := w.sched.Stats()
	w.metrics.Store(Metrics{
		Frame:          w.broker.Seq(),
		FrameMS:        frameMS,
		Overrun:        overrun,
		CellsLoaded:    w.LoadedCellCount(),
		CellsPending:   pendingCreate,
		CellsDraining:  draining,
		ContentCount:   w.ContentCount(),
		CreateQueue:    len(w.createQueue),
		DisposeQueue:   len(w.disposeQueue),
		GenQueue:       len(w.pop.queue),
		SchedPending:   st.Pending,
		SchedExecuted:  st.Executed,
		SchedFailed:    st.Failed,
		Created:        w.counters.created,
		Finalized:      w.counters.finalized,
		TornDown:       w.counters.tornDown,
		Revived:        w.counters.revived,
		Discarded:      w.counters.discarded,
		Migrated:       w.counters.migrated,
		Structures:     w.counters.structures,
		RemoteDropped:  w.counters.remoteDrop,
		BudgetOverruns: w.broker.Overruns(),
		ObserverCell:   [2]int{w.obsCell.CX, w.obsCell.CZ},
	})
}
