package world

import (
	"context"
	"time"
)

// Run drives the world at the configured frame rate until the context is
// cancelled or Stop is called. Inputs accumulate between ticks and drain
// at the frame boundary; nothing mutates world state mid-frame.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case m := <-w.moveCh:
			// Only the latest position matters within one frame.
			mm := m
			w.pendingObsMove = &mm
		case env := <-w.remoteCh:
			w.pendingRemote = append(w.pendingRemote, env)
		case req := <-w.removeCh:
			w.pendingRemove = append(w.pendingRemove, req)
		case req := <-w.activateCh:
			w.pendingActivate = append(w.pendingActivate, req)
		case <-ticker.C:
			w.frameOnce()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// frameOnce advances one frame: budget reset, input drain, lifecycle
// diff, budgeted creation, incremental generation, scheduler drain,
// disposal cadence, bookkeeping.
func (w *World) frameOnce() {
	w.broker.BeginFrame()

	if w.pendingObsMove != nil {
		w.updateObserver(*w.pendingObsMove)
		w.pendingObsMove = nil
	}
	for _, env := range w.pendingRemote {
		w.applyRemoteEnvelope(env)
	}
	w.pendingRemote = w.pendingRemote[:0]
	for _, req := range w.pendingRemove {
		w.applyRemove(req)
	}
	w.pendingRemove = w.pendingRemove[:0]
	for _, req := range w.pendingActivate {
		w.applyActivate(req)
	}
	w.pendingActivate = w.pendingActivate[:0]

	w.processCreation()
	w.pop.advance()
	w.sched.DrainFrame(w.broker)
	w.processDisposal()

	if w.cfg.StateEveryFrames > 0 && w.broker.Seq()%uint64(w.cfg.StateEveryFrames) == 0 {
		w.broadcastState()
		w.journal(journalFrame{
			Frame:     w.broker.Seq(),
			ElapsedMS: float64(w.broker.Elapsed()) / float64(time.Millisecond),
			Overrun:   w.broker.Elapsed() > w.broker.Budget(),
			Cells:     w.LoadedCellCount(),
			Content:   w.ContentCount(),
		})
		if w.deps.Index != nil {
			w.deps.Index.WriteFrame(FrameRow{
				Frame:       w.broker.Seq(),
				ElapsedMS:   float64(w.broker.Elapsed()) / float64(time.Millisecond),
				Overrun:     w.broker.Elapsed() > w.broker.Budget(),
				CellsLoaded: w.LoadedCellCount(),
				Content:     w.ContentCount(),
				Executed:    w.sched.Stats().Executed,
				Failed:      w.sched.Stats().Failed,
				Digest:      w.stateDigest(),
			})
		}
	}

	rep := w.broker.EndFrame()
	w.publishMetrics(float64(rep.Elapsed)/float64(time.Millisecond), rep.Overrun)
}

// FrameInput bundles the inputs applied at the start of one synchronous
// frame. Used by tests and offline tools.
type FrameInput struct {
	Move      *ObserverMove
	Remote    []RemoteEnvelope
	Removals  []RemoveRequest
	Activates []ActivateRequest
}

// FrameOnce advances a single frame synchronously with the same ordering
// semantics as Run. Returns the frame sequence just executed.
func (w *World) FrameOnce(in FrameInput) uint64 {
	if in.Move != nil {
		mm := *in.Move
		w.pendingObsMove = &mm
	}
	w.pendingRemote = append(w.pendingRemote, in.Remote...)
	w.pendingRemove = append(w.pendingRemove, in.Removals...)
	w.pendingActivate = append(w.pendingActivate, in.Activates...)
	w.frameOnce()
	return w.broker.Seq()
}
