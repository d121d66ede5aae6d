package world

import (
	"encoding/json"
	"fmt"

	"github.com/collin2985/chunkstream/internal/nav"
	"github.com/collin2985/chunkstream/internal/physics"
	"github.com/collin2985/chunkstream/internal/protocol"
	"github.com/collin2985/chunkstream/internal/scene"
	"github.com/collin2985/chunkstream/internal/sim/schedule"
)

// MaskStatic is the collision mask bit for placed world content.
const MaskStatic uint32 = 1 << 0

func (e *Content) box() physics.Box {
	return physics.Box{
		X: e.X, Y: e.Y + e.HalfExtents[1]*e.Scale, Z: e.Z,
		HX: e.HalfExtents[0] * e.Scale,
		HY: e.HalfExtents[1] * e.Scale,
		HZ: e.HalfExtents[2] * e.Scale,
		Yaw: e.Yaw,
	}
}

// submitRegistration queues the scene/physics/navigation registration
// tasks for a cell. One task per aspect per cell: the scheduler's
// per-kind sub-budgets spread the three aspects fairly when many cells
// finalize at once. Each body re-checks cell liveness first, so a cell
// invalidated while the task was queued registers nothing.
func (w *World) submitRegistration(k Key) {
	region := k.RegionKey()
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindScene,
		Tier: schedule.TierHigh,
		ID:   region + "scene",
		Run:  func() error { return w.registerAspect(k, aspectScene) },
	})
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindPhysics,
		Tier: schedule.TierHigh,
		ID:   region + "physics",
		Run:  func() error { return w.registerAspect(k, aspectPhysics) },
	})
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindNavigation,
		Tier: schedule.TierNormal,
		ID:   region + "navigation",
		Run:  func() error { return w.registerAspect(k, aspectNav) },
	})
}

type aspect int

const (
	aspectScene aspect = iota
	aspectPhysics
	aspectNav
)

func (w *World) registerAspect(k Key, a aspect) error {
	c := w.liveCell(k)
	if c == nil {
		// Invalidated between enqueue and execution; drop the effect.
		return nil
	}
	var firstErr error
	for _, id := range sortedContentIDs(c) {
		if err := w.registerOne(c.Content[id], a); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cell %s: %w", k, err)
		}
	}
	return firstErr
}

func (w *World) registerOne(e *Content, a aspect) error {
	switch a {
	case aspectScene:
		if e.inScene || w.deps.Scene == nil {
			return nil
		}
		if err := w.deps.Scene.Add(scene.Node{
			ID: e.ID, Signature: e.Shape,
			X: e.X, Y: e.Y, Z: e.Z, Yaw: e.Yaw, Scale: e.Scale,
		}); err != nil {
			return err
		}
		e.inScene = true
	case aspectPhysics:
		if e.inPhysics || w.deps.Physics == nil {
			return nil
		}
		if err := w.deps.Physics.Add(e.ID, e.box(), MaskStatic); err != nil {
			return err
		}
		e.inPhysics = true
	case aspectNav:
		if e.inNav || w.deps.Nav == nil || e.NavRadius <= 0 {
			return nil
		}
		if err := w.deps.Nav.Add([2]int{e.Cell.CX, e.Cell.CZ}, nav.Obstacle{
			ID: e.ID, X: e.X, Z: e.Z, Radius: e.NavRadius * e.Scale,
		}); err != nil {
			return err
		}
		e.inNav = true
	}
	return nil
}

func (w *World) unregisterContent(e *Content) {
	if e.inScene && w.deps.Scene != nil {
		w.deps.Scene.Remove(e.ID)
	}
	e.inScene = false
	if e.inPhysics && w.deps.Physics != nil {
		w.deps.Physics.Remove(e.ID)
	}
	e.inPhysics = false
	if e.inNav && w.deps.Nav != nil {
		w.deps.Nav.Remove([2]int{e.Cell.CX, e.Cell.CZ}, e.ID)
	}
	e.inNav = false
}

// applyRemove removes a content entity and tombstones its id. Idempotent:
// removing an unknown or already-removed id only records the tombstone.
func (w *World) applyRemove(req RemoveRequest) {
	w.addWorldTombstone(req.Cell, req.ID)
	if c := w.cells[req.Cell]; c != nil {
		c.Tombstones[req.ID] = struct{}{}
		if e, ok := c.Content[req.ID]; ok {
			w.unregisterContent(e)
			delete(c.Content, req.ID)
		}
	}
	if w.deps.Index != nil {
		w.deps.Index.WriteTombstone(w.broker.Seq(), [2]int{req.Cell.CX, req.Cell.CZ}, req.ID)
	}
	w.journal(journalRemoved{Frame: w.broker.Seq(), ID: req.ID, Cell: [2]int{req.Cell.CX, req.Cell.CZ}, Local: req.Local})
	if req.Local {
		w.broadcastRemove(req.Cell, req.ID)
	}
}

func (w *World) applyActivate(req ActivateRequest) {
	c := w.cells[req.Cell]
	if c == nil {
		w.counters.remoteDrop++
		return
	}
	e, ok := c.Content[req.ID]
	if !ok {
		return
	}
	e.Active = req.Active
	e.X, e.Y, e.Z = req.X, req.Y, req.Z
}

// applyRemoteEnvelope routes one inbound peer message. Malformed input is
// logged and abandoned for that input only.
func (w *World) applyRemoteEnvelope(env RemoteEnvelope) {
	switch env.Type {
	case protocol.TypePlace:
		var msg protocol.PlaceMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			w.logf("peer %s: bad PLACE: %v", env.PeerID, err)
			return
		}
		w.applyRemotePlace(msg)
	case protocol.TypeRemove:
		var msg protocol.RemoveMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			w.logf("peer %s: bad REMOVE: %v", env.PeerID, err)
			return
		}
		w.applyRemove(RemoveRequest{
			ID:   msg.ID,
			Cell: Key{CX: msg.Cell[0], CZ: msg.Cell[1]},
		})
	case protocol.TypeState:
		// Parity probe; logged only, divergence handling is operator
		// concern.
		var msg protocol.StateMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return
		}
		w.journal(journalPeerState{Frame: w.broker.Seq(), PeerID: msg.PeerID, PeerFrame: msg.Frame, Digest: msg.Digest})
	default:
		w.logf("peer %s: unknown message type %q", env.PeerID, env.Type)
	}
}

// applyRemotePlace merges a peer's finalized placements. Cells not loaded
// locally drop the message: local deterministic generation reproduces the
// same content when the cell loads, so only tombstones need to travel.
func (w *World) applyRemotePlace(msg protocol.PlaceMsg) {
	k := Key{CX: msg.Cell[0], CZ: msg.Cell[1]}
	c := w.liveCell(k)
	if c == nil {
		w.counters.remoteDrop++
		return
	}
	added := false
	for _, entry := range msg.Entries {
		if entry.ID == "" {
			continue
		}
		if _, dup := c.Content[entry.ID]; dup {
			continue
		}
		if _, dead := c.Tombstones[entry.ID]; dead {
			continue
		}
		def, ok := w.cats.Categories.ByID[entry.Category]
		if !ok && entry.Kind == "" {
			w.logf("peer place %s: unknown category %q", entry.ID, entry.Category)
			continue
		}
		e := &Content{
			ID:       entry.ID,
			Cell:     k,
			Category: entry.Category,
			Kind:     entry.Kind,
			X:        entry.Pos[0],
			Y:        entry.Pos[1],
			Z:        entry.Pos[2],
			Yaw:      entry.Yaw,
			Scale:    entry.Scale,
			Quality:  entry.Quality,
		}
		if ok {
			e.Shape = def.Shape
			e.HalfExtents = def.HalfExtents
			e.NavRadius = def.NavRadius
		} else if sdef, sok := w.cats.Structures.ByID[entry.Category]; sok {
			for _, p := range sdef.Parts {
				if p.Kind == entry.Kind {
					e.Shape = p.Shape
					e.HalfExtents = p.HalfExtents
					e.NavRadius = p.NavRadius
					break
				}
			}
		}
		c.Content[entry.ID] = e
		added = true
	}
	if added {
		w.submitRegistration(k)
	}
}

// Broadcasts go through the scheduler as broadcast-kind tasks so wire
// work shares the frame budget with everything else.

func (w *World) broadcastPlace(k Key, entries []protocol.PlacementEntry) {
	if w.deps.Net == nil || len(entries) == 0 {
		return
	}
	msg := protocol.PlaceMsg{
		Type:            protocol.TypePlace,
		ProtocolVersion: protocol.Version,
		PeerID:          w.cfg.PeerID,
		Cell:            [2]int{k.CX, k.CZ},
		Entries:         entries,
	}
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindBroadcast,
		Tier: schedule.TierNormal,
		ID:   k.RegionKey() + "bcast:place",
		Run: func() error {
			b, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			w.deps.Net.Send(protocol.TypePlace, b)
			return nil
		},
	})
}

func (w *World) broadcastRemove(k Key, id string) {
	if w.deps.Net == nil {
		return
	}
	msg := protocol.RemoveMsg{
		Type:            protocol.TypeRemove,
		ProtocolVersion: protocol.Version,
		PeerID:          w.cfg.PeerID,
		ID:              id,
		Cell:            [2]int{k.CX, k.CZ},
	}
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindBroadcast,
		Tier: schedule.TierNormal,
		Run: func() error {
			b, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			w.deps.Net.Send(protocol.TypeRemove, b)
			return nil
		},
	})
}

func (w *World) broadcastState() {
	if w.deps.Net == nil {
		return
	}
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		PeerID:          w.cfg.PeerID,
		Frame:           w.broker.Seq(),
		CellsLoaded:     w.LoadedCellCount(),
		ContentCount:    w.ContentCount(),
		Digest:          w.stateDigest(),
	}
	w.sched.Submit(schedule.Task{
		Kind: schedule.KindBroadcast,
		Tier: schedule.TierLow,
		ID:   "bcast:state",
		Run: func() error {
			b, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			w.deps.Net.Send(protocol.TypeState, b)
			return nil
		},
	})
}
