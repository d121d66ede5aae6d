// Package scene owns the visual nodes for finalized content. Nodes are
// pooled by canonical shape signature: removing a node parks its arena
// slot on the signature's free list, and the next Add with the same
// signature rewrites that slot in place, so churn at the streaming edge
// does not allocate.
package scene

import (
	"fmt"

	"github.com/collin2985/chunkstream/internal/arena"
)

type Node struct {
	ID        string
	Signature string
	X, Y, Z   float64
	Yaw       float64
	Scale     float64
}

type Registry struct {
	nodes  *arena.Arena[Node]
	byID   map[string]arena.Handle
	parked map[string][]arena.Handle
	reused uint64
}

func NewRegistry() *Registry {
	return &Registry{
		nodes:  arena.New[Node](),
		byID:   make(map[string]arena.Handle),
		parked: make(map[string][]arena.Handle),
	}
}

func (r *Registry) Add(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("empty node id")
	}
	if n.Signature == "" {
		return fmt.Errorf("node %s: empty shape signature", n.ID)
	}
	if _, dup := r.byID[n.ID]; dup {
		return fmt.Errorf("node %s already registered", n.ID)
	}
	if stack := r.parked[n.Signature]; len(stack) > 0 {
		h := stack[len(stack)-1]
		r.parked[n.Signature] = stack[:len(stack)-1]
		if p := r.nodes.Ptr(h); p != nil {
			*p = n
			r.byID[n.ID] = h
			r.reused++
			return nil
		}
	}
	r.byID[n.ID] = r.nodes.Alloc(n)
	return nil
}

// Remove parks the node's slot for reuse by its signature.
func (r *Registry) Remove(id string) bool {
	h, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	p := r.nodes.Ptr(h)
	if p == nil {
		return false
	}
	sig := p.Signature
	p.ID = ""
	r.parked[sig] = append(r.parked[sig], h)
	return true
}

func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) Get(id string) (Node, bool) {
	h, ok := r.byID[id]
	if !ok {
		return Node{}, false
	}
	return r.nodes.Get(h)
}

// Count is the number of visible nodes; parked slots are not counted.
func (r *Registry) Count() int { return len(r.byID) }

func (r *Registry) PooledCount(sig string) int { return len(r.parked[sig]) }

func (r *Registry) Reused() uint64 { return r.reused }
