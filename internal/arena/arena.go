// Package arena is a slot store with index-based reuse. Handles carry a
// generation so a handle kept across a free/realloc of its slot reads as
// stale instead of aliasing the new occupant. Single-writer, no locks.
package arena

type Handle struct {
	idx uint32
	gen uint32
}

// IsZero reports whether h was never allocated.
func (h Handle) IsZero() bool { return h.gen == 0 }

type slot[T any] struct {
	val  T
	gen  uint32
	live bool
}

type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

func (a *Arena[T]) Alloc(v T) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.val = v
		s.live = true
		a.live++
		return Handle{idx: idx, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{val: v, gen: 1, live: true})
	a.live++
	return Handle{idx: uint32(len(a.slots) - 1), gen: 1}
}

func (a *Arena[T]) Get(h Handle) (T, bool) {
	if p := a.Ptr(h); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Ptr returns the slot value in place, or nil for stale/free handles.
// The pointer is valid until the next Alloc.
func (a *Arena[T]) Ptr(h Handle) *T {
	if h.IsZero() || int(h.idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.idx]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return &s.val
}

func (a *Arena[T]) Free(h Handle) bool {
	if h.IsZero() || int(h.idx) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.idx]
	if !s.live || s.gen != h.gen {
		return false
	}
	var zero T
	s.val = zero
	s.live = false
	s.gen++
	a.free = append(a.free, h.idx)
	a.live--
	return true
}

func (a *Arena[T]) Len() int { return a.live }

// Range visits live slots; return false from f to stop.
func (a *Arena[T]) Range(f func(Handle, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !f(Handle{idx: uint32(i), gen: s.gen}, &s.val) {
			return
		}
	}
}
