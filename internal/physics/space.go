// Package physics is the collider registry the world uses to reject
// placements and to register finalized content. Overlap tests are
// conservative: a yawed box is tested through its rotated-footprint AABB,
// which can report contact slightly early but never misses one.
package physics

import (
	"fmt"
	"math"

	"github.com/collin2985/chunkstream/internal/arena"
)

// Box is an axis box at (X,Y,Z) with half extents (HX,HY,HZ), rotated by
// Yaw radians around the vertical axis.
type Box struct {
	X, Y, Z    float64
	HX, HY, HZ float64
	Yaw        float64
}

// aabb is the box's footprint after yaw expansion.
func (b Box) aabb() (minX, minY, minZ, maxX, maxY, maxZ float64) {
	hx, hz := b.HX, b.HZ
	if b.Yaw != 0 {
		c := math.Abs(math.Cos(b.Yaw))
		s := math.Abs(math.Sin(b.Yaw))
		hx = b.HX*c + b.HZ*s
		hz = b.HX*s + b.HZ*c
	}
	return b.X - hx, b.Y - b.HY, b.Z - hz, b.X + hx, b.Y + b.HY, b.Z + hz
}

type entry struct {
	id   string
	box  Box
	mask uint32
}

// Space holds static colliders in an arena with a uniform-grid broadphase.
// Single-writer: mutated only from the world goroutine.
type Space struct {
	bucket float64
	items  *arena.Arena[entry]
	byID   map[string]arena.Handle
	grid   map[[2]int][]arena.Handle
}

func NewSpace(bucket float64) *Space {
	if bucket <= 0 {
		bucket = 16
	}
	return &Space{
		bucket: bucket,
		items:  arena.New[entry](),
		byID:   make(map[string]arena.Handle),
		grid:   make(map[[2]int][]arena.Handle),
	}
}

func (s *Space) bucketRange(b Box) (bx0, bz0, bx1, bz1 int) {
	minX, _, minZ, maxX, _, maxZ := b.aabb()
	bx0 = int(math.Floor(minX / s.bucket))
	bz0 = int(math.Floor(minZ / s.bucket))
	bx1 = int(math.Floor(maxX / s.bucket))
	bz1 = int(math.Floor(maxZ / s.bucket))
	return
}

func (s *Space) Add(id string, b Box, mask uint32) error {
	if id == "" {
		return fmt.Errorf("empty collider id")
	}
	if _, dup := s.byID[id]; dup {
		return fmt.Errorf("collider %s already registered", id)
	}
	h := s.items.Alloc(entry{id: id, box: b, mask: mask})
	s.byID[id] = h
	bx0, bz0, bx1, bz1 := s.bucketRange(b)
	for bz := bz0; bz <= bz1; bz++ {
		for bx := bx0; bx <= bx1; bx++ {
			k := [2]int{bx, bz}
			s.grid[k] = append(s.grid[k], h)
		}
	}
	return nil
}

func (s *Space) Remove(id string) bool {
	h, ok := s.byID[id]
	if !ok {
		return false
	}
	e, _ := s.items.Get(h)
	bx0, bz0, bx1, bz1 := s.bucketRange(e.box)
	for bz := bz0; bz <= bz1; bz++ {
		for bx := bx0; bx <= bx1; bx++ {
			k := [2]int{bx, bz}
			list := s.grid[k]
			for i, hh := range list {
				if hh == h {
					list[i] = list[len(list)-1]
					s.grid[k] = list[:len(list)-1]
					break
				}
			}
			if len(s.grid[k]) == 0 {
				delete(s.grid, k)
			}
		}
	}
	delete(s.byID, id)
	s.items.Free(h)
	return true
}

// Overlaps reports whether any registered collider with a matching mask
// bit intersects the query box.
func (s *Space) Overlaps(q Box, mask uint32) bool {
	qMinX, qMinY, qMinZ, qMaxX, qMaxY, qMaxZ := q.aabb()
	bx0, bz0, bx1, bz1 := s.bucketRange(q)
	for bz := bz0; bz <= bz1; bz++ {
		for bx := bx0; bx <= bx1; bx++ {
			for _, h := range s.grid[[2]int{bx, bz}] {
				e := s.items.Ptr(h)
				if e == nil || e.mask&mask == 0 {
					continue
				}
				minX, minY, minZ, maxX, maxY, maxZ := e.box.aabb()
				if qMinX <= maxX && qMaxX >= minX &&
					qMinY <= maxY && qMaxY >= minY &&
					qMinZ <= maxZ && qMaxZ >= minZ {
					return true
				}
			}
		}
	}
	return false
}

func (s *Space) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Space) Count() int { return s.items.Len() }
