// Package nav tracks navigation obstacles keyed by owning cell, so a
// cell's obstacles drop in one call when the cell is torn down.
package nav

import (
	"fmt"
	"sort"
)

type Obstacle struct {
	ID     string
	X, Z   float64
	Radius float64
}

type Registry struct {
	byCell map[[2]int]map[string]Obstacle
	count  int
}

func NewRegistry() *Registry {
	return &Registry{byCell: make(map[[2]int]map[string]Obstacle)}
}

func (r *Registry) Add(cell [2]int, ob Obstacle) error {
	if ob.ID == "" {
		return fmt.Errorf("empty obstacle id")
	}
	m := r.byCell[cell]
	if m == nil {
		m = make(map[string]Obstacle)
		r.byCell[cell] = m
	}
	if _, dup := m[ob.ID]; dup {
		return fmt.Errorf("obstacle %s already registered in cell %v", ob.ID, cell)
	}
	m[ob.ID] = ob
	r.count++
	return nil
}

func (r *Registry) Remove(cell [2]int, id string) bool {
	m := r.byCell[cell]
	if m == nil {
		return false
	}
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	r.count--
	if len(m) == 0 {
		delete(r.byCell, cell)
	}
	return true
}

// RemoveCell drops every obstacle the cell owns and returns how many.
func (r *Registry) RemoveCell(cell [2]int) int {
	m := r.byCell[cell]
	if m == nil {
		return 0
	}
	n := len(m)
	delete(r.byCell, cell)
	r.count -= n
	return n
}

// CellObstacles returns the cell's obstacles sorted by id.
func (r *Registry) CellObstacles(cell [2]int) []Obstacle {
	m := r.byCell[cell]
	if len(m) == 0 {
		return nil
	}
	out := make([]Obstacle, 0, len(m))
	for _, ob := range m {
		out = append(out, ob)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int { return r.count }
