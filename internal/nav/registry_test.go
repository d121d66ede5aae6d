package nav

import "testing"

func TestAddRemove(t *testing.T) {
	r := NewRegistry()
	cell := [2]int{3, -2}
	if err := r.Add(cell, Obstacle{ID: "a", X: 1, Z: 2, Radius: 1.5}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(cell, Obstacle{ID: "a"}); err == nil {
		t.Fatalf("duplicate id accepted")
	}
	if err := r.Add(cell, Obstacle{}); err == nil {
		t.Fatalf("empty id accepted")
	}
	if !r.Remove(cell, "a") {
		t.Fatalf("remove failed")
	}
	if r.Remove(cell, "a") {
		t.Fatalf("double remove accepted")
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestRemoveCell(t *testing.T) {
	r := NewRegistry()
	a, b := [2]int{0, 0}, [2]int{1, 0}
	for i, id := range []string{"x", "y", "z"} {
		if err := r.Add(a, Obstacle{ID: id, X: float64(i)}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := r.Add(b, Obstacle{ID: "w"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if n := r.RemoveCell(a); n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
	if n := r.RemoveCell(a); n != 0 {
		t.Fatalf("second removecell returned %d", n)
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	if got := r.CellObstacles(b); len(got) != 1 || got[0].ID != "w" {
		t.Fatalf("cell b obstacles %v", got)
	}
}

func TestCellObstacles_Sorted(t *testing.T) {
	r := NewRegistry()
	cell := [2]int{5, 5}
	for _, id := range []string{"c", "a", "b"} {
		if err := r.Add(cell, Obstacle{ID: id}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got := r.CellObstacles(cell)
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("not sorted: %v", got)
	}
}
