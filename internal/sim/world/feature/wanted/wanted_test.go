package wanted

import "testing"

func TestSquare_RadiusOne(t *testing.T) {
	got := Square(Key{CX: 0, CZ: 0}, 1)
	if len(got) != 9 {
		t.Fatalf("square has %d cells, want 9", len(got))
	}
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			if _, ok := got[Key{CX: dx, CZ: dz}]; !ok {
				t.Fatalf("missing cell %d,%d", dx, dz)
			}
		}
	}
}

func TestDiff_KeepSetBlocksDrop(t *testing.T) {
	have := map[Key]struct{}{
		{0, 0}: {}, {1, 0}: {}, {5, 5}: {},
	}
	want := map[Key]struct{}{
		{0, 0}: {}, {2, 0}: {},
	}
	keep := map[Key]struct{}{
		{0, 0}: {}, {1, 0}: {}, {2, 0}: {},
	}
	create, drop := Diff(have, want, keep)
	if len(create) != 1 || create[0] != (Key{2, 0}) {
		t.Fatalf("create %v, want [{2 0}]", create)
	}
	if len(drop) != 1 || drop[0] != (Key{5, 5}) {
		t.Fatalf("drop %v, want [{5 5}]; hysteresis must protect {1 0}", drop)
	}
}

func TestSortByPriority_NoMovement(t *testing.T) {
	keys := []Key{{1, 1}, {0, 0}, {-1, 0}, {0, 1}}
	SortByPriority(keys, Key{0, 0}, 0, 0, 2.0)
	if keys[0] != (Key{0, 0}) {
		t.Fatalf("center not first: %v", keys)
	}
	// Distance-1 cells before distance-2, ties broken by CX then CZ.
	if keys[1] != (Key{-1, 0}) || keys[2] != (Key{0, 1}) || keys[3] != (Key{1, 1}) {
		t.Fatalf("order %v", keys)
	}
}

func TestSortByPriority_MovementBeatsDistanceTie(t *testing.T) {
	center := Key{0, 0}
	keys := []Key{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	// Moving east: (1,0) leads, (-1,0) trails.
	SortByPriority(keys, center, 1, 0, 2.0)
	if keys[0] != (Key{1, 0}) {
		t.Fatalf("ahead-of-travel cell not first: %v", keys)
	}
	if keys[len(keys)-1] != (Key{-1, 0}) {
		t.Fatalf("behind-travel cell not last: %v", keys)
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := Score(Key{0, 0}, Key{3, -2}, 0.7, -0.7, 2.0)
	b := Score(Key{0, 0}, Key{3, -2}, 0.7, -0.7, 2.0)
	if a != b {
		t.Fatalf("score not deterministic: %v vs %v", a, b)
	}
}
