package indexdb

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/collin2985/chunkstream/internal/sim/world"
)

func openTest(t *testing.T, path string) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(path, "w-test", 1337)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestIndex_PlacementsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s := openTest(t, path)

	s.WritePlacements(12, [2]int{3, -4}, []world.PlacementRow{
		{ID: "C3_-4_tree_0", Category: "tree", Kind: "tree", X: 200, Y: 10, Z: -250, Yaw: 1.2, Scale: 1.1, Quality: 3},
		{ID: "C3_-4_tree_1", Category: "tree", Kind: "tree", X: 210, Y: 10, Z: -260, Yaw: 0.4, Scale: 0.9, Quality: 2},
	})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTest(t, path)
	defer s.Close()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM placements WHERE cell_x=3 AND cell_z=-4`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("placements persisted %d, want 2", n)
	}
	var cat string
	var quality float64
	if err := s.db.QueryRow(`SELECT category, quality FROM placements WHERE id='C3_-4_tree_0'`).Scan(&cat, &quality); err != nil {
		t.Fatalf("row: %v", err)
	}
	if cat != "tree" || quality != 3 {
		t.Fatalf("row fields category=%q quality=%v", cat, quality)
	}
}

func TestIndex_TombstoneDeletesPlacementAndLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s := openTest(t, path)

	s.WritePlacements(5, [2]int{0, 0}, []world.PlacementRow{
		{ID: "C0_0_rock_0", Category: "rock", Kind: "rock", Scale: 1},
		{ID: "C0_0_rock_1", Category: "rock", Kind: "rock", Scale: 1},
	})
	s.WriteTombstone(9, [2]int{0, 0}, "C0_0_rock_0")
	s.WriteTombstone(9, [2]int{7, 7}, "C7_7_tree_2")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTest(t, path)
	defer s.Close()

	stones, err := s.LoadTombstones()
	if err != nil {
		t.Fatalf("load tombstones: %v", err)
	}
	if got := stones[[2]int{0, 0}]; len(got) != 1 || got[0] != "C0_0_rock_0" {
		t.Fatalf("cell 0,0 tombstones %v", got)
	}
	if got := stones[[2]int{7, 7}]; len(got) != 1 || got[0] != "C7_7_tree_2" {
		t.Fatalf("cell 7,7 tombstones %v", got)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM placements WHERE id='C0_0_rock_0'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("tombstoned placement row still present")
	}
}

func TestIndex_FrameRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s := openTest(t, path)

	s.WriteFrame(world.FrameRow{Frame: 100, ElapsedMS: 4.5, Overrun: true, CellsLoaded: 9, Content: 120, Executed: 40, Failed: 1, Digest: "abc"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTest(t, path)
	defer s.Close()
	var overrun, cells int
	var digest string
	if err := s.db.QueryRow(`SELECT overrun, cells, digest FROM frames WHERE frame=100`).Scan(&overrun, &cells, &digest); err != nil {
		t.Fatalf("frame row: %v", err)
	}
	if overrun != 1 || cells != 9 || digest != "abc" {
		t.Fatalf("frame row overrun=%d cells=%d digest=%q", overrun, cells, digest)
	}
}

func TestIndex_MetaMismatchRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s := openTest(t, path)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := OpenSQLite(path, "w-test", 99); err == nil || !strings.Contains(err.Error(), "seed") {
		t.Fatalf("seed mismatch not rejected: %v", err)
	}
	if _, err := OpenSQLite(path, "w-other", 1337); err == nil || !strings.Contains(err.Error(), "world_id") {
		t.Fatalf("world id mismatch not rejected: %v", err)
	}
}
