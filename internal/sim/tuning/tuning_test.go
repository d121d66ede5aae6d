package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := []byte("seed: 99\nframe:\n  rate_hz: 60\n  budget_ms: 4\nworld:\n  load_radius: 3\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tn, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tn.Seed != 99 {
		t.Fatalf("seed = %d, want 99", tn.Seed)
	}
	if tn.Frame.RateHz != 60 || tn.Frame.BudgetMs != 4 {
		t.Fatalf("frame = %+v", tn.Frame)
	}
	if tn.World.LoadRadius != 3 {
		t.Fatalf("load radius = %d, want 3", tn.World.LoadRadius)
	}
	// Untouched keys keep defaults.
	if tn.World.CellSize != 64 {
		t.Fatalf("cell size = %v, want default 64", tn.World.CellSize)
	}
	if tn.Scheduler.KindBudgetMs["generate"] != 3 {
		t.Fatalf("kind budgets lost defaults: %+v", tn.Scheduler.KindBudgetMs)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	tn, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if tn.World.LoadRadius != Default().World.LoadRadius {
		t.Fatalf("defaults not returned alongside error")
	}
}

func TestLoad_BadYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("frame: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDurationHelpers(t *testing.T) {
	tn := Default()
	if tn.FrameInterval() != time.Second/30 {
		t.Fatalf("frame interval = %v", tn.FrameInterval())
	}
	if tn.FrameBudget() != 6*time.Millisecond {
		t.Fatalf("frame budget = %v", tn.FrameBudget())
	}
	if tn.EmergencyBudget() != 24*time.Millisecond {
		t.Fatalf("emergency budget = %v", tn.EmergencyBudget())
	}
	if tn.DisposalInterval() != 250*time.Millisecond {
		t.Fatalf("disposal interval = %v", tn.DisposalInterval())
	}
}
