package schedule

import (
	"bytes"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/collin2985/chunkstream/internal/sim/frame"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *clock) cost(d time.Duration) func() error {
	return func() error {
		c.advance(d)
		return nil
	}
}

func newTestSched(cfg Config) (*Scheduler, *clock) {
	c := &clock{t: time.Unix(1000, 0)}
	s := New(cfg, nil)
	s.now = c.now
	return s, c
}

func TestSubmit_DedupByID(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	ran := 0
	task := Task{Kind: KindPhysics, Tier: TierNormal, ID: "cell:0,0:phys", Run: func() error { ran++; return nil }}
	if !s.Submit(task) {
		t.Fatalf("first submit rejected")
	}
	if s.Submit(task) {
		t.Fatalf("duplicate id accepted")
	}
	b.BeginFrame()
	s.DrainFrame(b)
	if ran != 1 {
		t.Fatalf("ran %d times, want 1", ran)
	}
	if !s.Submit(task) {
		t.Fatalf("submit after execution rejected")
	}
}

func TestDrainFrame_TierOrder(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	var order []string
	add := func(name string, tier Tier) {
		s.Submit(Task{Kind: KindScene, Tier: tier, Run: func() error {
			order = append(order, name)
			return nil
		}})
	}
	add("low", TierLow)
	add("immediate", TierImmediate)
	add("normal", TierNormal)
	add("high", TierHigh)

	b.BeginFrame()
	s.DrainFrame(b)
	want := []string{"immediate", "high", "normal", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestDrainFrame_FIFOWithinKind(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Submit(Task{Kind: KindNavigation, Tier: TierNormal, Run: func() error {
			order = append(order, i)
			return nil
		}})
	}
	b.BeginFrame()
	s.DrainFrame(b)
	for i := 0; i < 5; i++ {
		if order[i] != i {
			t.Fatalf("order %v not fifo", order)
		}
	}
}

func TestDrainFrame_StopsAtBudget(t *testing.T) {
	s, c := newTestSched(Config{DefaultKindBudget: 50 * time.Millisecond})
	b := frame.NewWithClock(3*time.Millisecond, 3*time.Millisecond, c.now)

	for i := 0; i < 10; i++ {
		s.Submit(Task{Kind: KindGenerate, Tier: TierNormal, Run: c.cost(time.Millisecond)})
	}
	b.BeginFrame()
	rep := s.DrainFrame(b)
	if rep.Executed != 3 {
		t.Fatalf("executed %d tasks, want 3", rep.Executed)
	}
	if s.Pending() != 7 {
		t.Fatalf("pending %d, want 7", s.Pending())
	}
}

func TestDrainFrame_RoundRobinFairness(t *testing.T) {
	s, c := newTestSched(Config{
		KindBudget: map[Kind]time.Duration{
			KindScene:   2 * time.Millisecond,
			KindPhysics: 2 * time.Millisecond,
		},
		EmergencyPending: 1000,
	})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	sceneRan, physRan := 0, 0
	for i := 0; i < 30; i++ {
		s.Submit(Task{Kind: KindScene, Tier: TierNormal, Run: func() error {
			sceneRan++
			c.advance(time.Millisecond)
			return nil
		}})
	}
	for i := 0; i < 30; i++ {
		s.Submit(Task{Kind: KindPhysics, Tier: TierNormal, Run: func() error {
			physRan++
			c.advance(time.Millisecond)
			return nil
		}})
	}

	frames := 0
	for s.Pending() > 0 && frames < 100 {
		b.BeginFrame()
		s.DrainFrame(b)
		frames++
		if d := sceneRan - physRan; d < -2 || d > 2 {
			t.Fatalf("fairness drift after frame %d: scene=%d physics=%d", frames, sceneRan, physRan)
		}
	}
	if sceneRan != 30 || physRan != 30 {
		t.Fatalf("drained scene=%d physics=%d in %d frames", sceneRan, physRan, frames)
	}
}

func TestDrainFrame_ErrorAndPanicIsolated(t *testing.T) {
	var buf bytes.Buffer
	c := &clock{t: time.Unix(1000, 0)}
	s := New(Config{}, log.New(&buf, "[sched] ", 0))
	s.now = c.now
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	ran := 0
	s.Submit(Task{Kind: KindScene, Tier: TierNormal, Run: func() error { return errors.New("boom") }})
	s.Submit(Task{Kind: KindScene, Tier: TierNormal, Run: func() error { panic("kaboom") }})
	s.Submit(Task{Kind: KindScene, Tier: TierNormal, Run: func() error { ran++; return nil }})

	b.BeginFrame()
	rep := s.DrainFrame(b)
	if rep.Executed != 3 || rep.Failed != 2 {
		t.Fatalf("report %+v, want 3 executed 2 failed", rep)
	}
	if ran != 1 {
		t.Fatalf("healthy task did not run")
	}
	if buf.Len() == 0 {
		t.Fatalf("failures not logged")
	}
}

func TestDrainFrame_EmergencyBudget(t *testing.T) {
	s, c := newTestSched(Config{
		DefaultKindBudget: 50 * time.Millisecond,
		EmergencyPending:  5,
	})
	b := frame.NewWithClock(3*time.Millisecond, 20*time.Millisecond, c.now)

	for i := 0; i < 10; i++ {
		s.Submit(Task{Kind: KindGenerate, Tier: TierNormal, Run: c.cost(time.Millisecond)})
	}
	b.BeginFrame()
	rep := s.DrainFrame(b)
	if !rep.Emergency {
		t.Fatalf("emergency not engaged at pending=10, mark=5")
	}
	if rep.Executed != 10 {
		t.Fatalf("executed %d under emergency, want 10", rep.Executed)
	}
}

func TestClearRegion_RemovesByPrefix(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	ran := map[string]bool{}
	add := func(id string) {
		s.Submit(Task{Kind: KindPhysics, Tier: TierNormal, ID: id, Run: func() error {
			ran[id] = true
			return nil
		}})
	}
	add("cell:3,-2:phys")
	add("cell:3,-2:nav")
	add("cell:1,1:phys")

	if n := s.ClearRegion("cell:3,-2:"); n != 2 {
		t.Fatalf("cleared %d, want 2", n)
	}
	b.BeginFrame()
	s.DrainFrame(b)
	if ran["cell:3,-2:phys"] || ran["cell:3,-2:nav"] {
		t.Fatalf("cleared task executed")
	}
	if !ran["cell:1,1:phys"] {
		t.Fatalf("unrelated task was cleared")
	}
	if !s.Submit(Task{Kind: KindPhysics, Tier: TierNormal, ID: "cell:3,-2:phys", Run: func() error { return nil }}) {
		t.Fatalf("id not released by clear")
	}
}

func TestDrainFrame_ExplicitRequeue(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	passes := 0
	var sweep func() error
	sweep = func() error {
		passes++
		if passes == 1 {
			if !s.Submit(Task{Kind: KindGenerate, Tier: TierNormal, ID: "sweep", Run: sweep}) {
				t.Fatalf("requeue from running task rejected")
			}
		}
		return nil
	}
	s.Submit(Task{Kind: KindGenerate, Tier: TierNormal, ID: "sweep", Run: sweep})

	b.BeginFrame()
	s.DrainFrame(b)
	if passes != 2 {
		t.Fatalf("sweep ran %d times, want 2", passes)
	}
}

func TestStats_Counters(t *testing.T) {
	s, c := newTestSched(Config{})
	b := frame.NewWithClock(10*time.Millisecond, 40*time.Millisecond, c.now)

	s.Submit(Task{Kind: KindScene, Tier: TierNormal, ID: "a", Run: func() error { return nil }})
	s.Submit(Task{Kind: KindScene, Tier: TierNormal, ID: "a", Run: func() error { return nil }})
	c.advance(5 * time.Millisecond)

	st := s.Stats()
	if st.Pending != 1 || st.Deduped != 1 {
		t.Fatalf("stats %+v", st)
	}
	if st.OldestWait != 5*time.Millisecond {
		t.Fatalf("oldest wait %v, want 5ms", st.OldestWait)
	}

	b.BeginFrame()
	s.DrainFrame(b)
	st = s.Stats()
	if st.Executed != 1 || st.Pending != 0 {
		t.Fatalf("stats after drain %+v", st)
	}
}
