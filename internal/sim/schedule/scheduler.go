// Package schedule spreads deferred world-mutation work across frames.
// Four priority tiers drain most-urgent first; within a tier tasks run
// FIFO, except that a task whose type has used up its per-frame sub-budget
// rotates to the back of the queue so other types are not starved.
package schedule

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/collin2985/chunkstream/internal/sim/frame"
)

type Tier int

const (
	TierImmediate Tier = iota
	TierHigh
	TierNormal
	TierLow

	numTiers = 4
)

// Kind tags a task for per-type budget accounting.
type Kind string

const (
	KindScene      Kind = "scene"
	KindPhysics    Kind = "physics"
	KindNavigation Kind = "navigation"
	KindGenerate   Kind = "generate"
	KindTeardown   Kind = "teardown"
	KindBroadcast  Kind = "broadcast"
)

type Task struct {
	Kind Kind
	Tier Tier
	// ID deduplicates pending tasks and matches region cancellation.
	// Empty means anonymous: never deduped, never cancellable.
	ID  string
	Run func() error

	at time.Time
}

type Config struct {
	// KindBudget caps per-type execution time inside one drain. Kinds
	// missing from the map get DefaultKindBudget.
	KindBudget        map[Kind]time.Duration
	DefaultKindBudget time.Duration
	// EmergencyPending is the backlog high-water mark. Above it the drain
	// runs against the broker's emergency budget and ignores sub-budgets
	// so the backlog cannot grow without bound.
	EmergencyPending int
}

type Scheduler struct {
	cfg Config
	lg  *log.Logger

	queues  [numTiers][]Task
	ids     map[string]struct{}
	pending int

	executed uint64
	failed   uint64
	deduped  uint64
	cleared  uint64

	now func() time.Time
}

func New(cfg Config, lg *log.Logger) *Scheduler {
	if cfg.DefaultKindBudget <= 0 {
		cfg.DefaultKindBudget = 2 * time.Millisecond
	}
	if cfg.EmergencyPending <= 0 {
		cfg.EmergencyPending = 256
	}
	return &Scheduler{
		cfg: cfg,
		lg:  lg,
		ids: make(map[string]struct{}),
		now: time.Now,
	}
}

// SetClock injects the time source used for sub-budget accounting and
// enqueue timestamps. Call before the first Submit.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.lg != nil {
		s.lg.Printf(format, args...)
	}
}

// Submit queues a task. Returns false when a task with the same id is
// already pending. The id is released when the task starts, so a running
// task may re-queue itself for multi-pass sweeps.
func (s *Scheduler) Submit(t Task) bool {
	if t.Run == nil {
		return false
	}
	if t.Tier < TierImmediate {
		t.Tier = TierImmediate
	}
	if t.Tier > TierLow {
		t.Tier = TierLow
	}
	if t.ID != "" {
		if _, dup := s.ids[t.ID]; dup {
			s.deduped++
			return false
		}
		s.ids[t.ID] = struct{}{}
	}
	t.at = s.now()
	s.queues[t.Tier] = append(s.queues[t.Tier], t)
	s.pending++
	return true
}

func (s *Scheduler) budgetFor(k Kind) time.Duration {
	if d, ok := s.cfg.KindBudget[k]; ok && d > 0 {
		return d
	}
	return s.cfg.DefaultKindBudget
}

type DrainReport struct {
	Executed  int
	Failed    int
	Emergency bool
}

// DrainFrame runs queued tasks until the broker's budget is spent. The
// budget is checked between tasks only; the one task that crosses the
// line runs to completion.
func (s *Scheduler) DrainFrame(b *frame.Broker) DrainReport {
	var rep DrainReport
	rep.Emergency = s.pending > s.cfg.EmergencyPending

	remaining := b.Remaining
	if rep.Emergency {
		remaining = b.EmergencyRemaining
	}

	spent := make(map[Kind]time.Duration)
	for tier := 0; tier < numTiers; tier++ {
		if !s.drainTier(tier, rep.Emergency, remaining, spent, &rep) {
			break
		}
	}
	return rep
}

// drainTier returns false when the overall budget is exhausted.
func (s *Scheduler) drainTier(tier int, emergency bool, remaining func() time.Duration, spent map[Kind]time.Duration, rep *DrainReport) bool {
	rotated := 0
	for len(s.queues[tier]) > 0 {
		if remaining() <= 0 {
			return false
		}
		t := s.queues[tier][0]
		if !emergency && spent[t.Kind] >= s.budgetFor(t.Kind) {
			if !s.tierHasOtherKind(tier, t.Kind) {
				// Nothing to be fair to; the type waits for next frame.
				return true
			}
			s.queues[tier] = append(s.queues[tier][1:], t)
			rotated++
			if rotated >= len(s.queues[tier]) {
				// Every remaining type is over its sub-budget.
				return true
			}
			continue
		}
		rotated = 0
		s.queues[tier] = s.queues[tier][1:]
		s.pending--
		if t.ID != "" {
			delete(s.ids, t.ID)
		}

		start := s.now()
		if err := s.runGuarded(t); err != nil {
			s.failed++
			rep.Failed++
			s.logf("task %s %q: %v", t.Kind, t.ID, err)
		}
		spent[t.Kind] += s.now().Sub(start)
		s.executed++
		rep.Executed++
	}
	return true
}

func (s *Scheduler) runGuarded(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run()
}

func (s *Scheduler) tierHasOtherKind(tier int, k Kind) bool {
	for _, t := range s.queues[tier] {
		if t.Kind != k {
			return true
		}
	}
	return false
}

// ClearRegion drops every pending task whose id starts with the region
// key. Used when a cell is invalidated before its tasks run.
func (s *Scheduler) ClearRegion(regionKey string) int {
	if regionKey == "" {
		return 0
	}
	removed := 0
	for tier := 0; tier < numTiers; tier++ {
		q := s.queues[tier][:0]
		for _, t := range s.queues[tier] {
			if t.ID != "" && strings.HasPrefix(t.ID, regionKey) {
				delete(s.ids, t.ID)
				removed++
				continue
			}
			q = append(q, t)
		}
		s.queues[tier] = q
	}
	s.pending -= removed
	s.cleared += uint64(removed)
	return removed
}

func (s *Scheduler) Pending() int { return s.pending }

func (s *Scheduler) PendingByKind() map[Kind]int {
	out := make(map[Kind]int)
	for tier := 0; tier < numTiers; tier++ {
		for _, t := range s.queues[tier] {
			out[t.Kind]++
		}
	}
	return out
}

type Stats struct {
	Pending    int
	Executed   uint64
	Failed     uint64
	Deduped    uint64
	Cleared    uint64
	OldestWait time.Duration
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		Pending:  s.pending,
		Executed: s.executed,
		Failed:   s.failed,
		Deduped:  s.deduped,
		Cleared:  s.cleared,
	}
	now := s.now()
	for tier := 0; tier < numTiers; tier++ {
		for _, t := range s.queues[tier] {
			if w := now.Sub(t.at); w > st.OldestWait {
				st.OldestWait = w
			}
		}
	}
	return st
}
