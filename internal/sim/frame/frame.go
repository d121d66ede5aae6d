// Package frame tracks the per-frame time budget shared by every system
// that defers work. The broker is advisory: callers consult HasTime or
// Remaining before starting non-trivial work and re-check inside loops,
// but nothing here can block or corrupt state if they don't.
package frame

import "time"

type Broker struct {
	budget    time.Duration
	emergency time.Duration

	seq      uint64
	start    time.Time
	overruns uint64

	now func() time.Time
}

func New(budget, emergency time.Duration) *Broker {
	return NewWithClock(budget, emergency, time.Now)
}

// NewWithClock injects the time source. Used by tests and offline tools
// that drive frames against a synthetic clock.
func NewWithClock(budget, emergency time.Duration, now func() time.Time) *Broker {
	if budget <= 0 {
		budget = 6 * time.Millisecond
	}
	if emergency < budget {
		emergency = budget
	}
	if now == nil {
		now = time.Now
	}
	return &Broker{budget: budget, emergency: emergency, now: now}
}

// BeginFrame resets the frame clock and returns the new frame sequence.
func (b *Broker) BeginFrame() uint64 {
	b.seq++
	b.start = b.now()
	return b.seq
}

func (b *Broker) Seq() uint64 { return b.seq }

func (b *Broker) Budget() time.Duration { return b.budget }

func (b *Broker) EmergencyBudget() time.Duration { return b.emergency }

func (b *Broker) Elapsed() time.Duration {
	if b.start.IsZero() {
		return 0
	}
	return b.now().Sub(b.start)
}

// Remaining is max(0, budget-elapsed).
func (b *Broker) Remaining() time.Duration {
	r := b.budget - b.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// EmergencyRemaining is max(0, emergencyBudget-elapsed).
func (b *Broker) EmergencyRemaining() time.Duration {
	r := b.emergency - b.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// HasTime reports whether at least min of the normal budget remains.
// min may be zero.
func (b *Broker) HasTime(min time.Duration) bool {
	return b.Remaining() >= min
}

type Report struct {
	Seq     uint64
	Elapsed time.Duration
	Overrun bool
}

// EndFrame closes the frame for accounting. Overruns are expected under
// load (the budget is checked between tasks, not inside one) and are
// counted, not treated as errors.
func (b *Broker) EndFrame() Report {
	el := b.Elapsed()
	over := el > b.budget
	if over {
		b.overruns++
	}
	return Report{Seq: b.seq, Elapsed: el, Overrun: over}
}

func (b *Broker) Overruns() uint64 { return b.overruns }
