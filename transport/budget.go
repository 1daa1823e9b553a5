package transport

import (
	"context"
	"time"
)

// DefaultTimeout is the budget shared by the write and read phases of a
// request when none is configured.
const DefaultTimeout = 200 * time.Millisecond

// Budget is the single countdown shared by the write and read phases of one
// request. The deadline is computed once, when the first phase begins, and
// every blocking operation of the request is bounded by it: time spent
// writing is time the read no longer has.
//
// A Budget belongs to exactly one request and is not safe for concurrent use.
type Budget struct {
	total    time.Duration
	deadline time.Time
	mark     time.Time
	phases   []phaseTiming
}

type phaseTiming struct {
	name    string
	elapsed time.Duration
}

// NewBudget returns an unstarted budget of total. A non-positive total falls
// back to DefaultTimeout.
func NewBudget(total time.Duration) *Budget {
	if total <= 0 {
		total = DefaultTimeout
	}
	return &Budget{total: total}
}

// Begin starts the countdown if it has not started yet. If ctx carries an
// earlier deadline, that one wins.
func (b *Budget) Begin(ctx context.Context) {
	if !b.deadline.IsZero() {
		return
	}
	now := time.Now()
	b.mark = now
	b.deadline = now.Add(b.total)
	if dl, ok := ctx.Deadline(); ok && dl.Before(b.deadline) {
		b.deadline = dl
	}
}

// Total returns the configured budget.
func (b *Budget) Total() time.Duration {
	return b.total
}

// Deadline returns the absolute deadline, or the zero time before Begin.
func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Remaining returns the time left. Before Begin the whole budget remains.
func (b *Budget) Remaining() time.Duration {
	if b.deadline.IsZero() {
		return b.total
	}
	return time.Until(b.deadline)
}

// Err returns ErrTimeout once the budget is used up.
func (b *Budget) Err() error {
	if b.Remaining() <= 0 {
		return ErrTimeout
	}
	return nil
}

// Spend debits the wall time elapsed since the previous phase ended (or since
// Begin) and records it under phase. It returns the debited duration.
func (b *Budget) Spend(phase string) time.Duration {
	now := time.Now()
	if b.mark.IsZero() {
		b.mark = now
	}
	d := now.Sub(b.mark)
	b.mark = now
	b.phases = append(b.phases, phaseTiming{name: phase, elapsed: d})
	return d
}

// Elapsed returns the time spent in phase, or zero if it never completed.
func (b *Budget) Elapsed(phase string) time.Duration {
	var d time.Duration
	for _, p := range b.phases {
		if p.name == phase {
			d += p.elapsed
		}
	}
	return d
}

// Spent returns the total time debited so far.
func (b *Budget) Spent() time.Duration {
	var d time.Duration
	for _, p := range b.phases {
		d += p.elapsed
	}
	return d
}
