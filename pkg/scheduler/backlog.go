package scheduler

import "time"

// ProductionAttempt is one ticker firing waiting to become a build.
type ProductionAttempt struct {
	Timestamp time.Time
}

// backlog is a bounded FIFO of production attempts. When full, the oldest
// attempt is dropped to make room; a stale attempt is worth less than a
// fresh one.
type backlog struct {
	attempts []ProductionAttempt
	max      int
}

func newBacklog(max int) *backlog {
	if max <= 0 {
		max = 1
	}
	return &backlog{max: max}
}

// push appends an attempt, reporting whether an older one was dropped.
func (b *backlog) push(a ProductionAttempt) (dropped bool) {
	if len(b.attempts) >= b.max {
		b.attempts = b.attempts[1:]
		dropped = true
	}
	b.attempts = append(b.attempts, a)
	return dropped
}

// pop removes and returns the oldest attempt.
func (b *backlog) pop() (ProductionAttempt, bool) {
	if len(b.attempts) == 0 {
		return ProductionAttempt{}, false
	}
	a := b.attempts[0]
	b.attempts = b.attempts[1:]
	return a, true
}

func (b *backlog) len() int { return len(b.attempts) }
