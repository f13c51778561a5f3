// Package keylock serializes work per key (for example per account) while
// letting different keys proceed in parallel.
package keylock

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"tradeDesk/internal/ports"
)

// DefaultStripes is the number of lock stripes used by New.
const DefaultStripes = 256

// Locker maps keys onto a fixed set of stripes. Keys that hash to the same
// stripe share a lock, which is safe but may serialize unrelated keys.
type Locker struct {
	stripes []chan struct{}
}

// New creates a locker with DefaultStripes stripes.
func New() *Locker {
	return NewWithStripes(DefaultStripes)
}

// NewWithStripes creates a locker with n stripes (at least 1).
func NewWithStripes(n int) *Locker {
	if n < 1 {
		n = 1
	}
	l := &Locker{stripes: make([]chan struct{}, n)}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

// stripe uses FNV-1a for stable, deterministic routing.
func (l *Locker) stripe(key string) chan struct{} {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.stripes[int(h.Sum32()%uint32(len(l.stripes)))]
}

// Acquire blocks until the lock for key is held, timeout elapses or ctx is
// done. A timeout is reported as ports.ErrConflict so callers may retry.
// A non-positive timeout waits only on ctx.
func (l *Locker) Acquire(ctx context.Context, key string, timeout time.Duration) (release func(), err error) {
	s := l.stripe(key)

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer:
		return nil, fmt.Errorf("lock %q not acquired within %s: %w", key, timeout, ports.ErrConflict)
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %q: %w", key, ctx.Err())
	}
}
