package signal

import (
	"sync"
)

// Intersection is the single-holder exclusion over "who may change the
// lights". It is held across an entire transition plus the crossing wait,
// which makes it the system's principal concurrency bottleneck — several
// seconds per acquisition under the default timings.
//
// It is intentionally a distinct type rather than a bare sync.Mutex: the
// holder is named (for logs and status) and acquisition order is explicit
// in the call sites. The short state lock guarding the board and the VIP
// queues must never be conflated with it. No nested acquisition: a holder
// must release before acquiring again.
type Intersection struct {
	slot   chan struct{}
	mu     sync.Mutex
	holder string
}

// NewIntersection returns an unheld intersection mutex.
func NewIntersection() *Intersection {
	return &Intersection{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the intersection is free, then records holder.
func (i *Intersection) Acquire(holder string) {
	i.slot <- struct{}{}
	i.mu.Lock()
	i.holder = holder
	i.mu.Unlock()
}

// TryAcquire acquires the intersection only if it is currently free.
func (i *Intersection) TryAcquire(holder string) bool {
	select {
	case i.slot <- struct{}{}:
	default:
		return false
	}
	i.mu.Lock()
	i.holder = holder
	i.mu.Unlock()
	return true
}

// Release frees the intersection. Only the current holder may call it;
// releasing an unheld intersection panics, as that always indicates a
// bookkeeping bug in the arbitration path.
func (i *Intersection) Release() {
	i.mu.Lock()
	i.holder = ""
	i.mu.Unlock()
	select {
	case <-i.slot:
	default:
		panic("signal: release of unheld intersection mutex")
	}
}

// Holder returns the name recorded by the current holder, or "" when the
// intersection is free.
func (i *Intersection) Holder() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.holder
}
