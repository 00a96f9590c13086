package clock

import (
	"sync"
	"time"
)

// Clock is a node's logical wall clock: real time plus an accumulated
// signed skew. Every node starts with a configured skew (deliberately
// large in test deployments, e.g. -45 minutes on the pedestrian node) and
// the Berkeley protocol gradually corrects it.
//
// Thread-safe: the skew is read by every timestamped operation and written
// by sync corrections arriving on the RPC path.
type Clock struct {
	mu   sync.RWMutex
	skew time.Duration
}

// New returns a clock with the given initial skew.
func New(initialSkew time.Duration) *Clock {
	return &Clock{skew: initialSkew}
}

// Now returns the node's current corrected time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.skew)
}

// Skew returns the current accumulated skew.
func (c *Clock) Skew() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skew
}

// Offset returns this clock's deviation from the given reference time:
// local corrected time minus serverTime. This is the value a peer reports
// in step 2 of a Berkeley round.
func (c *Clock) Offset(serverTime time.Time) time.Duration {
	return c.Now().Sub(serverTime)
}

// SetEpoch slams the clock to the given absolute time by recomputing the
// skew against real time. This is the peer-side correction step.
func (c *Clock) SetEpoch(epoch time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew = time.Until(epoch)
}

// Adjust adds d to the accumulated skew. This is the coordinator-side
// correction step: newEpoch - serverTime.
func (c *Clock) Adjust(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew += d
}
