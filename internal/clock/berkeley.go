package clock

import (
	"context"
	"log"
	"time"
)

// DefaultPeerTimeout bounds each per-peer call in a sync round.
const DefaultPeerTimeout = 3 * time.Second

// Peer is one remote clock participating in Berkeley synchronization.
type Peer interface {
	// Name identifies the peer in logs and round results.
	Name() string

	// ClockValue reports the peer's offset from serverTime: its local
	// corrected time minus serverTime.
	ClockValue(ctx context.Context, serverTime time.Time) (time.Duration, error)

	// SetEpoch pushes the corrected epoch to the peer.
	SetEpoch(ctx context.Context, epoch time.Time) error
}

// Coordinator runs the Berkeley averaging protocol against a fixed peer
// set. The controller owning the reference epoch creates one and calls
// SyncOnce before every state-changing operation.
//
// Per-peer failures are strictly local: a peer that times out or errors is
// excluded from the average and receives no correction that round, and the
// round itself always completes.
type Coordinator struct {
	clock   *Clock
	peers   []Peer
	timeout time.Duration
}

// RoundResult summarizes one completed sync round, mainly for logging and
// tests.
type RoundResult struct {
	// Offsets holds the offset of every participant that contributed to
	// the average, including the coordinator's own zero entry.
	Offsets map[string]time.Duration

	// AvgOffset is the mean of Offsets.
	AvgOffset time.Duration

	// Epoch is the corrected time pushed to responding peers.
	Epoch time.Time

	// Synced is false when no peer responded and the round was a no-op.
	Synced bool
}

// NewCoordinator returns a coordinator for the given clock and peers.
// timeout <= 0 falls back to DefaultPeerTimeout.
func NewCoordinator(clock *Clock, peers []Peer, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultPeerTimeout
	}
	return &Coordinator{clock: clock, peers: peers, timeout: timeout}
}

// SyncOnce runs a single Berkeley round:
//
//  1. serverTime = local clock + accumulated skew
//  2. poll each peer's offset against serverTime, each under its own
//     timeout; non-responders are dropped from the round
//  3. average the collected offsets together with the coordinator's own
//     zero offset
//  4. push epoch = serverTime + average to every peer that responded
//  5. adjust the coordinator's own skew by epoch - serverTime
//
// When no peer responds the round is a no-op and the returned result has
// Synced = false.
func (c *Coordinator) SyncOnce(ctx context.Context) RoundResult {
	serverTime := c.clock.Now()

	offsets := map[string]time.Duration{"controller": 0}
	var responders []Peer

	for _, p := range c.peers {
		peerCtx, cancel := context.WithTimeout(ctx, c.timeout)
		off, err := p.ClockValue(peerCtx, serverTime)
		cancel()
		if err != nil {
			log.Printf("berkeley: %s unreachable, excluded this round: %v", p.Name(), err)
			continue
		}
		offsets[p.Name()] = off
		responders = append(responders, p)
	}

	if len(responders) == 0 {
		log.Printf("berkeley: no peers responded, skipping correction")
		return RoundResult{Offsets: offsets, Synced: false}
	}

	var sum time.Duration
	for _, off := range offsets {
		sum += off
	}
	avg := sum / time.Duration(len(offsets))
	epoch := serverTime.Add(avg)

	for _, p := range responders {
		peerCtx, cancel := context.WithTimeout(ctx, c.timeout)
		if err := p.SetEpoch(peerCtx, epoch); err != nil {
			// The peer contributed to the average but missed the
			// correction; it will be pulled in next round.
			log.Printf("berkeley: push to %s failed: %v", p.Name(), err)
		}
		cancel()
	}

	c.clock.Adjust(epoch.Sub(serverTime))
	log.Printf("berkeley: synced %d/%d peers, avg offset %+v", len(responders), len(c.peers), avg)

	return RoundResult{Offsets: offsets, AvgOffset: avg, Epoch: epoch, Synced: true}
}
