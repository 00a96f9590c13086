package arbiter

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/trafficlab/crossing/internal/signal"
)

// Voter is the pedestrian-acknowledgment collaborator. Granted is the
// node's vote; a transport error means the node was unreachable and the
// arbitrator proceeds as if granted (availability over consistency).
type Voter interface {
	Vote(ctx context.Context, pair signal.Pair) (granted bool, err error)
}

// VoterFunc adapts a function to the Voter interface.
type VoterFunc func(ctx context.Context, pair signal.Pair) (bool, error)

// Vote implements Voter.
func (f VoterFunc) Vote(ctx context.Context, pair signal.Pair) (bool, error) {
	return f(ctx, pair)
}

// Arbitrator owns one controller instance's intersection state: the signal
// board, the two per-direction VIP queues, the intersection mutex, and the
// state machine that runs transitions.
//
// A single coarse state lock guards the board and both queues. The
// intersection mutex is a logically separate, longer-held exclusion
// spanning a whole transition plus the crossing wait; it is never held
// while waiting for the state lock's data.
//
// Ordering guarantee: within this instance, VIP requests are served in
// (priority asc, arrival asc) order per direction, and contention between
// the two directions is resolved by comparing queue heads, which bounds
// starvation of either direction to one round of the opposing service.
// Requests landing on different controller instances behind the balancer
// carry no cross-instance ordering guarantee.
type Arbitrator struct {
	mu       sync.Mutex
	board    *signal.Board
	queues   map[signal.Pair][]VIPRequest
	machine  *signal.StateMachine
	ix       *signal.Intersection
	voter    Voter
	onServed func(VIPRequest)
	name     string
	timings  signal.Timings
}

// New returns an arbitrator with a freshly initialized board. name tags
// log lines and the intersection holder.
func New(name string, voter Voter, timings signal.Timings) *Arbitrator {
	a := &Arbitrator{
		name:  name,
		board: signal.NewBoard(),
		queues: map[signal.Pair][]VIPRequest{
			signal.Pair12: nil,
			signal.Pair34: nil,
		},
		ix:      signal.NewIntersection(),
		voter:   voter,
		timings: timings,
	}
	a.machine = signal.NewStateMachine(name, a.board, &a.mu, timings)
	return a
}

// Machine exposes the state machine so the owner can hook status pushes.
func (a *Arbitrator) Machine() *signal.StateMachine { return a.machine }

// SetOnServed registers a hook invoked after each VIP completes its
// crossing, outside all locks. Used for audit logging.
func (a *Arbitrator) SetOnServed(fn func(VIPRequest)) { a.onServed = fn }

// Signals returns a copy of the current signal status table.
func (a *Arbitrator) Signals() map[string]signal.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board.Snapshot()
}

// SignalStrings returns the status table in wire form.
func (a *Arbitrator) SignalStrings() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board.SnapshotStrings()
}

// GreenPair returns the direction-pair currently green for vehicles.
func (a *Arbitrator) GreenPair() signal.Pair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board.GreenPair()
}

// IntersectionHolder reports who currently holds the intersection mutex.
func (a *Arbitrator) IntersectionHolder() string { return a.ix.Holder() }

// PendingVIPs returns the combined length of both queues.
func (a *Arbitrator) PendingVIPs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queues[signal.Pair12]) + len(a.queues[signal.Pair34])
}

// VIPStatus returns the queued requests per direction, in service order,
// with waiting times computed against now.
func (a *Arbitrator) VIPStatus(now time.Time) map[string][]VIPInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]VIPInfo, 2)
	for _, pair := range []signal.Pair{signal.Pair12, signal.Pair34} {
		infos := make([]VIPInfo, 0, len(a.queues[pair]))
		for _, req := range a.queues[pair] {
			infos = append(infos, VIPInfo{
				VehicleID:   req.VehicleID,
				VehicleType: VehicleType(req.Priority),
				Priority:    req.Priority,
				WaitingSecs: now.Sub(req.ArrivalTime).Seconds(),
			})
		}
		out[pair.String()] = infos
	}
	return out
}

// Enqueue inserts a request into its direction's queue, keeping the queue
// sorted by the total order, and returns the request with a generated
// vehicle ID when the caller supplied none. It does not drain; SubmitVIP
// is the usual entry point.
func (a *Arbitrator) Enqueue(req VIPRequest) VIPRequest {
	if req.VehicleID == "" {
		req.VehicleID = uuid.NewString()[:8]
	}
	if req.ArrivalTime.IsZero() {
		req.ArrivalTime = time.Now()
	}

	a.mu.Lock()
	q := append(a.queues[req.TargetPair], req)
	slices.SortStableFunc(q, func(x, y VIPRequest) int {
		if x.Before(y) {
			return -1
		}
		if y.Before(x) {
			return 1
		}
		return 0
	})
	a.queues[req.TargetPair] = q
	a.mu.Unlock()

	log.Printf("arbiter[%s]: queued %s for %s", a.name, req.Label(), req.TargetPair)
	return req
}

// SubmitVIP registers a high-priority vehicle and drains every pending VIP
// before returning. The returned request carries the effective vehicle ID.
func (a *Arbitrator) SubmitVIP(ctx context.Context, req VIPRequest) VIPRequest {
	req = a.Enqueue(req)
	a.Drain(ctx)
	return req
}

// SubmitNormal handles a normal traffic request for pair. Any pending VIP
// work is flushed first, so VIPs always preempt normal traffic. The return
// value is false when the pedestrian node denied the transition.
func (a *Arbitrator) SubmitNormal(ctx context.Context, pair signal.Pair) bool {
	if n := a.PendingVIPs(); n > 0 {
		log.Printf("arbiter[%s]: %d VIPs pending, deferring normal traffic for %s", a.name, n, pair)
		a.Drain(ctx)
	}

	if !a.vote(ctx, pair, "normal traffic") {
		return false
	}

	a.ix.Acquire("normal traffic")
	defer a.ix.Release()
	log.Printf("arbiter[%s]: normal traffic acquired intersection for %s", a.name, pair)

	a.mu.Lock()
	current := a.board.GreenPair()
	a.mu.Unlock()
	if current != pair {
		a.machine.Transition(pair)
	} else {
		log.Printf("arbiter[%s]: intersection already configured for %s", a.name, pair)
	}
	return true
}

// Drain serves queued VIP requests until both queues are empty. When both
// directions have waiting requests — the deadlock case — the two queue
// heads are compared by the total order and the winner's direction is
// served next; the loser stays queued for the following iteration.
func (a *Arbitrator) Drain(ctx context.Context) {
	for {
		a.mu.Lock()
		q12, q34 := a.queues[signal.Pair12], a.queues[signal.Pair34]
		var next signal.Pair
		switch {
		case len(q12) > 0 && len(q34) > 0:
			if q12[0].Before(q34[0]) {
				next = signal.Pair12
			} else {
				next = signal.Pair34
			}
			log.Printf("arbiter[%s]: deadlock resolved: %s beats %s",
				a.name, a.queues[next][0].Label(), a.queues[next.Complement()][0].Label())
		case len(q12) > 0:
			next = signal.Pair12
		case len(q34) > 0:
			next = signal.Pair34
		default:
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		a.serveNext(ctx, next)
	}
}

// serveNext pops and serves the head request of pair's queue.
//
// A pedestrian DENY drops the request without re-queueing it. That is
// deliberate policy: the vehicle is assumed to reroute rather than wait
// out pedestrians.
func (a *Arbitrator) serveNext(ctx context.Context, pair signal.Pair) {
	a.mu.Lock()
	q := a.queues[pair]
	if len(q) == 0 {
		a.mu.Unlock()
		return
	}
	vip := q[0]
	a.queues[pair] = q[1:]
	a.mu.Unlock()

	if !a.vote(ctx, pair, vip.Label()) {
		log.Printf("arbiter[%s]: %s dropped on pedestrian denial", a.name, vip.Label())
		return
	}

	a.ix.Acquire(vip.Label())
	log.Printf("arbiter[%s]: %s acquired intersection", a.name, vip.Label())

	a.mu.Lock()
	current := a.board.GreenPair()
	a.mu.Unlock()
	if current != pair {
		a.machine.Transition(pair)
	}

	// Hold the pair green while the vehicle crosses.
	time.Sleep(a.timings.Crossing)

	a.ix.Release()
	log.Printf("arbiter[%s]: %s released intersection", a.name, vip.Label())

	if a.onServed != nil {
		a.onServed(vip)
	}
}

// vote obtains the pedestrian acknowledgment for pair. An unreachable
// pedestrian node counts as a grant so the intersection keeps operating in
// degraded mode.
func (a *Arbitrator) vote(ctx context.Context, pair signal.Pair, who string) bool {
	granted, err := a.voter.Vote(ctx, pair)
	if err != nil {
		log.Printf("arbiter[%s]: pedestrian node unreachable, granting %s for %s: %v", a.name, who, pair, err)
		return true
	}
	if !granted {
		log.Printf("arbiter[%s]: pedestrian denied %s for %s", a.name, who, pair)
		return false
	}
	return true
}
