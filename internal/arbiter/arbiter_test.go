package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlab/crossing/internal/signal"
)

func fastTimings() signal.Timings {
	return signal.Timings{
		PedestrianBlink:  time.Millisecond,
		PedestrianYellow: time.Millisecond,
		VehicleYellow:    time.Millisecond,
		Crossing:         time.Millisecond,
	}
}

func grantAll(context.Context, signal.Pair) (bool, error) { return true, nil }

// servedRecorder captures the order in which VIPs complete their crossing.
type servedRecorder struct {
	mu     sync.Mutex
	served []VIPRequest
}

func (s *servedRecorder) record(req VIPRequest) {
	s.mu.Lock()
	s.served = append(s.served, req)
	s.mu.Unlock()
}

func (s *servedRecorder) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.served))
	for i, r := range s.served {
		out[i] = r.VehicleID
	}
	return out
}

// TestVIPRequestOrder pins the total order: priority ascending, ties by
// earlier arrival.
func TestVIPRequestOrder(t *testing.T) {
	base := time.Now()
	a := VIPRequest{VehicleID: "a", Priority: 1, ArrivalTime: base.Add(time.Second)}
	b := VIPRequest{VehicleID: "b", Priority: 2, ArrivalTime: base}
	c := VIPRequest{VehicleID: "c", Priority: 1, ArrivalTime: base}

	assert.True(t, a.Before(b), "lower priority number wins regardless of arrival")
	assert.False(t, b.Before(a))
	assert.True(t, c.Before(a), "equal priority: earlier arrival wins")
	assert.False(t, a.Before(c))
}

// TestVehicleType pins the priority-to-class mapping.
func TestVehicleType(t *testing.T) {
	assert.Equal(t, "AMBULANCE", VehicleType(1))
	assert.Equal(t, "FIRE_TRUCK", VehicleType(2))
	assert.Equal(t, "POLICE", VehicleType(3))
	assert.Equal(t, "VIP_CAR", VehicleType(4))
	assert.Equal(t, "VIP_P7", VehicleType(7))
}

// TestEnqueueKeepsQueueSorted verifies insertion order does not leak into
// service order.
func TestEnqueueKeepsQueueSorted(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	base := time.Now()

	a.Enqueue(VIPRequest{VehicleID: "late-low", Priority: 3, ArrivalTime: base, TargetPair: signal.Pair12})
	a.Enqueue(VIPRequest{VehicleID: "amb", Priority: 1, ArrivalTime: base.Add(time.Second), TargetPair: signal.Pair12})
	a.Enqueue(VIPRequest{VehicleID: "fire", Priority: 2, ArrivalTime: base, TargetPair: signal.Pair12})

	status := a.VIPStatus(time.Now())
	q := status[signal.Pair12.String()]
	require.Len(t, q, 3)
	assert.Equal(t, []string{"amb", "fire", "late-low"},
		[]string{q[0].VehicleID, q[1].VehicleID, q[2].VehicleID})
	assert.Equal(t, "AMBULANCE", q[0].VehicleType)
}

// TestEnqueueGeneratesVehicleID verifies a caller-less ID gets filled in.
func TestEnqueueGeneratesVehicleID(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	req := a.Enqueue(VIPRequest{Priority: 1, TargetPair: signal.Pair12})
	assert.Len(t, req.VehicleID, 8)
	assert.False(t, req.ArrivalTime.IsZero())
}

// TestDrainDeadlockResolution is the two-direction contention case: an
// ambulance on [1,2] and a fire truck on [3,4] pending simultaneously.
// The ambulance's direction must be served first, then the fire truck's,
// with no further [1,2] requests pending.
func TestDrainDeadlockResolution(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	base := time.Now()
	a.Enqueue(VIPRequest{VehicleID: "A", Priority: 1, ArrivalTime: base, TargetPair: signal.Pair12})
	a.Enqueue(VIPRequest{VehicleID: "B", Priority: 2, ArrivalTime: base, TargetPair: signal.Pair34})

	a.Drain(context.Background())

	assert.Equal(t, []string{"A", "B"}, rec.ids())
	assert.Equal(t, 0, a.PendingVIPs())
	// B was served last, so its pair holds the green.
	assert.Equal(t, signal.Pair34, a.GreenPair())
}

// TestDrainPriorityTieArrivalBreaks verifies the end-to-end tie case:
// equal priority on both directions, the earlier arrival goes first.
func TestDrainPriorityTieArrivalBreaks(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	base := time.Now()
	a.Enqueue(VIPRequest{VehicleID: "A", Priority: 1, ArrivalTime: base, TargetPair: signal.Pair12})
	a.Enqueue(VIPRequest{VehicleID: "B", Priority: 1, ArrivalTime: base.Add(time.Millisecond), TargetPair: signal.Pair34})

	a.Drain(context.Background())

	assert.Equal(t, []string{"A", "B"}, rec.ids())
}

// TestSubmitVIPServesQueue verifies SubmitVIP drains everything it finds.
func TestSubmitVIPServesQueue(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	req := a.SubmitVIP(context.Background(), VIPRequest{
		VehicleID: "amb-1", Priority: 1, TargetPair: signal.Pair12,
	})

	assert.Equal(t, "amb-1", req.VehicleID)
	assert.Equal(t, []string{"amb-1"}, rec.ids())
	assert.Equal(t, 0, a.PendingVIPs())
	assert.Equal(t, signal.Pair12, a.GreenPair())
	assert.Equal(t, "", a.IntersectionHolder())
}

// TestSubmitNormalFlushesVIPsFirst verifies pending VIP work preempts a
// normal request.
func TestSubmitNormalFlushesVIPsFirst(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	a.Enqueue(VIPRequest{VehicleID: "amb", Priority: 1, TargetPair: signal.Pair12})

	ok := a.SubmitNormal(context.Background(), signal.Pair34)
	require.True(t, ok)

	assert.Equal(t, []string{"amb"}, rec.ids(), "VIP must be served before normal traffic")
	assert.Equal(t, signal.Pair34, a.GreenPair(), "normal request completed after the VIP")
}

// TestSubmitNormalIdempotent verifies a request for the already-green pair
// succeeds without running a transition.
func TestSubmitNormalIdempotent(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())

	transitions := 0
	a.Machine().SetOnChange(func(map[string]signal.Status) { transitions++ })

	// The board boots with [3,4] green.
	require.Equal(t, signal.Pair34, a.GreenPair())
	ok := a.SubmitNormal(context.Background(), signal.Pair34)

	require.True(t, ok)
	assert.Equal(t, 0, transitions, "no transition may run for the already-green pair")

	signals := a.Signals()
	assert.Equal(t, signal.Green, signals["3"])
	assert.Equal(t, signal.Green, signals["4"])
	assert.Equal(t, signal.Red, signals["1"])
	assert.Equal(t, signal.Red, signals["2"])
}

// TestSubmitNormalDenied verifies a pedestrian DENY aborts the request.
func TestSubmitNormalDenied(t *testing.T) {
	deny := VoterFunc(func(context.Context, signal.Pair) (bool, error) { return false, nil })
	a := New("test", deny, fastTimings())

	ok := a.SubmitNormal(context.Background(), signal.Pair12)

	assert.False(t, ok)
	assert.Equal(t, signal.Pair34, a.GreenPair(), "denied request must not transition")
}

// TestVIPDeniedIsDroppedNotRequeued pins the documented drop-on-deny
// policy for VIPs.
func TestVIPDeniedIsDroppedNotRequeued(t *testing.T) {
	deny := VoterFunc(func(context.Context, signal.Pair) (bool, error) { return false, nil })
	a := New("test", deny, fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	a.SubmitVIP(context.Background(), VIPRequest{VehicleID: "amb", Priority: 1, TargetPair: signal.Pair12})

	assert.Empty(t, rec.ids(), "denied VIP must not be served")
	assert.Equal(t, 0, a.PendingVIPs(), "denied VIP must not be re-queued")
	assert.Equal(t, signal.Pair34, a.GreenPair())
}

// TestUnreachableVoterGrants verifies degraded mode: a voter error counts
// as a grant.
func TestUnreachableVoterGrants(t *testing.T) {
	down := VoterFunc(func(context.Context, signal.Pair) (bool, error) {
		return false, errors.New("connection refused")
	})
	a := New("test", down, fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	a.SubmitVIP(context.Background(), VIPRequest{VehicleID: "amb", Priority: 1, TargetPair: signal.Pair12})

	assert.Equal(t, []string{"amb"}, rec.ids())
	assert.Equal(t, signal.Pair12, a.GreenPair())
}

// TestPriorityOverridesArrivalWithinDirection verifies a late ambulance
// jumps ahead of an earlier fire truck in the same queue.
func TestPriorityOverridesArrivalWithinDirection(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	base := time.Now()
	a.Enqueue(VIPRequest{VehicleID: "fire", Priority: 2, ArrivalTime: base, TargetPair: signal.Pair12})
	a.Enqueue(VIPRequest{VehicleID: "amb", Priority: 1, ArrivalTime: base.Add(time.Second), TargetPair: signal.Pair12})

	a.Drain(context.Background())

	assert.Equal(t, []string{"amb", "fire"}, rec.ids())
}

// TestConcurrentSubmissions exercises the state lock and intersection
// mutex under parallel VIP and normal submissions.
func TestConcurrentSubmissions(t *testing.T) {
	a := New("test", VoterFunc(grantAll), fastTimings())
	rec := &servedRecorder{}
	a.SetOnServed(rec.record)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair := signal.Pair12
			if i%2 == 0 {
				pair = signal.Pair34
			}
			if i%3 == 0 {
				a.SubmitVIP(context.Background(), VIPRequest{Priority: 1 + i%4, TargetPair: pair})
			} else {
				a.SubmitNormal(context.Background(), pair)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, a.PendingVIPs())
	assert.Equal(t, "", a.IntersectionHolder())

	// Invariant: exactly one pair green, its complement red.
	signals := a.Signals()
	green := a.GreenPair()
	for _, id := range green.VehicleSignals() {
		assert.Equal(t, signal.Green, signals[id])
	}
	for _, id := range green.Complement().VehicleSignals() {
		assert.Equal(t, signal.Red, signals[id])
	}
}
