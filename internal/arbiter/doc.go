// Package arbiter implements priority arbitration for the intersection:
// per-direction VIP queues, deadlock resolution between the two conflicting
// directions, and the gating of normal traffic behind pending VIP work.
//
// # Service Order
//
// VIP requests carry a small positive priority (1 = highest, AMBULANCE)
// and a corrected arrival timestamp. The total order is (priority asc,
// arrival asc). Each direction-pair keeps its own queue, sorted on insert.
//
// # The Deadlock Case
//
// When both direction-pairs have waiting VIPs, each wants the other's red.
// The arbitrator compares the two queue heads by the total order and
// serves the winner's direction; the loser stays queued and is served once
// it becomes the sole contender or wins a later comparison. This bounds
// starvation of a direction to one round of the opposing direction's
// service.
//
// # Normal Traffic
//
// A normal request first flushes all pending VIP work, then asks the
// pedestrian node for its vote, then takes the intersection mutex and
// transitions if the target pair is not already green. VIPs therefore
// always preempt normal traffic, and a request targeting the already-green
// pair completes without running the transition sequence.
//
// # Denial Policy
//
// A pedestrian DENY drops the current request — VIP or normal — without
// re-queueing or retrying. An unreachable pedestrian node is an implicit
// grant (degraded mode). Both behaviors are deliberate and inherited from
// the system this replaces.
package arbiter
