// Package clock implements Berkeley-style clock synchronization for the
// crossing system: a per-node skewed Clock, an HTTP peer client plus the
// matching server handlers, and the Coordinator that runs one averaging
// round on demand.
//
// # Protocol
//
// The controller owns the reference epoch and re-synchronizes before every
// state-changing request:
//
//	controller                       peer
//	    │  POST /clock/value {t_s}     │
//	    │ ────────────────────────────►│
//	    │  {offset = t_peer - t_s}     │
//	    │ ◄──────────────────────────── │
//	    │         (average all offsets, own zero included)
//	    │  POST /clock/set {epoch}     │
//	    │ ────────────────────────────►│
//
// epoch = t_s + mean(offsets); the coordinator then adjusts its own skew
// by epoch - t_s, so all participants converge on the same virtual time.
//
// # Failure Semantics
//
// Per-peer timeouts are independent (3 s default). A peer that does not
// respond is excluded from the average and receives no correction that
// round; it is neither retried inside the round nor allowed to fail it.
// A round with zero responders is a no-op.
//
// # Times on the Wire
//
// Absolute times travel as Unix nanoseconds and offsets as signed
// nanoseconds, so peers with wildly wrong clocks (the test deployment
// starts the pedestrian node 45 minutes behind and the sensor node 30
// minutes ahead) exchange exact values.
package clock
