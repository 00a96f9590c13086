// Package signal models the intersection itself: the status board for the
// four vehicle and four pedestrian signals, the deterministic transition
// sequence between the two direction-pairs, and the intersection mutex
// that admits exactly one light-changer at a time.
//
// # Invariant
//
// At any quiescent instant exactly one vehicle direction-pair is GREEN and
// the complementary pair is RED. Pedestrian signals mirror the blocking
// vehicle pair, with BLINKING_RED and YELLOW clearance phases while a
// transition is in flight.
//
// # Locking Discipline
//
// Two distinct exclusions exist and must not be merged:
//
//   - The state lock (owned by the arbiter) protects the data: the board
//     and the VIP queues. It is held for microseconds per access and never
//     across a sleep or a network call.
//   - The Intersection mutex protects the activity: who is currently
//     allowed to run a transition. It is held across the entire
//     multi-second pedestrian + vehicle sequence plus the crossing wait.
//
// The StateMachine takes the state lock around each board write, so status
// queries remain responsive while a transition sleeps between phases.
//
// # Transition Sequence
//
// Driving the intersection from pair A (green) to pair B:
//
//	P(B) BLINKING_RED ─5s─► P(B) RED
//	P(A) YELLOW       ─5s─► P(A) GREEN
//	V(A) YELLOW       ─2s─► V(A) RED ─► V(B) GREEN
//
// The sequence has no failure modes — it calls no peers — and always ends
// in the invariant-satisfying state GREEN(B)/RED(A).
package signal
