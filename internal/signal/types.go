package signal

import (
	"fmt"
)

// Status is the displayed state of a single vehicle or pedestrian signal.
type Status string

// Signal statuses. BLINKING_RED is the pedestrian clearance phase that
// precedes a pedestrian RED.
const (
	Red         Status = "RED"
	Yellow      Status = "YELLOW"
	Green       Status = "GREEN"
	BlinkingRed Status = "BLINKING_RED"
)

// Pair identifies one of the two mutually exclusive green-eligible
// direction-pairs of the intersection. The intersection has exactly two:
// signals 1 and 2 move together, as do signals 3 and 4.
type Pair int

// The two direction-pairs. PairNone is the zero value and never valid.
const (
	PairNone Pair = iota
	Pair12
	Pair34
)

// Complement returns the opposing direction-pair.
func (p Pair) Complement() Pair {
	if p == Pair12 {
		return Pair34
	}
	return Pair12
}

// VehicleSignals returns the vehicle signal IDs belonging to the pair.
func (p Pair) VehicleSignals() []string {
	if p == Pair12 {
		return []string{"1", "2"}
	}
	return []string{"3", "4"}
}

// PedestrianSignals returns the pedestrian signal IDs crossing the pair.
func (p Pair) PedestrianSignals() []string {
	if p == Pair12 {
		return []string{"P1", "P2"}
	}
	return []string{"P3", "P4"}
}

// Ints returns the wire form of the pair: [1,2] or [3,4].
func (p Pair) Ints() []int {
	if p == Pair12 {
		return []int{1, 2}
	}
	return []int{3, 4}
}

// String renders the pair the way the wire and the logs show it.
func (p Pair) String() string {
	switch p {
	case Pair12:
		return "[1,2]"
	case Pair34:
		return "[3,4]"
	}
	return "[none]"
}

// PairFromInts parses the wire form of a direction-pair. Only [1,2] and
// [3,4] are valid; everything else is an error.
func PairFromInts(ints []int) (Pair, error) {
	if len(ints) == 2 {
		if ints[0] == 1 && ints[1] == 2 {
			return Pair12, nil
		}
		if ints[0] == 3 && ints[1] == 4 {
			return Pair34, nil
		}
	}
	return PairNone, fmt.Errorf("invalid direction-pair %v, must be [1,2] or [3,4]", ints)
}

// Board holds the status of every signal at the intersection.
//
// Board is deliberately not synchronized: it is owned by a single
// controller instance and every read and write happens while holding that
// instance's state lock (the same lock that guards the VIP queues). The
// intersection mutex, which decides who may run a transition, is a
// separate and longer-held exclusion.
type Board struct {
	status map[string]Status
}

// NewBoard returns a board in the initial configuration: pair [3,4] green
// for vehicles, pedestrians crossing 1 and 2 green.
func NewBoard() *Board {
	return &Board{status: map[string]Status{
		"1": Red, "2": Red, "3": Green, "4": Green,
		"P1": Green, "P2": Green, "P3": Red, "P4": Red,
	}}
}

// Get returns the status of a single signal.
func (b *Board) Get(id string) Status {
	return b.status[id]
}

// SetAll sets every listed signal to the given status.
func (b *Board) SetAll(ids []string, s Status) {
	for _, id := range ids {
		b.status[id] = s
	}
}

// GreenPair returns the direction-pair currently green for vehicles.
// During a transition neither pair is fully green; the board then reports
// the pair that has not yet been taken down, matching how the transition
// sequence orders its writes.
func (b *Board) GreenPair() Pair {
	if b.status["1"] == Green && b.status["2"] == Green {
		return Pair12
	}
	return Pair34
}

// Snapshot returns a copy of the full status table keyed by signal ID.
func (b *Board) Snapshot() map[string]Status {
	out := make(map[string]Status, len(b.status))
	for id, s := range b.status {
		out[id] = s
	}
	return out
}

// SnapshotStrings returns the status table as plain strings for the wire.
func (b *Board) SnapshotStrings() map[string]string {
	out := make(map[string]string, len(b.status))
	for id, s := range b.status {
		out[id] = string(s)
	}
	return out
}
