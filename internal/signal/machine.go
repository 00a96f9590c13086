package signal

import (
	"log"
	"sync"
	"time"
)

// Timings holds the blocking durations of a transition. Production values
// follow the road-side sequencing; tests shrink them to milliseconds.
type Timings struct {
	// PedestrianBlink is how long the pedestrians crossing the target
	// pair see BLINKING_RED before their signal turns RED.
	PedestrianBlink time.Duration

	// PedestrianYellow is the warning phase before the complementary
	// pedestrians get GREEN.
	PedestrianYellow time.Duration

	// VehicleYellow is the warning phase before the old vehicle pair
	// turns RED.
	VehicleYellow time.Duration

	// Crossing is how long the intersection is held green for a vehicle
	// that requested it, before the intersection mutex is released.
	Crossing time.Duration
}

// DefaultTimings returns the standard road-side durations.
func DefaultTimings() Timings {
	return Timings{
		PedestrianBlink:  5 * time.Second,
		PedestrianYellow: 5 * time.Second,
		VehicleYellow:    2 * time.Second,
		Crossing:         4 * time.Second,
	}
}

// StateMachine drives the intersection from its current green pair to a
// target pair through the fixed pedestrian-then-vehicle sequence. The
// routine is purely sequential and blocking; it has no failure modes and
// always terminates with the target pair green and its complement red.
//
// Transition must only be called while the caller holds the intersection
// mutex. The state lock passed at construction is taken around each board
// mutation and never held across a sleep, so status reads stay responsive
// during the multi-second sequence.
type StateMachine struct {
	board    *Board
	state    sync.Locker
	onChange func(map[string]Status)
	name     string
	timings  Timings
}

// NewStateMachine wires a state machine to a board and the state lock
// that owns it. name appears in the transition logs.
func NewStateMachine(name string, board *Board, state sync.Locker, timings Timings) *StateMachine {
	return &StateMachine{
		name:    name,
		board:   board,
		state:   state,
		timings: timings,
	}
}

// SetOnChange registers a callback invoked with a board snapshot after a
// transition completes. Used by the controller to push status updates to
// the balancer. The callback runs outside the state lock.
func (m *StateMachine) SetOnChange(fn func(map[string]Status)) {
	m.onChange = fn
}

// Transition runs the full pedestrian and vehicle sequence toward target:
//
//	pedestrians over target   -> BLINKING_RED (blink duration) -> RED
//	pedestrians over old pair -> YELLOW (pedestrian yellow)    -> GREEN
//	vehicles on old pair      -> YELLOW (vehicle yellow)       -> RED
//	vehicles on target        -> GREEN
//
// Only the pair actually changing is touched; calling Transition with the
// already-green pair as target is a waste of several seconds but leaves
// the board untouched in spirit — callers check GreenPair first.
func (m *StateMachine) Transition(target Pair) {
	old := target.Complement()

	// Pedestrians who were crossing the target lanes must clear first.
	m.set(target.PedestrianSignals(), BlinkingRed)
	log.Printf("signal[%s]: pedestrian %v -> BLINKING_RED", m.name, target.PedestrianSignals())
	time.Sleep(m.timings.PedestrianBlink)

	m.set(target.PedestrianSignals(), Red)
	log.Printf("signal[%s]: pedestrian %v -> RED", m.name, target.PedestrianSignals())

	m.set(old.PedestrianSignals(), Yellow)
	log.Printf("signal[%s]: pedestrian %v -> YELLOW", m.name, old.PedestrianSignals())
	time.Sleep(m.timings.PedestrianYellow)

	m.set(old.PedestrianSignals(), Green)
	log.Printf("signal[%s]: pedestrian %v -> GREEN", m.name, old.PedestrianSignals())

	// Vehicle side: take the old pair down, then raise the target.
	m.set(old.VehicleSignals(), Yellow)
	log.Printf("signal[%s]: traffic %v -> YELLOW", m.name, old.VehicleSignals())
	time.Sleep(m.timings.VehicleYellow)

	m.set(old.VehicleSignals(), Red)
	log.Printf("signal[%s]: traffic %v -> RED", m.name, old.VehicleSignals())

	m.set(target.VehicleSignals(), Green)
	log.Printf("signal[%s]: traffic %v -> GREEN", m.name, target.VehicleSignals())

	if m.onChange != nil {
		m.state.Lock()
		snap := m.board.Snapshot()
		m.state.Unlock()
		m.onChange(snap)
	}
}

// set mutates the board under the state lock.
func (m *StateMachine) set(ids []string, s Status) {
	m.state.Lock()
	m.board.SetAll(ids, s)
	m.state.Unlock()
}
