package cellport

import (
	"sync"

	"github.com/golang/glog"
)

// FlowState is the level of our RTS output as seen by the modem.
type FlowState bool

const (
	// FlowAsserted tells the modem we can take more data.
	FlowAsserted FlowState = true
	// FlowDeasserted asks the modem to stop sending.
	FlowDeasserted FlowState = false
)

func (s FlowState) String() string {
	if s == FlowAsserted {
		return "asserted"
	}
	return "deasserted"
}

// RTSSetter drives the physical RTS output.
type RTSSetter interface {
	SetRTS(asserted bool) error
}

// FlowController decides the RTS level from receive buffer occupancy.
//
// RTS is de-asserted once free space drops to the threshold and re-asserted
// only after free space has grown back to threshold plus hysteresis, so a
// slow steady drain inside that band never toggles the line.
type FlowController struct {
	capacity   int
	threshold  int
	hysteresis int
	enabled    bool // false when no RTS pin is wired

	mu    sync.Mutex // held for the latch and pin write only
	state FlowState
	pin   RTSSetter
	edges int64
}

// NewFlowController returns a controller for a buffer of the given capacity.
// A nil pin disables the controller: Evaluate keeps reporting FlowAsserted.
func NewFlowController(capacity, threshold, hysteresis int, pin RTSSetter) *FlowController {
	return &FlowController{
		capacity:   capacity,
		threshold:  threshold,
		hysteresis: hysteresis,
		enabled:    pin != nil,
		state:      FlowAsserted,
		pin:        pin,
	}
}

// Decide is the pure policy: the level RTS should have at this occupancy
// given its current level.
func (f *FlowController) Decide(current FlowState, occupancy int) FlowState {
	free := f.capacity - occupancy
	switch {
	case current == FlowAsserted && free <= f.threshold:
		return FlowDeasserted
	case current == FlowDeasserted && free >= f.threshold+f.hysteresis:
		return FlowAsserted
	}
	return current
}

// Occupier reports how many bytes a buffer holds.
type Occupier interface {
	Occupancy() int
}

// Track samples buf under the controller's lock and applies the policy. Both
// the notification path and the consumer call it after touching the ring, so
// the last transition always sees the latest push or pop.
func (f *FlowController) Track(buf Occupier) (state FlowState, changed bool, err error) {
	if !f.enabled {
		return FlowAsserted, false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(buf.Occupancy())
}

// Evaluate applies the policy to an occupancy the caller already sampled.
func (f *FlowController) Evaluate(occupancy int) (state FlowState, changed bool, err error) {
	if !f.enabled {
		return FlowAsserted, false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(occupancy)
}

// apply moves the latch and drives the pin on a change. f.mu must be held.
func (f *FlowController) apply(occupancy int) (FlowState, bool, error) {
	next := f.Decide(f.state, occupancy)
	if next == f.state {
		return f.state, false, nil
	}
	if err := f.pin.SetRTS(bool(next)); err != nil {
		return f.state, false, err
	}
	f.state = next
	f.edges++
	return next, true, nil
}

// State returns the current RTS level.
func (f *FlowController) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transitions returns how many times the line has changed level.
func (f *FlowController) Transitions() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edges
}

// assertInitial drives the line to its starting level during Init.
func (f *FlowController) assertInitial() error {
	if !f.enabled {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	glog.V(2).Infof("rts initial level %v (threshold %d, hysteresis %d)", f.state, f.threshold, f.hysteresis)
	return f.pin.SetRTS(bool(f.state))
}
