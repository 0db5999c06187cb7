package arqsim

// sim.go holds the Simulator, the global controller that advances logical
// time to the nearest pending event across all registered elements and hands
// that event to the element owning it

import (
	"fmt"
)

// An Element is anything that owns an EventQueue and can be scheduled
// by the Simulator: a Channel or a Node
type Element interface {
	// ElementName returns a name unique among the registered elements
	ElementName() string

	// HasPendingEvent reports whether the element's queue is not empty
	HasPendingEvent() bool

	// NearestEventTime returns the time of the element's nearest event
	NearestEventTime() (float64, error)

	// DispatchOne removes the nearest event from the element's queue and runs it
	DispatchOne() error
}

// Clock is the view of the Simulator elements are given for reading the time
type Clock interface {
	Now() float64
}

// DispatchHook is called by the Simulator just before each event is dispatched
type DispatchHook func(time float64, elemIdx int, elemName string)

// Simulator holds the registered elements and the global logical time
type Simulator struct {
	elements   []Element
	time       float64
	dispatched int
	hooks      []DispatchHook
}

// CreateSimulator is a constructor
func CreateSimulator() *Simulator {
	sim := new(Simulator)
	sim.elements = make([]Element, 0)
	sim.hooks = make([]DispatchHook, 0)
	return sim
}

// Register adds an element and returns its handle, the index in registration
// order.  Registration order is the tie-break when two elements hold events
// at the same time: the earlier registered element runs first.
func (sim *Simulator) Register(elem Element) int {
	sim.elements = append(sim.elements, elem)
	return len(sim.elements) - 1
}

// Element returns the element registered with handle idx
func (sim *Simulator) Element(idx int) Element {
	return sim.elements[idx]
}

// NumElements returns the number of registered elements
func (sim *Simulator) NumElements() int {
	return len(sim.elements)
}

// AddDispatchHook includes a function to be called before every dispatch
func (sim *Simulator) AddDispatchHook(hook DispatchHook) {
	sim.hooks = append(sim.hooks, hook)
}

// Now returns the simulation time
func (sim *Simulator) Now() float64 {
	return sim.time
}

// Dispatched returns the number of events executed so far
func (sim *Simulator) Dispatched() int {
	return sim.dispatched
}

// nearest finds the element holding the earliest event.  It returns -1 if
// no element has a pending event
func (sim *Simulator) nearest() (int, float64, error) {
	elemIdx := -1
	var nearestTime float64

	for idx, elem := range sim.elements {
		if !elem.HasPendingEvent() {
			continue
		}
		t, err := elem.NearestEventTime()
		if err != nil {
			return -1, 0.0, err
		}
		// strict comparison, the first registered element wins ties
		if elemIdx == -1 || t < nearestTime {
			elemIdx = idx
			nearestTime = t
		}
	}
	return elemIdx, nearestTime, nil
}

// Advance runs events in time order until no element has an event at or
// before toTime.  No event later than toTime is dispatched.  When it returns
// without error the simulation time is toTime (or later, if it already was)
func (sim *Simulator) Advance(toTime float64) error {
	for {
		elemIdx, newTime, err := sim.nearest()
		if err != nil {
			return err
		}
		if elemIdx == -1 || newTime > toTime {
			break
		}
		if newTime < sim.time {
			return fmt.Errorf("%w: %s holds an event at %g, simulation time is %g", ErrTimeOrdering,
				sim.elements[elemIdx].ElementName(), newTime, sim.time)
		}
		sim.time = newTime

		elem := sim.elements[elemIdx]
		for _, hook := range sim.hooks {
			hook(newTime, elemIdx, elem.ElementName())
		}

		sim.dispatched += 1
		if err := elem.DispatchOne(); err != nil {
			return fmt.Errorf("%s at %g: %w", elem.ElementName(), newTime, err)
		}
	}

	if toTime > sim.time {
		sim.time = toTime
	}
	return nil
}
