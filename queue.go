package arqsim

// queue.go holds the Event type and the per-element EventQueue.  Every
// element of the simulation (channel, node) owns exactly one EventQueue; the
// Simulator reads the nearest time on each and asks the owner to run it.

import (
	"fmt"
	"sort"
)

// EventKind is the enumerated type of the work an event triggers
type EventKind int

const (
	// EvDeliver is owned by a Channel; the frame reaches the far end
	EvDeliver EventKind = iota

	// EvLinkStart is owned by a Node; the data-link layer refills and transmits
	EvLinkStart

	// EvLinkReply is owned by a Node; the data-link layer sends the control frame carried
	EvLinkReply

	// EvLinkTimeout is owned by a Node; the retransmission timer guarding Seq expired
	EvLinkTimeout
)

var evtKindToStr map[EventKind]string = map[EventKind]string{EvDeliver: "deliver", EvLinkStart: "start",
	EvLinkReply: "reply", EvLinkTimeout: "timeout"}

func (ek EventKind) String() string {
	str, present := evtKindToStr[ek]
	if !present {
		return fmt.Sprintf("kind(%d)", int(ek))
	}
	return str
}

// An Event is a piece of future work.  Which payload field is read depends on Kind:
// Frame for EvDeliver and EvLinkReply, Seq for EvLinkTimeout, neither for EvLinkStart
type Event struct {
	Time  float64
	Kind  EventKind
	Frame Frame
	Seq   int
}

// EventQueue keeps events sorted by time.  Events with equal timestamps
// are popped in the order they were inserted.
type EventQueue struct {
	events []Event
}

// CreateEventQueue is a constructor
func CreateEventQueue() *EventQueue {
	eq := new(EventQueue)
	eq.events = make([]Event, 0)
	return eq
}

// Len returns the number of waiting events
func (eq *EventQueue) Len() int {
	return len(eq.events)
}

// HasEvent reports whether at least one event is waiting
func (eq *EventQueue) HasEvent() bool {
	return len(eq.events) > 0
}

// Insert places evt so that the queue remains sorted by time.  The insertion
// point is found by binary search: it is just after every event whose time is
// less than or equal to that of evt
func (eq *EventQueue) Insert(evt Event) {
	idx := sort.Search(len(eq.events), func(i int) bool {
		return eq.events[i].Time > evt.Time
	})

	if idx == len(eq.events) {
		eq.events = append(eq.events, evt)
		return
	}
	eq.events = append(eq.events[:idx+1], eq.events[idx:]...)
	eq.events[idx] = evt
}

// NearestTime returns the smallest timestamp in the queue
func (eq *EventQueue) NearestTime() (float64, error) {
	if len(eq.events) == 0 {
		return 0.0, ErrEmptyQueue
	}
	return eq.events[0].Time, nil
}

// Pop removes and returns the nearest event
func (eq *EventQueue) Pop() (Event, error) {
	return eq.PopAt(0)
}

// PopAt removes and returns the event at position idx
func (eq *EventQueue) PopAt(idx int) (Event, error) {
	if len(eq.events) == 0 {
		return Event{}, ErrEmptyQueue
	}
	if idx < 0 || idx >= len(eq.events) {
		return Event{}, fmt.Errorf("%w: pop index %d with %d events queued", ErrProtocol, idx, len(eq.events))
	}
	evt := eq.events[idx]
	eq.events = append(eq.events[:idx], eq.events[idx+1:]...)
	return evt, nil
}

// Events returns a copy of the queue contents, nearest first
func (eq *EventQueue) Events() []Event {
	rtn := make([]Event, len(eq.events))
	copy(rtn, eq.events)
	return rtn
}

// ReplaceAll overwrites the queue with the events given.  They are sorted
// by time, keeping the given order among equal times
func (eq *EventQueue) ReplaceAll(events []Event) {
	eq.events = make([]Event, len(events))
	copy(eq.events, events)
	sort.SliceStable(eq.events, func(i, j int) bool { return eq.events[i].Time < eq.events[j].Time })
}

// Filter keeps only the events for which keep returns true, and
// reports how many were removed
func (eq *EventQueue) Filter(keep func(Event) bool) int {
	kept := make([]Event, 0, len(eq.events))
	for _, evt := range eq.events {
		if keep(evt) {
			kept = append(kept, evt)
		}
	}
	removed := len(eq.events) - len(kept)
	eq.ReplaceAll(kept)
	return removed
}

// Clear drops every event
func (eq *EventQueue) Clear() {
	eq.events = eq.events[:0]
}
