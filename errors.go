package arqsim

// errors.go holds the error taxonomy of the simulator.  Every one of these
// is fatal to a run: it propagates out of Simulator.Advance and the run stops.
// Bit errors on the channel are not in this list, corrupted frames are dropped
// by the physical layer and recovered by the ARQ engines.

import (
	"errors"
)

var (
	// ErrEmptyQueue is returned by a peek or pop on an EventQueue holding no events
	ErrEmptyQueue = errors.New("event queue is empty")

	// ErrChannelBusy is returned when a frame is offered to a channel that is still
	// serializing the previous one
	ErrChannelBusy = errors.New("channel is busy")

	// ErrTimeOrdering is returned when the simulator finds an event in its past
	ErrTimeOrdering = errors.New("event scheduled in the past")

	// ErrProtocol flags a state inconsistency: a malformed control frame, an unknown
	// command or event kind, or the cancellation of an event that is not pending
	ErrProtocol = errors.New("protocol error")

	// ErrBufferOverflow is returned when a frame is pushed into a full link buffer
	ErrBufferOverflow = errors.New("link buffer is full")

	// ErrConfig reports an unusable simulation configuration
	ErrConfig = errors.New("bad configuration")
)
