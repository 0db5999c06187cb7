package arqsim

// channel.go models a point-to-point, one-direction noisy link.  A frame
// offered to the channel occupies it for its transmission time (length / rate),
// and arrives at the receiving node a propagation delay after the last bit is sent.
// On arrival every bit is flipped independently with probability p.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// A FrameReceiver is the far end of a Channel
type FrameReceiver interface {
	ReceiveFromChannel(frame Frame) error
}

// U01Source produces uniform samples on (0,1).  *rngstream.RngStream satisfies it
type U01Source interface {
	RandU01() float64
}

// A NoiseModel corrupts frames in passage.  It returns the frame as received
// and the number of bits flipped
type NoiseModel interface {
	Corrupt(frame Frame) (Frame, int)
}

// BSC is the binary symmetric channel noise model
type BSC struct {
	P   float64
	rng U01Source
}

// CreateBSC is a constructor
func CreateBSC(p float64, rng U01Source) *BSC {
	return &BSC{P: p, rng: rng}
}

// Corrupt draws one Bernoulli(P) sample per bit of the frame, and flips the bits drawn
func (bsc *BSC) Corrupt(frame Frame) (Frame, int) {
	if bsc.P <= 0.0 {
		return frame, 0
	}
	var errPattern uint64
	flipped := 0
	for idx := 0; idx < frame.Len; idx++ {
		if bsc.rng.RandU01() < bsc.P {
			errPattern |= uint64(1) << uint(idx)
			flipped += 1
		}
	}
	frame.Bits ^= errPattern
	return frame, flipped
}

// ChannelParams are the physical characteristics of a channel
type ChannelParams struct {
	ErrorProb float64 // probability a bit is flipped
	TransRate float64 // bits per second
	PropDelay float64 // seconds
}

// ChannelStats counts what passed through a channel
type ChannelStats struct {
	Transmitted int `json:"transmitted" yaml:"transmitted"`
	Delivered   int `json:"delivered" yaml:"delivered"`
	Corrupted   int `json:"corrupted" yaml:"corrupted"`
	BitsFlipped int `json:"bitsflipped" yaml:"bitsflipped"`
	BitsSent    int `json:"bitssent" yaml:"bitssent"`
	Cancelled   int `json:"cancelled" yaml:"cancelled"`
}

// Channel is a simulation Element
type Channel struct {
	name       string
	id         int
	params     ChannelParams
	queue      *EventQueue
	spareUntil float64 // time at which the channel can accept the next frame
	clock      Clock
	rx         FrameReceiver
	noise      NoiseModel
	stats      ChannelStats
	tm         *TraceManager
	log        logrus.FieldLogger
}

// CreateChannel is a constructor.  The receiving end rx and the noise model are
// fixed for the life of the channel.  tm may be nil
func CreateChannel(name string, id int, params ChannelParams, clock Clock, rx FrameReceiver,
	noise NoiseModel, tm *TraceManager) *Channel {
	ch := new(Channel)
	ch.name = name
	ch.id = id
	ch.params = params
	ch.queue = CreateEventQueue()
	ch.clock = clock
	ch.rx = rx
	ch.noise = noise
	ch.tm = tm
	ch.log = logger.WithField("channel", name)
	return ch
}

// ElementName implements Element
func (ch *Channel) ElementName() string {
	return ch.name
}

// ID returns the trace identifier of the channel
func (ch *Channel) ID() int {
	return ch.id
}

// Params returns the channel's physical characteristics
func (ch *Channel) Params() ChannelParams {
	return ch.params
}

// Stats returns the channel counters
func (ch *Channel) Stats() ChannelStats {
	return ch.stats
}

// SpareUntil returns the earliest time the channel accepts a new frame
func (ch *Channel) SpareUntil() float64 {
	return ch.spareUntil
}

// Busy reports whether a frame is still being serialized onto the channel
func (ch *Channel) Busy() bool {
	return ch.clock.Now() < ch.spareUntil
}

// Transmit puts frame on the channel.  The return is the time the channel
// becomes free again, the arrival is scheduled a propagation delay later
func (ch *Channel) Transmit(frame Frame) (float64, error) {
	now := ch.clock.Now()
	if now < ch.spareUntil {
		return ch.spareUntil, fmt.Errorf("%w: %s free at %g, now %g", ErrChannelBusy, ch.name, ch.spareUntil, now)
	}

	txDelay := float64(frame.Len) / ch.params.TransRate
	ch.spareUntil = roundFloat(now+txDelay, rdigits)
	arrival := roundFloat(ch.spareUntil+ch.params.PropDelay, rdigits)

	ch.queue.Insert(Event{Time: arrival, Kind: EvDeliver, Frame: frame})
	ch.stats.Transmitted += 1
	ch.stats.BitsSent += frame.Len
	ch.tm.AddLinkTrace(now, ch.id, "transmit", frame, -1)

	return ch.spareUntil, nil
}

// CancelPendingTransmission removes the last frame put on the channel.  If
// it was still being serialized the channel is free from now on
func (ch *Channel) CancelPendingTransmission() error {
	events := ch.queue.Events()
	for idx := len(events) - 1; idx >= 0; idx-- {
		if events[idx].Kind != EvDeliver {
			continue
		}
		evt, err := ch.queue.PopAt(idx)
		if err != nil {
			return err
		}
		now := ch.clock.Now()
		if now < ch.spareUntil {
			ch.spareUntil = now
		}
		ch.stats.Cancelled += 1
		ch.tm.AddLinkTrace(now, ch.id, "cancel", evt.Frame, -1)
		return nil
	}
	return fmt.Errorf("%w: %s has no transmission to cancel", ErrProtocol, ch.name)
}

// Command carries out a control directive passed down by the physical layer
func (ch *Channel) Command(cmd Command) error {
	switch cmd {
	case CmdCancelTransmit:
		return ch.CancelPendingTransmission()
	default:
		return fmt.Errorf("%w: channel %s cannot carry out %s", ErrProtocol, ch.name, cmd)
	}
}

// HasPendingEvent implements Element
func (ch *Channel) HasPendingEvent() bool {
	return ch.queue.HasEvent()
}

// NearestEventTime implements Element
func (ch *Channel) NearestEventTime() (float64, error) {
	return ch.queue.NearestTime()
}

// DispatchOne implements Element.  The only event a channel owns is the
// arrival of a frame at its far end
func (ch *Channel) DispatchOne() error {
	evt, err := ch.queue.Pop()
	if err != nil {
		return err
	}

	switch evt.Kind {
	case EvDeliver:
		return ch.deliver(evt.Frame)
	default:
		return fmt.Errorf("%w: channel %s given %s event", ErrProtocol, ch.name, evt.Kind)
	}
}

// deliver applies the noise model and passes the frame to the receiving end
func (ch *Channel) deliver(frame Frame) error {
	received, flipped := ch.noise.Corrupt(frame)
	ch.stats.Delivered += 1
	if flipped > 0 {
		ch.stats.Corrupted += 1
		ch.stats.BitsFlipped += flipped
		ch.log.Debugf("%d bits flipped in %s", flipped, frame)
		ch.tm.AddLinkTrace(ch.clock.Now(), ch.id, "corrupt", received, -1)
	}
	return ch.rx.ReceiveFromChannel(received)
}
