package arqsim

import (
	"fmt"
)

// A Transmitter is the sending side of a channel as the physical layer sees it
type Transmitter interface {
	Transmit(frame Frame) (float64, error)
	Command(cmd Command) error
}

// A FrameHandler takes frames from the layer below
type FrameHandler interface {
	FromPhysicalLayer(frame Frame) error
}

// PhysicalLayer sits between the data-link layer and the channel.  Frames
// going down get check bits appended, frames coming up are checked and,
// if the check fails, silently dropped
type PhysicalLayer struct {
	codec   Codec
	tx      Transmitter
	clock   Clock
	up      FrameHandler
	dropped int
}

// CreatePhysicalLayer is a constructor
func CreatePhysicalLayer(codec Codec, tx Transmitter, clock Clock, up FrameHandler) *PhysicalLayer {
	phy := new(PhysicalLayer)
	phy.codec = codec
	phy.tx = tx
	phy.clock = clock
	phy.up = up
	return phy
}

// Dropped returns the number of received frames that failed the integrity check
func (phy *PhysicalLayer) Dropped() int {
	return phy.dropped
}

// Overhead is the number of bits the physical layer adds to every frame
func (phy *PhysicalLayer) Overhead() int {
	return phy.codec.Overhead()
}

// SendFromLinkLayer encodes a data frame and puts it on the channel,
// returning the time the channel is free again.  A control message is passed
// to the channel unchanged, the return is then the current time
func (phy *PhysicalLayer) SendFromLinkLayer(msg Message) (float64, error) {
	switch m := msg.(type) {
	case Control:
		if err := phy.tx.Command(m.Cmd); err != nil {
			return 0.0, err
		}
		return phy.clock.Now(), nil
	case DataFrame:
		coded, codedLen := phy.codec.Encode(m.Bits, m.Len)
		return phy.tx.Transmit(Frame{Bits: coded, Len: codedLen})
	default:
		return 0.0, fmt.Errorf("%w: physical layer given %T", ErrProtocol, msg)
	}
}

// ReceiveFromChannel implements FrameReceiver
func (phy *PhysicalLayer) ReceiveFromChannel(frame Frame) error {
	data, dataLen, valid := phy.codec.Decode(frame.Bits, frame.Len)
	if !valid {
		// loss is invisible here, the data-link timers recover it
		phy.dropped += 1
		return nil
	}
	return phy.up.FromPhysicalLayer(Frame{Bits: data, Len: dataLen})
}
