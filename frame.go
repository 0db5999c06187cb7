package arqsim

import (
	"fmt"
)

// MaxFrameLen is the widest frame the simulator carries, the bits of a
// frame are packed into one uint64
const MaxFrameLen = 64

// A Frame is the only wire representation in the simulator.  Bits holds the
// frame right-aligned, Len the number of significant bits the protocol interprets.
// Len is carried explicitly because leading header bits may be zero.
type Frame struct {
	Bits uint64 `json:"bits" yaml:"bits"`
	Len  int    `json:"len" yaml:"len"`
}

// mask returns the Bits of the frame with anything above Len cleared
func (f Frame) mask() uint64 {
	if f.Len >= MaxFrameLen {
		return f.Bits
	}
	return f.Bits & ((uint64(1) << uint(f.Len)) - 1)
}

// appendField returns the frame extended on the right by a width-bit field
func (f Frame) appendField(value uint64, width int) Frame {
	return Frame{Bits: f.Bits<<uint(width) | (value & lowBits(width)), Len: f.Len + width}
}

// splitField separates the width right-most bits of the frame from the rest
func (f Frame) splitField(width int) (Frame, uint64) {
	return Frame{Bits: f.Bits >> uint(width), Len: f.Len - width}, f.Bits & lowBits(width)
}

func (f Frame) String() string {
	return fmt.Sprintf("%0*b/%d", f.Len, f.mask(), f.Len)
}

// lowBits returns a mask with the width right-most bits set
func lowBits(width int) uint64 {
	if width >= MaxFrameLen {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// Command is the base type for the out-of-band directives layers exchange
type Command int

const (
	// CmdPush asks the upper layer for one new packet
	CmdPush Command = iota

	// CmdCancelTransmit asks the channel to abort the frame it was last given
	CmdCancelTransmit
)

var cmdToStr map[Command]string = map[Command]string{CmdPush: "push", CmdCancelTransmit: "cancel transmit"}

func (cmd Command) String() string {
	str, present := cmdToStr[cmd]
	if !present {
		return fmt.Sprintf("command(%d)", int(cmd))
	}
	return str
}

// A Message is what passes between adjacent layers of a Node.  It is
// either a DataFrame or a Control, never both.
type Message interface {
	isMessage()
}

// DataFrame carries a frame toward the channel or toward the upper layer
type DataFrame struct {
	Frame
}

// Control carries a command
type Control struct {
	Cmd Command
}

func (DataFrame) isMessage() {}
func (Control) isMessage()   {}
