package arqsim

// datalink.go holds what the ARQ engines share: the interface a Node uses
// to drive an engine, the services a Node offers an engine, the bounded
// frame buffer, the sequence number space and the control frame format.
//
// Data frames carry the sequence number in their right-most bits:
//
//	| payload (PacketSize bits) | seq (seqBits) |
//
// Control frames are an 8 bit header followed by a sequence number:
//
//	| 0xAA (ACK) or 0x55 (NAK) | seq (seqBits) |

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/sirupsen/logrus"
)

const (
	ackHeader  uint64 = 0xAA
	nakHeader  uint64 = 0x55
	headerBits int    = 8
)

// ArqEngine is one direction (sender or receiver) of an ARQ protocol.  A Node
// calls these methods from its event dispatch and from the layers around it.
type ArqEngine interface {
	// StartTransmit refills the send buffer and puts the next frame on the channel
	StartTransmit() error

	// OnFrame takes a frame that passed the physical layer check
	OnFrame(frame Frame) error

	// OnTimeout is called when the timer guarding seq expires
	OnTimeout(seq int) error

	// SendReply puts a control frame (ACK, NAK) on the channel, waiting for it to be free
	SendReply(frame Frame) error

	// PushBuffer takes a packet from the upper layer
	PushBuffer(frame Frame) error

	// Buffered returns the number of packets held in the send or receive buffer
	Buffered() int

	Stats() LinkStats
}

// LinkEnv is what a Node offers the engine it holds
type LinkEnv interface {
	Now() float64

	// Schedule puts an event on the node's queue
	Schedule(evt Event)

	// CancelTimer removes the pending timeout guarding seq
	CancelTimer(seq int) error

	// CancelStart removes the pending EvLinkStart
	CancelStart() error

	// SendDown passes a message to the physical layer
	SendDown(msg Message) (float64, error)

	// RequestPacket asks the upper layer to push one packet
	RequestPacket() error

	// DeliverUp passes a packet to the upper layer
	DeliverUp(frame Frame) error

	// Trace records an ARQ event
	Trace(op string, frame Frame, seq int)

	Logger() logrus.FieldLogger
}

// LinkStats counts the activity of one ARQ engine
type LinkStats struct {
	FramesSent      int `json:"framessent" yaml:"framessent"`
	Retransmissions int `json:"retransmissions" yaml:"retransmissions"`
	Timeouts        int `json:"timeouts" yaml:"timeouts"`
	AcksSent        int `json:"ackssent" yaml:"ackssent"`
	NaksSent        int `json:"nakssent" yaml:"nakssent"`
	AcksReceived    int `json:"acksreceived" yaml:"acksreceived"`
	NaksReceived    int `json:"naksreceived" yaml:"naksreceived"`
	StaleAcks       int `json:"staleacks" yaml:"staleacks"`
	Delivered       int `json:"delivered" yaml:"delivered"`
	Duplicates      int `json:"duplicates" yaml:"duplicates"`
	Discarded       int `json:"discarded" yaml:"discarded"`
	OutOfOrder      int `json:"outoforder" yaml:"outoforder"`
	Aborted         int `json:"aborted" yaml:"aborted"`
}

// frameBuffer is a bounded FIFO of payload frames
type frameBuffer struct {
	frames   []Frame
	capacity int
}

func createFrameBuffer(capacity int) *frameBuffer {
	fb := new(frameBuffer)
	fb.frames = make([]Frame, 0, capacity)
	fb.capacity = capacity
	return fb
}

func (fb *frameBuffer) push(frame Frame) error {
	if len(fb.frames) >= fb.capacity {
		return fmt.Errorf("%w: capacity %d", ErrBufferOverflow, fb.capacity)
	}
	fb.frames = append(fb.frames, frame)
	return nil
}

func (fb *frameBuffer) pop() (Frame, bool) {
	if len(fb.frames) == 0 {
		return Frame{}, false
	}
	frame := fb.frames[0]
	fb.frames = fb.frames[1:]
	return frame, true
}

func (fb *frameBuffer) at(idx int) Frame {
	return fb.frames[idx]
}

func (fb *frameBuffer) len() int {
	return len(fb.frames)
}

func (fb *frameBuffer) full() bool {
	return len(fb.frames) >= fb.capacity
}

// seqBitsFor returns the number of bits needed to carry sequence numbers modulo modulus
func seqBitsFor(modulus int) int {
	if modulus < 2 {
		return 1
	}
	return bits.Len(uint(modulus - 1))
}

// seqDist returns how far ahead of from the sequence number to lies, modulo modulus
func seqDist(from, to, modulus int) int {
	return ((to-from)%modulus + modulus) % modulus
}

// controlFrame builds an ACK or NAK for seq
func controlFrame(header uint64, seq, seqBits int) Frame {
	return Frame{Bits: header, Len: headerBits}.appendField(uint64(seq), seqBits)
}

// parseControl splits a control frame into its header and sequence number.  A frame
// of the wrong length or with an unknown header is a protocol error
func parseControl(frame Frame, seqBits int) (uint64, int, error) {
	if frame.Len != headerBits+seqBits {
		return 0, 0, fmt.Errorf("%w: control frame %s has length %d, expected %d", ErrProtocol, frame,
			frame.Len, headerBits+seqBits)
	}
	rest, seq := frame.splitField(seqBits)
	header := rest.mask()
	if header != ackHeader && header != nakHeader {
		return 0, 0, fmt.Errorf("%w: control frame %s carries unknown header %#x", ErrProtocol, frame, header)
	}
	return header, int(seq), nil
}

// parseData splits a data frame into payload and sequence number
func parseData(frame Frame, seqBits int) (Frame, int, error) {
	if frame.Len <= seqBits {
		return Frame{}, 0, fmt.Errorf("%w: data frame %s too short for %d sequence bits", ErrProtocol, frame, seqBits)
	}
	payload, seq := frame.splitField(seqBits)
	return payload, int(seq), nil
}

// linkPort holds the state and behaviour every engine shares: tracking when
// the channel is free, the send buffer, the timers, and the scheduling of
// starts and replies.  Engines embed it.
type linkPort struct {
	env          LinkEnv
	timeout      float64
	modulus      int
	seqBits      int
	freeAt       float64 // time the channel is free for the next frame
	startPending bool    // an EvLinkStart is on the queue
	startAt      float64 // time of the pending EvLinkStart
	buffer       *frameBuffer
	stats        LinkStats
}

func createLinkPort(env LinkEnv, timeout float64, modulus, capacity int) linkPort {
	return linkPort{env: env, timeout: timeout, modulus: modulus, seqBits: seqBitsFor(modulus),
		buffer: createFrameBuffer(capacity)}
}

// Stats implements ArqEngine
func (lp *linkPort) Stats() LinkStats {
	return lp.stats
}

// Buffered implements ArqEngine
func (lp *linkPort) Buffered() int {
	return lp.buffer.len()
}

// PushBuffer implements ArqEngine
func (lp *linkPort) PushBuffer(frame Frame) error {
	return lp.buffer.push(frame)
}

// busy reports whether the channel is still carrying the last frame sent
func (lp *linkPort) busy() bool {
	return lp.env.Now() < lp.freeAt
}

// refill pulls packets from the upper layer until the buffer is full
func (lp *linkPort) refill() error {
	for !lp.buffer.full() {
		before := lp.buffer.len()
		if err := lp.env.RequestPacket(); err != nil {
			return err
		}
		if lp.buffer.len() == before {
			return fmt.Errorf("%w: upper layer pushed no packet", ErrProtocol)
		}
	}
	return nil
}

// sendData appends seq to payload and puts the frame on the channel
func (lp *linkPort) sendData(payload Frame, seq int, retransmit bool) error {
	frame := payload.appendField(uint64(seq), lp.seqBits)
	freeAt, err := lp.env.SendDown(DataFrame{Frame: frame})
	if err != nil {
		return err
	}
	lp.freeAt = freeAt
	lp.stats.FramesSent += 1
	op := "send"
	if retransmit {
		lp.stats.Retransmissions += 1
		op = "retransmit"
		lp.env.Logger().WithField("seq", seq).Debugf("retransmission at %g", lp.env.Now())
	}
	lp.env.Trace(op, frame, seq)
	return nil
}

// abortTransmission cancels the frame the channel is serializing, if any
func (lp *linkPort) abortTransmission() error {
	if !lp.busy() {
		return nil
	}
	if _, err := lp.env.SendDown(Control{Cmd: CmdCancelTransmit}); err != nil {
		return err
	}
	lp.env.Logger().Debugf("frame on the channel until %g aborted at %g", lp.freeAt, lp.env.Now())
	lp.freeAt = lp.env.Now()
	lp.stats.Aborted += 1
	return nil
}

// scheduleStart asks for a StartTransmit no earlier than at, and no earlier
// than the channel is free.  At most one start is pending at any time
func (lp *linkPort) scheduleStart(at float64) {
	if lp.startPending {
		return
	}
	lp.startPending = true
	lp.startAt = math.Max(at, math.Max(lp.freeAt, lp.env.Now()))
	lp.env.Schedule(Event{Time: lp.startAt, Kind: EvLinkStart})
}

// startNow asks for a StartTransmit at the current time, or as soon as the
// channel is free.  A start pending for later is moved up
func (lp *linkPort) startNow() error {
	if lp.startPending && lp.startAt > math.Max(lp.freeAt, lp.env.Now()) {
		if err := lp.env.CancelStart(); err != nil {
			return err
		}
		lp.startPending = false
	}
	lp.scheduleStart(lp.env.Now())
	return nil
}

// staleAck counts and traces a control frame that confirms nothing
func (lp *linkPort) staleAck(frame Frame, seq int) {
	lp.stats.StaleAcks += 1
	lp.env.Trace("stale-ack", frame, seq)
	lp.env.Logger().WithField("seq", seq).Debugf("stale %s ignored", frame)
}

// beginStart is called on entry to StartTransmit.  It returns false if the channel
// is not free yet, in which case the start has been moved to when it is
func (lp *linkPort) beginStart() bool {
	lp.startPending = false
	if lp.busy() {
		lp.scheduleStart(lp.freeAt)
		return false
	}
	return true
}

// armTimer schedules the timeout guarding seq at time at
func (lp *linkPort) armTimer(at float64, seq int) {
	lp.env.Schedule(Event{Time: roundFloat(at, rdigits), Kind: EvLinkTimeout, Seq: seq})
}

// reply schedules a control frame to be sent once the channel is free
func (lp *linkPort) reply(header uint64, seq int) {
	frame := controlFrame(header, seq, lp.seqBits)
	if header == ackHeader {
		lp.stats.AcksSent += 1
	} else {
		lp.stats.NaksSent += 1
	}
	lp.env.Schedule(Event{Time: math.Max(lp.freeAt, lp.env.Now()), Kind: EvLinkReply, Frame: frame})
}

// SendReply implements ArqEngine
func (lp *linkPort) SendReply(frame Frame) error {
	if lp.busy() {
		lp.env.Schedule(Event{Time: lp.freeAt, Kind: EvLinkReply, Frame: frame})
		return nil
	}
	freeAt, err := lp.env.SendDown(DataFrame{Frame: frame})
	if err != nil {
		return err
	}
	lp.freeAt = freeAt
	lp.env.Trace("reply", frame, -1)
	return nil
}

// rejectPush is used by receivers, which have no send buffer to fill
func rejectPush(frame Frame) error {
	return fmt.Errorf("%w: receiver given packet %s to send", ErrProtocol, frame)
}

// ProtocolKind enumerates the ARQ protocols
type ProtocolKind int

const (
	StopAndWait ProtocolKind = iota
	GoBackN
	SelectiveRepeat
	unknownProtocol
)

// ProtocolFromStr returns the ProtocolKind named by str
func ProtocolFromStr(str string) ProtocolKind {
	switch str {
	case "stop-and-wait", "stopwait", "saw", "sw":
		return StopAndWait
	case "go-back-n", "gobackn", "gbn":
		return GoBackN
	case "selective-repeat", "selrepeat", "sr":
		return SelectiveRepeat
	default:
		return unknownProtocol
	}
}

func (pk ProtocolKind) String() string {
	switch pk {
	case StopAndWait:
		return "stop-and-wait"
	case GoBackN:
		return "go-back-n"
	case SelectiveRepeat:
		return "selective-repeat"
	default:
		return "unknown"
	}
}

// Modulus returns the size of the sequence number space used by the protocol
func (pk ProtocolKind) Modulus(window int) int {
	if pk == StopAndWait {
		return 2
	}
	return 2 * window
}

// Window returns the number of frames a sender may have outstanding
func (pk ProtocolKind) Window(window int) int {
	if pk == StopAndWait {
		return 1
	}
	return window
}

// EngineFactory builds an engine bound to the node that will hold it
type EngineFactory func(env LinkEnv) ArqEngine

// CreateEngineFactory returns the factory for the sender (tx true) or receiver
// side of protocol pk
func CreateEngineFactory(pk ProtocolKind, tx bool, window int, timeout float64) (EngineFactory, error) {
	switch pk {
	case StopAndWait:
		if tx {
			return func(env LinkEnv) ArqEngine { return createStopWaitTx(env, timeout) }, nil
		}
		return func(env LinkEnv) ArqEngine { return createStopWaitRx(env) }, nil
	case GoBackN:
		if tx {
			return func(env LinkEnv) ArqEngine { return createGoBackNTx(env, window, timeout) }, nil
		}
		return func(env LinkEnv) ArqEngine { return createGoBackNRx(env, window) }, nil
	case SelectiveRepeat:
		if tx {
			return func(env LinkEnv) ArqEngine { return createSelRepeatTx(env, window, timeout) }, nil
		}
		return func(env LinkEnv) ArqEngine { return createSelRepeatRx(env, window) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown protocol %s", ErrConfig, pk)
	}
}
