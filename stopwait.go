package arqsim

import (
	"fmt"
)

// stopWaitTx is the sender side of Stop-and-Wait.  One frame is outstanding
// at a time, tagged with a 1-bit sequence number that alternates with each
// acknowledged frame.  The receiver acknowledges with the bit it expects next,
// so the frame outstanding is confirmed by an ACK carrying the other bit.
type stopWaitTx struct {
	linkPort
	seq        int  // bit carried by the frame outstanding (or about to be sent)
	waiting    bool // frame sent and not yet acknowledged
	timerArmed bool
	attempts   int // number of times the current frame has been sent
}

func createStopWaitTx(env LinkEnv, timeout float64) *stopWaitTx {
	sw := new(stopWaitTx)
	sw.linkPort = createLinkPort(env, timeout, StopAndWait.Modulus(1), 1)
	return sw
}

// StartTransmit sends the frame at the head of the buffer, pulling a new
// one from the upper layer if the buffer is empty, and arms the timer
func (sw *stopWaitTx) StartTransmit() error {
	if !sw.beginStart() {
		return nil
	}
	if err := sw.refill(); err != nil {
		return err
	}

	// a start only follows an ACK or a timeout, neither leaves a timer behind
	if sw.timerArmed {
		if err := sw.env.CancelTimer(sw.seq); err != nil {
			return err
		}
		sw.timerArmed = false
	}

	if err := sw.sendData(sw.buffer.at(0), sw.seq, sw.attempts > 0); err != nil {
		return err
	}
	sw.attempts += 1
	sw.waiting = true
	sw.armTimer(sw.freeAt+sw.timeout, sw.seq)
	sw.timerArmed = true
	return nil
}

// OnFrame takes an ACK.  Anything but an ACK is a protocol error; an ACK
// that does not confirm the frame outstanding is ignored
func (sw *stopWaitTx) OnFrame(frame Frame) error {
	header, ack, err := parseControl(frame, sw.seqBits)
	if err != nil {
		return err
	}
	if header != ackHeader {
		return fmt.Errorf("%w: stop-and-wait sender given non-ACK %s", ErrProtocol, frame)
	}
	sw.stats.AcksReceived += 1

	if !sw.waiting || ack != 1-sw.seq {
		sw.staleAck(frame, ack)
		return nil
	}

	// the timer is absent only if it expired and the retransmission has not started yet
	if sw.timerArmed {
		if err := sw.env.CancelTimer(sw.seq); err != nil {
			return err
		}
		sw.timerArmed = false
	}
	sw.env.Trace("ack", frame, sw.seq)

	sw.buffer.pop()
	sw.seq = 1 - sw.seq
	sw.waiting = false
	sw.attempts = 0
	sw.scheduleStart(sw.env.Now())
	return nil
}

// OnTimeout resends the frame outstanding, which is still at the head of the buffer
func (sw *stopWaitTx) OnTimeout(seq int) error {
	if !sw.waiting || seq != sw.seq {
		return nil
	}
	sw.timerArmed = false
	sw.stats.Timeouts += 1
	sw.env.Trace("timeout", Frame{}, seq)
	sw.env.Logger().WithField("seq", seq).Debugf("timeout after %d attempts", sw.attempts)
	sw.scheduleStart(sw.env.Now())
	return nil
}

// stopWaitRx is the receiver side of Stop-and-Wait
type stopWaitRx struct {
	linkPort
	expected int
}

func createStopWaitRx(env LinkEnv) *stopWaitRx {
	sw := new(stopWaitRx)
	sw.linkPort = createLinkPort(env, 0.0, StopAndWait.Modulus(1), 1)
	return sw
}

// StartTransmit has nothing to do, a receiver only replies
func (sw *stopWaitRx) StartTransmit() error {
	return nil
}

// OnFrame delivers a frame carrying the expected bit and flips the bit.  A
// frame carrying the other bit is a duplicate and is not delivered.  Either way
// the frame is acknowledged with the bit expected next
func (sw *stopWaitRx) OnFrame(frame Frame) error {
	payload, seq, err := parseData(frame, sw.seqBits)
	if err != nil {
		return err
	}

	if seq == sw.expected {
		if err := sw.env.DeliverUp(payload); err != nil {
			return err
		}
		sw.stats.Delivered += 1
		sw.expected = 1 - sw.expected
	} else {
		sw.stats.Duplicates += 1
		sw.env.Trace("duplicate", frame, seq)
		sw.env.Logger().WithField("seq", seq).Debug("duplicate not delivered, ACK lost")
	}
	sw.reply(ackHeader, sw.expected)
	return nil
}

// OnTimeout is never called, a receiver holds no timers
func (sw *stopWaitRx) OnTimeout(seq int) error {
	return fmt.Errorf("%w: stop-and-wait receiver has no timer %d", ErrProtocol, seq)
}

// PushBuffer rejects packets, the receiver does not send data
func (sw *stopWaitRx) PushBuffer(frame Frame) error {
	return rejectPush(frame)
}
