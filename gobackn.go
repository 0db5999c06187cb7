package arqsim

import (
	"fmt"
)

// goBackNTx is the sender side of Go-Back-N.  Up to window frames are sent
// back to back without waiting.  A single timer guards the oldest frame sent;
// when it expires every frame from the oldest on is sent again, in order.
// ACKs are cumulative, carrying the sequence number the receiver expects next.
type goBackNTx struct {
	linkPort
	window     int
	base       int // sequence number of the frame at the head of the buffer
	nextIdx    int // buffer index of the next frame to send in this pass
	sentHigh   int // number of buffered frames sent at least once
	timerArmed bool
	timerSeq   int
}

func createGoBackNTx(env LinkEnv, window int, timeout float64) *goBackNTx {
	gbn := new(goBackNTx)
	gbn.window = window
	gbn.linkPort = createLinkPort(env, timeout, GoBackN.Modulus(window), window)
	return gbn
}

// StartTransmit sends the next frame of the window, if any, and asks to be
// called again when the channel is free if more remain
func (gbn *goBackNTx) StartTransmit() error {
	if !gbn.beginStart() {
		return nil
	}
	if err := gbn.refill(); err != nil {
		return err
	}
	if gbn.nextIdx >= gbn.buffer.len() {
		// whole window outstanding, wait for an ACK or the timer
		return nil
	}

	seq := (gbn.base + gbn.nextIdx) % gbn.modulus
	if err := gbn.sendData(gbn.buffer.at(gbn.nextIdx), seq, gbn.nextIdx < gbn.sentHigh); err != nil {
		return err
	}
	if !gbn.timerArmed {
		gbn.armTimer(gbn.freeAt+gbn.timeout, gbn.base)
		gbn.timerArmed = true
		gbn.timerSeq = gbn.base
	}

	gbn.nextIdx += 1
	if gbn.nextIdx > gbn.sentHigh {
		gbn.sentHigh = gbn.nextIdx
	}
	if gbn.nextIdx < gbn.buffer.len() {
		gbn.scheduleStart(gbn.freeAt)
	}
	return nil
}

// OnFrame takes a cumulative ACK.  An ACK naming a frame not yet sent, or
// confirming nothing new, is ignored
func (gbn *goBackNTx) OnFrame(frame Frame) error {
	header, ack, err := parseControl(frame, gbn.seqBits)
	if err != nil {
		return err
	}
	if header != ackHeader {
		return fmt.Errorf("%w: go-back-n sender given non-ACK %s", ErrProtocol, frame)
	}
	gbn.stats.AcksReceived += 1

	acked := seqDist(gbn.base, ack, gbn.modulus)
	if acked == 0 || acked > gbn.sentHigh {
		gbn.staleAck(frame, ack)
		return nil
	}
	gbn.env.Trace("ack", frame, ack)

	for idx := 0; idx < acked; idx++ {
		gbn.buffer.pop()
	}
	gbn.base = ack
	gbn.sentHigh -= acked
	gbn.nextIdx -= acked
	if gbn.nextIdx < 0 {
		gbn.nextIdx = 0
	}

	// restart the timer for the new oldest frame in flight
	if gbn.timerArmed {
		if err := gbn.env.CancelTimer(gbn.timerSeq); err != nil {
			return err
		}
		gbn.timerArmed = false
	}
	if gbn.nextIdx > 0 {
		gbn.armTimer(gbn.env.Now()+gbn.timeout, gbn.base)
		gbn.timerArmed = true
		gbn.timerSeq = gbn.base
	}

	gbn.scheduleStart(gbn.env.Now())
	return nil
}

// OnTimeout goes back to the oldest unacknowledged frame.  A frame still
// being serialized is aborted and the resend starts at once
func (gbn *goBackNTx) OnTimeout(seq int) error {
	if !gbn.timerArmed || seq != gbn.timerSeq {
		return nil
	}
	gbn.timerArmed = false
	gbn.stats.Timeouts += 1
	gbn.env.Trace("timeout", Frame{}, seq)
	gbn.env.Logger().WithField("seq", seq).Debugf("timeout, going back over %d frames", gbn.sentHigh)

	if err := gbn.abortTransmission(); err != nil {
		return err
	}
	gbn.nextIdx = 0
	return gbn.startNow()
}

// goBackNRx is the receiver side of Go-Back-N.  Only the expected frame is
// accepted; every frame received is answered with a cumulative ACK
type goBackNRx struct {
	linkPort
	expected int
}

func createGoBackNRx(env LinkEnv, window int) *goBackNRx {
	gbn := new(goBackNRx)
	gbn.linkPort = createLinkPort(env, 0.0, GoBackN.Modulus(window), 1)
	return gbn
}

// StartTransmit has nothing to do, a receiver only replies
func (gbn *goBackNRx) StartTransmit() error {
	return nil
}

// OnFrame delivers the expected frame, discards any other, and ACKs the
// sequence number expected next
func (gbn *goBackNRx) OnFrame(frame Frame) error {
	payload, seq, err := parseData(frame, gbn.seqBits)
	if err != nil {
		return err
	}

	if seq == gbn.expected {
		if err := gbn.env.DeliverUp(payload); err != nil {
			return err
		}
		gbn.stats.Delivered += 1
		gbn.expected = (gbn.expected + 1) % gbn.modulus
	} else {
		gbn.stats.Discarded += 1
		gbn.env.Trace("discard", frame, seq)
		gbn.env.Logger().WithField("seq", seq).Debugf("out of order, expected %d", gbn.expected)
	}
	gbn.reply(ackHeader, gbn.expected)
	return nil
}

// OnTimeout is never called, a receiver holds no timers
func (gbn *goBackNRx) OnTimeout(seq int) error {
	return fmt.Errorf("%w: go-back-n receiver has no timer %d", ErrProtocol, seq)
}

// PushBuffer rejects packets, the receiver does not send data
func (gbn *goBackNRx) PushBuffer(frame Frame) error {
	return rejectPush(frame)
}
