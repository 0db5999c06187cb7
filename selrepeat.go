package arqsim

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// srEntry is the sender's record of one buffered frame
type srEntry struct {
	sent       bool
	acked      bool
	timerArmed bool
}

// selRepeatTx is the sender side of Selective-Repeat.  Every frame sent has
// its own timer.  Only frames whose timer expires, or which the receiver NAKs,
// are sent again, and they go ahead of frames not yet sent.  ACKs are
// individual; the window slides over the acknowledged prefix.
type selRepeatTx struct {
	linkPort
	window  int
	base    int       // sequence number of the frame at the head of the buffer
	entries []srEntry // parallel to the buffer
	resend  []int     // sequence numbers waiting to be sent again, oldest first
}

func createSelRepeatTx(env LinkEnv, window int, timeout float64) *selRepeatTx {
	sr := new(selRepeatTx)
	sr.window = window
	sr.linkPort = createLinkPort(env, timeout, SelectiveRepeat.Modulus(window), window)
	sr.entries = make([]srEntry, 0, window)
	sr.resend = make([]int, 0, window)
	return sr
}

// index returns the buffer index of the frame carrying seq, or -1 if the
// frame is not in the window
func (sr *selRepeatTx) index(seq int) int {
	idx := seqDist(sr.base, seq, sr.modulus)
	if idx >= len(sr.entries) {
		return -1
	}
	return idx
}

// pending reports whether the entry at idx is waiting to be sent again
func (sr *selRepeatTx) pending(idx int) bool {
	entry := sr.entries[idx]
	return entry.sent && !entry.acked && !entry.timerArmed
}

// nextToSend picks the frame to send: first a frame queued for resending,
// then the first frame never sent.  It returns -1 if there is none
func (sr *selRepeatTx) nextToSend() (int, bool) {
	for len(sr.resend) > 0 {
		seq := sr.resend[0]
		sr.resend = sr.resend[1:]
		idx := sr.index(seq)
		if idx >= 0 && sr.pending(idx) {
			return idx, true
		}
	}
	for idx, entry := range sr.entries {
		if !entry.sent {
			return idx, false
		}
	}
	return -1, false
}

// moreToSend reports whether nextToSend would find a frame
func (sr *selRepeatTx) moreToSend() bool {
	for _, seq := range sr.resend {
		idx := sr.index(seq)
		if idx >= 0 && sr.pending(idx) {
			return true
		}
	}
	return slices.IndexFunc(sr.entries, func(entry srEntry) bool { return !entry.sent }) >= 0
}

// queueResend puts seq on the resend list, once
func (sr *selRepeatTx) queueResend(seq int) {
	if !slices.Contains(sr.resend, seq) {
		sr.resend = append(sr.resend, seq)
	}
}

// StartTransmit sends one frame and asks to be called again when the channel
// is free if more are waiting
func (sr *selRepeatTx) StartTransmit() error {
	if !sr.beginStart() {
		return nil
	}
	if err := sr.refill(); err != nil {
		return err
	}
	for len(sr.entries) < sr.buffer.len() {
		sr.entries = append(sr.entries, srEntry{})
	}

	idx, again := sr.nextToSend()
	if idx < 0 {
		return nil
	}
	seq := (sr.base + idx) % sr.modulus
	if err := sr.sendData(sr.buffer.at(idx), seq, again); err != nil {
		return err
	}
	sr.entries[idx].sent = true
	sr.entries[idx].timerArmed = true
	sr.armTimer(sr.freeAt+sr.timeout, seq)

	if sr.moreToSend() {
		sr.scheduleStart(sr.freeAt)
	}
	return nil
}

// OnFrame takes an individual ACK or NAK
func (sr *selRepeatTx) OnFrame(frame Frame) error {
	header, seq, err := parseControl(frame, sr.seqBits)
	if err != nil {
		return err
	}
	if header == ackHeader {
		sr.stats.AcksReceived += 1
	} else {
		sr.stats.NaksReceived += 1
	}

	idx := sr.index(seq)
	if idx < 0 || !sr.entries[idx].sent || sr.entries[idx].acked {
		sr.staleAck(frame, seq)
		return nil
	}

	if sr.entries[idx].timerArmed {
		if err := sr.env.CancelTimer(seq); err != nil {
			return err
		}
		sr.entries[idx].timerArmed = false
	}

	if header == nakHeader {
		sr.env.Trace("nak", frame, seq)
		sr.env.Logger().WithField("seq", seq).Debug("NAK, frame queued for resending")
		sr.queueResend(seq)
		sr.scheduleStart(sr.env.Now())
		return nil
	}

	sr.env.Trace("ack", frame, seq)
	sr.entries[idx].acked = true
	for len(sr.entries) > 0 && sr.entries[0].acked {
		sr.buffer.pop()
		sr.entries = sr.entries[1:]
		sr.base = (sr.base + 1) % sr.modulus
	}
	sr.scheduleStart(sr.env.Now())
	return nil
}

// OnTimeout queues the frame whose timer expired to be sent again
func (sr *selRepeatTx) OnTimeout(seq int) error {
	idx := sr.index(seq)
	if idx < 0 || !sr.entries[idx].timerArmed || sr.entries[idx].acked {
		return nil
	}
	sr.entries[idx].timerArmed = false
	sr.stats.Timeouts += 1
	sr.env.Trace("timeout", Frame{}, seq)
	sr.env.Logger().WithField("seq", seq).Debug("timeout, frame queued for resending")
	sr.queueResend(seq)
	sr.scheduleStart(sr.env.Now())
	return nil
}

// selRepeatRx is the receiver side of Selective-Repeat.  Frames inside the
// receive window are kept until the frames before them arrive, and runs are
// delivered in order.  Every frame is answered with an ACK naming it; the first
// time a gap is seen at the head of the window a NAK names the missing frame.
type selRepeatRx struct {
	linkPort
	window  int
	base    int      // sequence number expected next in order
	slots   []*Frame // slots[i] holds the payload of base+i, if received
	nakSent bool     // a NAK for base went out since base last moved
}

func createSelRepeatRx(env LinkEnv, window int) *selRepeatRx {
	sr := new(selRepeatRx)
	sr.window = window
	sr.linkPort = createLinkPort(env, 0.0, SelectiveRepeat.Modulus(window), 1)
	sr.slots = make([]*Frame, window)
	return sr
}

// StartTransmit has nothing to do, a receiver only replies
func (sr *selRepeatRx) StartTransmit() error {
	return nil
}

// Buffered returns the number of out-of-order frames held
func (sr *selRepeatRx) Buffered() int {
	held := 0
	for _, slot := range sr.slots {
		if slot != nil {
			held += 1
		}
	}
	return held
}

// OnFrame stores a frame inside the window, delivers what has become
// in order, and replies.  A frame from the previous window means its ACK
// was lost, so it is ACKed again
func (sr *selRepeatRx) OnFrame(frame Frame) error {
	payload, seq, err := parseData(frame, sr.seqBits)
	if err != nil {
		return err
	}

	offset := seqDist(sr.base, seq, sr.modulus)
	if offset >= sr.window {
		sr.stats.Duplicates += 1
		sr.env.Trace("duplicate", frame, seq)
		sr.reply(ackHeader, seq)
		return nil
	}

	if sr.slots[offset] != nil {
		sr.stats.Duplicates += 1
		sr.env.Trace("duplicate", frame, seq)
	} else {
		sr.slots[offset] = &payload
		if offset > 0 {
			sr.stats.OutOfOrder += 1
		}
	}
	sr.reply(ackHeader, seq)

	if sr.slots[0] == nil {
		if !sr.nakSent {
			sr.env.Logger().WithField("seq", sr.base).Debugf("gap before %d, NAK sent", seq)
			sr.reply(nakHeader, sr.base)
			sr.nakSent = true
		}
		return nil
	}

	for sr.slots[0] != nil {
		if err := sr.env.DeliverUp(*sr.slots[0]); err != nil {
			return err
		}
		sr.stats.Delivered += 1
		copy(sr.slots, sr.slots[1:])
		sr.slots[len(sr.slots)-1] = nil
		sr.base = (sr.base + 1) % sr.modulus
		sr.nakSent = false
	}
	return nil
}

// OnTimeout is never called, a receiver holds no timers
func (sr *selRepeatRx) OnTimeout(seq int) error {
	return fmt.Errorf("%w: selective-repeat receiver has no timer %d", ErrProtocol, seq)
}

// PushBuffer rejects packets, the receiver does not send data
func (sr *selRepeatRx) PushBuffer(frame Frame) error {
	return rejectPush(frame)
}
