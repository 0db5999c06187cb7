package arqsim

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv stands in for a Node.  Frames sent occupy the channel for frameTime
type fakeEnv struct {
	now       float64
	frameTime float64
	engine    ArqEngine
	events    []Event
	sent      []Message
	delivered []Frame
	pushed    int
	log       logrus.FieldLogger
}

func (fe *fakeEnv) Now() float64 { return fe.now }

func (fe *fakeEnv) Schedule(evt Event) { fe.events = append(fe.events, evt) }

func (fe *fakeEnv) CancelTimer(seq int) error {
	kept := make([]Event, 0, len(fe.events))
	for _, evt := range fe.events {
		if evt.Kind != EvLinkTimeout || evt.Seq != seq {
			kept = append(kept, evt)
		}
	}
	if len(kept) == len(fe.events) {
		return ErrProtocol
	}
	fe.events = kept
	return nil
}

func (fe *fakeEnv) SendDown(msg Message) (float64, error) {
	fe.sent = append(fe.sent, msg)
	if _, ok := msg.(Control); ok {
		return fe.now, nil
	}
	return fe.now + fe.frameTime, nil
}

func (fe *fakeEnv) RequestPacket() error {
	fe.pushed++
	return fe.engine.PushBuffer(Frame{Bits: uint64(fe.pushed), Len: 8})
}

func (fe *fakeEnv) DeliverUp(frame Frame) error {
	fe.delivered = append(fe.delivered, frame)
	return nil
}

func (fe *fakeEnv) Trace(op string, frame Frame, seq int) {}

func (fe *fakeEnv) CancelStart() error {
	kept := make([]Event, 0, len(fe.events))
	for _, evt := range fe.events {
		if evt.Kind != EvLinkStart {
			kept = append(kept, evt)
		}
	}
	if len(kept) == len(fe.events) {
		return ErrProtocol
	}
	fe.events = kept
	return nil
}

func (fe *fakeEnv) Logger() logrus.FieldLogger {
	if fe.log != nil {
		return fe.log
	}
	return logger
}

// captureLog routes the engine's log to a hook that keeps every entry
func (fe *fakeEnv) captureLog() *test.Hook {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	fe.log = log
	return hook
}

// logged returns the messages of the entries hook has kept
func logged(hook *test.Hook) []string {
	msgs := make([]string, 0)
	for _, entry := range hook.AllEntries() {
		msgs = append(msgs, entry.Message)
	}
	return msgs
}

// eventsOf returns the queued events of the given kind
func (fe *fakeEnv) eventsOf(kind EventKind) []Event {
	rtn := make([]Event, 0)
	for _, evt := range fe.events {
		if evt.Kind == kind {
			rtn = append(rtn, evt)
		}
	}
	return rtn
}

// dataFrame builds what a sender with seqBits sequence bits puts on the channel
func dataFrame(payload uint64, seq, seqBits int) Frame {
	return Frame{Bits: payload, Len: 8}.appendField(uint64(seq), seqBits)
}

func TestFrameBuffer(t *testing.T) {
	fb := createFrameBuffer(2)
	require.NoError(t, fb.push(Frame{Bits: 1, Len: 1}))
	require.NoError(t, fb.push(Frame{Bits: 0, Len: 1}))
	assert.True(t, fb.full())
	assert.ErrorIs(t, fb.push(Frame{Bits: 1, Len: 1}), ErrBufferOverflow)

	frame, ok := fb.pop()
	assert.True(t, ok)
	assert.Equal(t, Frame{Bits: 1, Len: 1}, frame)
	_, ok = fb.pop()
	assert.True(t, ok)
	_, ok = fb.pop()
	assert.False(t, ok)
}

func TestSequenceSpace(t *testing.T) {
	assert.Equal(t, 1, seqBitsFor(2))
	assert.Equal(t, 3, seqBitsFor(8))
	assert.Equal(t, 4, seqBitsFor(10))

	assert.Equal(t, 2, seqDist(6, 0, 8))
	assert.Equal(t, 0, seqDist(3, 3, 8))
	assert.Equal(t, 7, seqDist(1, 0, 8))

	assert.Equal(t, 2, StopAndWait.Modulus(4))
	assert.Equal(t, 1, StopAndWait.Window(4))
	assert.Equal(t, 8, GoBackN.Modulus(4))
	assert.Equal(t, 8, SelectiveRepeat.Modulus(4))
	assert.Equal(t, 4, SelectiveRepeat.Window(4))
}

func TestControlFrames(t *testing.T) {
	frame := controlFrame(ackHeader, 5, 3)
	assert.Equal(t, 11, frame.Len)

	header, seq, err := parseControl(frame, 3)
	require.NoError(t, err)
	assert.Equal(t, ackHeader, header)
	assert.Equal(t, 5, seq)

	_, _, err = parseControl(Frame{Bits: 0x12 << 3, Len: 11}, 3)
	assert.ErrorIs(t, err, ErrProtocol)
	_, _, err = parseControl(frame, 2)
	assert.ErrorIs(t, err, ErrProtocol)

	payload, seq, err := parseData(dataFrame(0xC3, 1, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, Frame{Bits: 0xC3, Len: 8}, payload)
	assert.Equal(t, 1, seq)

	_, _, err = parseData(Frame{Bits: 1, Len: 1}, 1)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestProtocolNames(t *testing.T) {
	for _, pk := range []ProtocolKind{StopAndWait, GoBackN, SelectiveRepeat} {
		assert.Equal(t, pk, ProtocolFromStr(pk.String()))
	}
	assert.Equal(t, GoBackN, ProtocolFromStr("gbn"))
	assert.Equal(t, SelectiveRepeat, ProtocolFromStr("sr"))
	assert.Equal(t, unknownProtocol, ProtocolFromStr("sliding"))

	_, err := CreateEngineFactory(unknownProtocol, true, 4, 1.0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestReceiversRejectPackets(t *testing.T) {
	env := &fakeEnv{}
	receivers := []ArqEngine{createStopWaitRx(env), createGoBackNRx(env, 4), createSelRepeatRx(env, 4)}
	for _, rx := range receivers {
		assert.ErrorIs(t, rx.PushBuffer(Frame{Bits: 1, Len: 8}), ErrProtocol)
		assert.ErrorIs(t, rx.OnTimeout(0), ErrProtocol)
		assert.NoError(t, rx.StartTransmit())
		assert.Empty(t, env.sent)
	}
}
