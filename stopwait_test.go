package arqsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStopWaitTxAck(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	sw := createStopWaitTx(env, 0.5)
	env.engine = sw

	require.NoError(t, sw.StartTransmit())
	require.Len(t, env.sent, 1)
	assert.Equal(t, DataFrame{Frame: dataFrame(1, 0, 1)}, env.sent[0])
	timers := env.eventsOf(EvLinkTimeout)
	require.Len(t, timers, 1)
	assert.Equal(t, 0.501, timers[0].Time)
	assert.Equal(t, 0, timers[0].Seq)

	// an ACK carrying the bit just sent confirms nothing
	env.now = 0.002
	require.NoError(t, sw.OnFrame(controlFrame(ackHeader, 0, 1)))
	assert.Equal(t, 1, sw.Stats().StaleAcks)
	assert.Equal(t, 1, sw.Buffered())

	require.NoError(t, sw.OnFrame(controlFrame(ackHeader, 1, 1)))
	assert.Empty(t, env.eventsOf(EvLinkTimeout))
	assert.Equal(t, 0, sw.Buffered())
	starts := env.eventsOf(EvLinkStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 0.002, starts[0].Time)
	assert.Equal(t, 2, sw.Stats().AcksReceived)

	// the next frame carries the other bit
	env.events = nil
	require.NoError(t, sw.StartTransmit())
	assert.Equal(t, DataFrame{Frame: dataFrame(2, 1, 1)}, env.sent[1])

	assert.ErrorIs(t, sw.OnFrame(controlFrame(nakHeader, 0, 1)), ErrProtocol)
}

func TestStopWaitTxTimeout(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	sw := createStopWaitTx(env, 0.5)
	env.engine = sw
	require.NoError(t, sw.StartTransmit())
	env.events = nil

	// a timeout for the other bit is not ours
	require.NoError(t, sw.OnTimeout(1))
	assert.Empty(t, env.events)

	hook := env.captureLog()
	env.now = 0.501
	require.NoError(t, sw.OnTimeout(0))
	assert.Equal(t, 1, sw.Stats().Timeouts)
	require.Len(t, env.eventsOf(EvLinkStart), 1)

	env.events = nil
	require.NoError(t, sw.StartTransmit())
	assert.Equal(t, []string{"timeout after 1 attempts", "retransmission at 0.501"}, logged(hook))
	assert.Equal(t, 0, hook.LastEntry().Data["seq"])
	require.Len(t, env.sent, 2)
	assert.Equal(t, env.sent[0], env.sent[1])
	assert.Equal(t, 1, sw.Stats().Retransmissions)
	assert.Equal(t, 2, sw.Stats().FramesSent)
	assert.Equal(t, 1, env.pushed)
}

func TestStopWaitRx(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	sw := createStopWaitRx(env)
	env.engine = sw

	require.NoError(t, sw.OnFrame(dataFrame(0x42, 0, 1)))
	require.NoError(t, sw.OnFrame(dataFrame(0x42, 0, 1)))
	require.NoError(t, sw.OnFrame(dataFrame(0x43, 1, 1)))

	assert.Equal(t, []Frame{{Bits: 0x42, Len: 8}, {Bits: 0x43, Len: 8}}, env.delivered)
	assert.Equal(t, 1, sw.Stats().Duplicates)
	assert.Equal(t, 2, sw.Stats().Delivered)

	// every frame is answered with the bit expected next
	replies := env.eventsOf(EvLinkReply)
	require.Len(t, replies, 3)
	assert.Equal(t, controlFrame(ackHeader, 1, 1), replies[0].Frame)
	assert.Equal(t, controlFrame(ackHeader, 1, 1), replies[1].Frame)
	assert.Equal(t, controlFrame(ackHeader, 0, 1), replies[2].Frame)
	assert.Equal(t, 3, sw.Stats().AcksSent)

	require.NoError(t, sw.SendReply(replies[0].Frame))
	assert.Equal(t, DataFrame{Frame: replies[0].Frame}, env.sent[0])

	// channel busy, the reply waits for it
	require.NoError(t, sw.SendReply(replies[1].Frame))
	assert.Len(t, env.sent, 1)
	assert.Len(t, env.eventsOf(EvLinkReply), 4)
}

func TestStopWaitErrorFree(t *testing.T) {
	cfg := testCfg("sw", 0.01)
	net := runNetwork(t, cfg, nil, nil)
	lnk := net.Links[0]
	rep := net.Report(cfg.PacketSize)
	lr := rep.Links[0]

	// 36 bit frames and 12 bit ACKs at 1 Mbit/s, a packet every 48 microseconds
	assert.InDelta(t, 208, lr.Delivered, 1)
	assert.Equal(t, lr.Pushed-lr.Held, lr.Delivered)
	assert.Equal(t, 0, lr.Tx.Timeouts)
	assert.Equal(t, 0, lr.Tx.Retransmissions)
	assert.Equal(t, 0, lr.Rx.Duplicates)
	requireExactlyOnceInOrder(t, lnk)
}

// linkTraces decodes the link trace records held for objID
func linkTraces(t *testing.T, tm *TraceManager, objID int) []LinkTrace {
	rtn := make([]LinkTrace, 0)
	for _, inst := range tm.Traces[objID] {
		var ltr LinkTrace
		require.NoError(t, yaml.Unmarshal([]byte(inst.TraceStr), &ltr))
		rtn = append(rtn, ltr)
	}
	return rtn
}

func TestStopWaitLostFrame(t *testing.T) {
	cfg := testCfg("sw", 0.01)
	tm := CreateTraceManager("test", "run", true)
	net := runNetwork(t, cfg, dropFactory([]int{2}, nil), tm)
	lnk := net.Links[0]

	stats := lnk.Sender.Engine().Stats()
	assert.Equal(t, 1, stats.Timeouts)
	assert.Equal(t, 1, stats.Retransmissions)
	assert.Equal(t, 0, lnk.Receiver.Engine().Stats().Duplicates)
	assert.Equal(t, 1, lnk.Receiver.Phy().Dropped())
	requireExactlyOnceInOrder(t, lnk)

	// the retransmission starts exactly one timeout after the lost frame left the sender
	var lostAt, resentAt float64
	sends := 0
	for _, ltr := range linkTraces(t, tm, lnk.Sender.ID()) {
		switch ltr.Op {
		case "send":
			sends++
			if sends == 3 {
				lostAt = ltr.Time
			}
		case "retransmit":
			resentAt = ltr.Time
		}
	}
	require.Positive(t, lostAt)
	assert.InDelta(t, lostAt+36e-6+cfg.Timeout, resentAt, 1e-9)
}

func TestStopWaitLostAck(t *testing.T) {
	cfg := testCfg("sw", 0.01)
	net := runNetwork(t, cfg, dropFactory(nil, []int{2}), nil)
	lnk := net.Links[0]

	assert.Equal(t, 1, lnk.Sender.Engine().Stats().Timeouts)
	assert.Equal(t, 1, lnk.Receiver.Engine().Stats().Duplicates)
	assert.Equal(t, 1, lnk.Sender.Phy().Dropped())
	requireExactlyOnceInOrder(t, lnk)
}

func TestStopWaitNoisy(t *testing.T) {
	cfg := testCfg("sw", 0.02)
	cfg.ErrorProb = 5e-3
	net := runNetwork(t, cfg, nil, nil)
	lnk := net.Links[0]

	assert.Positive(t, lnk.Sender.Engine().Stats().Retransmissions)
	requireExactlyOnceInOrder(t, lnk)
}
