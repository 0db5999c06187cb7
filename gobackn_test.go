package arqsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStarts dispatches queued EvLinkStart events, earliest first, until none is left
func runStarts(t *testing.T, env *fakeEnv, engine ArqEngine) {
	for {
		at := -1
		for idx, evt := range env.events {
			if evt.Kind == EvLinkStart && (at < 0 || evt.Time < env.events[at].Time) {
				at = idx
			}
		}
		if at < 0 {
			return
		}
		evt := env.events[at]
		env.events = append(env.events[:at], env.events[at+1:]...)
		env.now = evt.Time
		require.NoError(t, engine.StartTransmit())
	}
}

func TestGoBackNTxWindow(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	gbn := createGoBackNTx(env, 4, 0.1)
	env.engine = gbn

	require.NoError(t, gbn.StartTransmit())
	runStarts(t, env, gbn)

	// the whole window goes out back to back under one timer
	require.Len(t, env.sent, 4)
	for seq := 0; seq < 4; seq++ {
		assert.Equal(t, DataFrame{Frame: dataFrame(uint64(seq+1), seq, 3)}, env.sent[seq])
	}
	timers := env.eventsOf(EvLinkTimeout)
	require.Len(t, timers, 1)
	assert.Equal(t, 0, timers[0].Seq)
	assert.Equal(t, 0.101, timers[0].Time)

	// cumulative ACK for frames 0 and 1
	env.now = 0.005
	require.NoError(t, gbn.OnFrame(controlFrame(ackHeader, 2, 3)))
	timers = env.eventsOf(EvLinkTimeout)
	require.Len(t, timers, 1)
	assert.Equal(t, 2, timers[0].Seq)
	assert.Equal(t, 0.105, timers[0].Time)

	runStarts(t, env, gbn)
	require.Len(t, env.sent, 6)
	assert.Equal(t, DataFrame{Frame: dataFrame(5, 4, 3)}, env.sent[4])
	assert.Equal(t, DataFrame{Frame: dataFrame(6, 5, 3)}, env.sent[5])

	// nothing new, and a frame never sent
	require.NoError(t, gbn.OnFrame(controlFrame(ackHeader, 2, 3)))
	require.NoError(t, gbn.OnFrame(controlFrame(ackHeader, 7, 3)))
	assert.Equal(t, 2, gbn.Stats().StaleAcks)
	assert.Equal(t, 4, gbn.Buffered())

	assert.ErrorIs(t, gbn.OnFrame(controlFrame(nakHeader, 2, 3)), ErrProtocol)
}

func TestGoBackNTxTimeout(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	gbn := createGoBackNTx(env, 4, 0.1)
	env.engine = gbn

	require.NoError(t, gbn.StartTransmit())

	// stale timer
	require.NoError(t, gbn.OnTimeout(3))
	assert.Equal(t, 0, gbn.Stats().Timeouts)

	// the frame on the channel is aborted and the window sent again
	hook := env.captureLog()
	env.now = 0.0005
	require.NoError(t, gbn.OnTimeout(0))
	assert.Equal(t, 1, gbn.Stats().Timeouts)
	assert.Equal(t, 1, gbn.Stats().Aborted)
	assert.Equal(t, Control{Cmd: CmdCancelTransmit}, env.sent[1])

	// the start that waited for the aborted frame is replaced by one right away
	starts := env.eventsOf(EvLinkStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 0.0005, starts[0].Time)

	runStarts(t, env, gbn)
	require.Len(t, env.sent, 6)
	assert.Equal(t, env.sent[0], env.sent[2])
	assert.Equal(t, 1, gbn.Stats().Retransmissions)

	// the resent frame leaves the channel at 0.0015 and the new timer runs from there
	timers := env.eventsOf(EvLinkTimeout)
	assert.InDelta(t, 0.1015, timers[len(timers)-1].Time, 1e-12)

	msgs := logged(hook)
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, "timeout, going back over 1 frames", msgs[0])
	assert.Equal(t, "frame on the channel until 0.001 aborted at 0.0005", msgs[1])
	assert.Contains(t, msgs, "retransmission at 0.0005")
}

func TestGoBackNRx(t *testing.T) {
	env := &fakeEnv{frameTime: 1e-3}
	gbn := createGoBackNRx(env, 4)
	env.engine = gbn

	require.NoError(t, gbn.OnFrame(dataFrame(0x10, 0, 3)))
	require.NoError(t, gbn.OnFrame(dataFrame(0x12, 2, 3)))
	require.NoError(t, gbn.OnFrame(dataFrame(0x11, 1, 3)))

	assert.Equal(t, []Frame{{Bits: 0x10, Len: 8}, {Bits: 0x11, Len: 8}}, env.delivered)
	assert.Equal(t, 1, gbn.Stats().Discarded)

	replies := env.eventsOf(EvLinkReply)
	require.Len(t, replies, 3)
	assert.Equal(t, controlFrame(ackHeader, 1, 3), replies[0].Frame)
	assert.Equal(t, controlFrame(ackHeader, 1, 3), replies[1].Frame)
	assert.Equal(t, controlFrame(ackHeader, 2, 3), replies[2].Frame)
}

func TestGoBackNErrorFree(t *testing.T) {
	cfg := testCfg("gbn", 0.01)
	net := runNetwork(t, cfg, nil, nil)
	lr := net.Report(cfg.PacketSize).Links[0]

	// frames delivered whose ACK is still on its way are held too
	assert.LessOrEqual(t, lr.Pushed-lr.Held, lr.Delivered)
	assert.LessOrEqual(t, lr.Delivered, lr.Pushed)
	assert.Equal(t, 0, lr.Tx.Timeouts)
	assert.Equal(t, 0, lr.Tx.Retransmissions)
	assert.Equal(t, 0, lr.Rx.Discarded)
	// the sender never waits, 38 bit frames back to back
	assert.InDelta(t, 263, lr.Delivered, 1)
	requireExactlyOnceInOrder(t, net.Links[0])
}

func TestGoBackNLostFrame(t *testing.T) {
	cfg := testCfg("gbn", 0.01)
	net := runNetwork(t, cfg, dropFactory([]int{2}, nil), nil)
	lnk := net.Links[0]

	stats := lnk.Sender.Engine().Stats()
	assert.Equal(t, 1, stats.Timeouts)
	assert.GreaterOrEqual(t, stats.Retransmissions, 1)
	assert.Positive(t, lnk.Receiver.Engine().Stats().Discarded)
	requireExactlyOnceInOrder(t, lnk)
}

func TestGoBackNNoisy(t *testing.T) {
	cfg := testCfg("gbn", 0.02)
	cfg.ErrorProb = 2e-3
	cfg.PropDelay = 1e-5
	net := runNetwork(t, cfg, nil, nil)
	lnk := net.Links[0]

	assert.Positive(t, lnk.Sender.Engine().Stats().Retransmissions)
	requireExactlyOnceInOrder(t, lnk)
}
