package arqsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubElement records the order in which its events are run
type stubElement struct {
	name  string
	queue *EventQueue
	ran   *[]string
}

func createStubElement(name string, ran *[]string, times ...float64) *stubElement {
	se := &stubElement{name: name, queue: CreateEventQueue(), ran: ran}
	for _, t := range times {
		se.queue.Insert(Event{Time: t})
	}
	return se
}

func (se *stubElement) ElementName() string { return se.name }

func (se *stubElement) HasPendingEvent() bool { return se.queue.HasEvent() }

func (se *stubElement) NearestEventTime() (float64, error) { return se.queue.NearestTime() }

func (se *stubElement) DispatchOne() error {
	if _, err := se.queue.Pop(); err != nil {
		return err
	}
	*se.ran = append(*se.ran, se.name)
	return nil
}

func TestSimulatorTieBreak(t *testing.T) {
	ran := make([]string, 0)
	sim := CreateSimulator()
	assert.Equal(t, 0, sim.Register(createStubElement("a", &ran, 1.0, 2.0)))
	assert.Equal(t, 1, sim.Register(createStubElement("b", &ran, 0.5, 1.0)))

	require.NoError(t, sim.Advance(5.0))
	assert.Equal(t, []string{"b", "a", "b", "a"}, ran)
	assert.Equal(t, 4, sim.Dispatched())
	assert.Equal(t, 5.0, sim.Now())
}

func TestSimulatorHorizon(t *testing.T) {
	ran := make([]string, 0)
	sim := CreateSimulator()
	sim.Register(createStubElement("a", &ran, 1.0, 2.0, 3.0))

	seen := make([]float64, 0)
	sim.AddDispatchHook(func(time float64, elemIdx int, elemName string) {
		seen = append(seen, time)
	})

	// an event exactly at the horizon is run, a later one is not
	require.NoError(t, sim.Advance(2.0))
	assert.Equal(t, []float64{1.0, 2.0}, seen)
	assert.Equal(t, 2.0, sim.Now())
	assert.True(t, sim.Element(0).HasPendingEvent())

	require.NoError(t, sim.Advance(2.5))
	assert.Equal(t, 2.5, sim.Now())
	assert.Len(t, seen, 2)

	// nothing to do still moves time forward
	require.NoError(t, sim.Advance(10.0))
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, seen)
	assert.Equal(t, 10.0, sim.Now())
}

func TestSimulatorTimeOrdering(t *testing.T) {
	ran := make([]string, 0)
	sim := CreateSimulator()
	se := createStubElement("a", &ran)
	sim.Register(se)

	require.NoError(t, sim.Advance(5.0))
	se.queue.Insert(Event{Time: 3.0})
	err := sim.Advance(10.0)
	assert.ErrorIs(t, err, ErrTimeOrdering)
	assert.Empty(t, ran)
}

func TestSimulatorMonotonicDispatch(t *testing.T) {
	cfg := testCfg("sr", 0.005)
	cfg.ErrorProb = 1e-3
	net, err := BuildNetwork(cfg, BuildOpts{})
	require.NoError(t, err)

	last := 0.0
	dispatched := 0
	net.Sim.AddDispatchHook(func(time float64, elemIdx int, elemName string) {
		assert.GreaterOrEqual(t, time, last)
		assert.LessOrEqual(t, time, cfg.Horizon)
		last = time
		dispatched++
	})
	require.NoError(t, net.Run(cfg.Horizon))
	assert.Equal(t, dispatched, net.Sim.Dispatched())
	assert.Positive(t, dispatched)
}
