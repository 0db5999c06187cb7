package arqsim

// node.go holds the Node, the network element that stacks a physical layer,
// one ARQ engine and an upper layer (Source or Sink).  A Node owns its own
// EventQueue; every event on it belongs to the data-link layer.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LowerLayer is what an upper layer sees of the data-link layer below it
type LowerLayer interface {
	FromNetworkLayer(msg Message) error
}

// UpperLayer is the network/application layer of a Node.  down is the
// layer to push packets into while handling msg
type UpperLayer interface {
	FromLinkLayer(msg Message, down LowerLayer) error
}

// Node is a simulation Element
type Node struct {
	name   string
	id     int
	sender bool
	clock  Clock
	queue  *EventQueue
	phy    *PhysicalLayer
	engine ArqEngine
	upper  UpperLayer
	tm     *TraceManager
	log    logrus.FieldLogger
}

// CreateNode is a constructor.  The node is not usable until attach has bound
// it to the channel it transmits on; BuildNetwork does both in one step
func CreateNode(name string, id int, sender bool, clock Clock, upper UpperLayer, tm *TraceManager) *Node {
	node := new(Node)
	node.name = name
	node.id = id
	node.sender = sender
	node.clock = clock
	node.queue = CreateEventQueue()
	node.upper = upper
	node.tm = tm
	node.log = logger.WithField("node", name)
	return node
}

// attach builds the node's physical layer over the channel it transmits on,
// and its ARQ engine
func (node *Node) attach(codec Codec, tx Transmitter, factory EngineFactory) {
	node.phy = CreatePhysicalLayer(codec, tx, node.clock, node)
	node.engine = factory(node)
}

// ElementName implements Element
func (node *Node) ElementName() string {
	return node.name
}

// ID returns the trace identifier of the node
func (node *Node) ID() int {
	return node.id
}

// IsSender reports whether the node holds the sending side of its link
func (node *Node) IsSender() bool {
	return node.sender
}

// Engine returns the node's ARQ engine
func (node *Node) Engine() ArqEngine {
	return node.engine
}

// Phy returns the node's physical layer
func (node *Node) Phy() *PhysicalLayer {
	return node.phy
}

// Start schedules the first transmission at the current time.  It is called
// once, before the simulation is advanced
func (node *Node) Start() {
	node.queue.Insert(Event{Time: node.clock.Now(), Kind: EvLinkStart})
}

// HasPendingEvent implements Element
func (node *Node) HasPendingEvent() bool {
	return node.queue.HasEvent()
}

// NearestEventTime implements Element
func (node *Node) NearestEventTime() (float64, error) {
	return node.queue.NearestTime()
}

// DispatchOne implements Element
func (node *Node) DispatchOne() error {
	evt, err := node.queue.Pop()
	if err != nil {
		return err
	}
	node.log.Debugf("%s at %g", evt.Kind, evt.Time)

	switch evt.Kind {
	case EvLinkStart:
		return node.engine.StartTransmit()
	case EvLinkReply:
		return node.engine.SendReply(evt.Frame)
	case EvLinkTimeout:
		return node.engine.OnTimeout(evt.Seq)
	default:
		return fmt.Errorf("%w: node %s given %s event", ErrProtocol, node.name, evt.Kind)
	}
}

// ReceiveFromChannel implements FrameReceiver, frames arriving on the
// node's receive channel enter at the physical layer
func (node *Node) ReceiveFromChannel(frame Frame) error {
	return node.phy.ReceiveFromChannel(frame)
}

// FromPhysicalLayer implements FrameHandler
func (node *Node) FromPhysicalLayer(frame Frame) error {
	return node.engine.OnFrame(frame)
}

// FromNetworkLayer implements LowerLayer.  Only data frames come down from the network layer
func (node *Node) FromNetworkLayer(msg Message) error {
	df, ok := msg.(DataFrame)
	if !ok {
		return fmt.Errorf("%w: node %s given %T by the network layer", ErrProtocol, node.name, msg)
	}
	return node.engine.PushBuffer(df.Frame)
}

// Now implements LinkEnv
func (node *Node) Now() float64 {
	return node.clock.Now()
}

// Schedule implements LinkEnv
func (node *Node) Schedule(evt Event) {
	node.queue.Insert(evt)
}

// CancelTimer implements LinkEnv
func (node *Node) CancelTimer(seq int) error {
	removed := node.queue.Filter(func(evt Event) bool {
		return evt.Kind != EvLinkTimeout || evt.Seq != seq
	})
	if removed == 0 {
		return fmt.Errorf("%w: node %s has no timer for %d", ErrProtocol, node.name, seq)
	}
	return nil
}

// CancelStart implements LinkEnv
func (node *Node) CancelStart() error {
	removed := node.queue.Filter(func(evt Event) bool {
		return evt.Kind != EvLinkStart
	})
	if removed == 0 {
		return fmt.Errorf("%w: node %s has no start pending", ErrProtocol, node.name)
	}
	return nil
}

// SendDown implements LinkEnv
func (node *Node) SendDown(msg Message) (float64, error) {
	return node.phy.SendFromLinkLayer(msg)
}

// RequestPacket implements LinkEnv
func (node *Node) RequestPacket() error {
	return node.upper.FromLinkLayer(Control{Cmd: CmdPush}, node)
}

// DeliverUp implements LinkEnv
func (node *Node) DeliverUp(frame Frame) error {
	return node.upper.FromLinkLayer(DataFrame{Frame: frame}, node)
}

// Trace implements LinkEnv
func (node *Node) Trace(op string, frame Frame, seq int) {
	node.tm.AddLinkTrace(node.clock.Now(), node.id, op, frame, seq)
}

// Logger implements LinkEnv
func (node *Node) Logger() logrus.FieldLogger {
	return node.log
}
