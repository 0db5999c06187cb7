package arqsim

// traffic.go holds the network layer of the two ends of a link: the Source
// that makes a random fixed-size packet each time the data-link layer pulls
// one, and the Sink that counts what the data-link layer delivers
import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// payloadChunk is the number of random bits drawn at a time
const payloadChunk = 16

// Source is the UpperLayer of a sending Node
type Source struct {
	packetSize int
	pushed     int
	keep       bool
	record     []Frame
	rngstrm    *rngstream.RngStream
}

// CreateSource is a constructor.  Packets are packetSize bits long, drawn
// from an rng stream of the given name.  With keep set every packet made is recorded
func CreateSource(name string, packetSize int, keep bool) *Source {
	src := new(Source)
	src.packetSize = packetSize
	src.keep = keep
	src.record = make([]Frame, 0)
	src.rngstrm = rngstream.New(name)
	return src
}

// Pushed returns the number of packets handed down
func (src *Source) Pushed() int {
	return src.pushed
}

// Record returns the packets handed down, oldest first, if recording was asked for
func (src *Source) Record() []Frame {
	return src.record
}

// nextPacket draws packetSize random bits
func (src *Source) nextPacket() Frame {
	var bits uint64
	for remaining := src.packetSize; remaining > 0; remaining -= payloadChunk {
		width := payloadChunk
		if remaining < width {
			width = remaining
		}
		chunk := src.rngstrm.RandInt(0, (1<<uint(width))-1)
		bits = bits<<uint(width) | uint64(chunk)
	}
	return Frame{Bits: bits, Len: src.packetSize}
}

// FromLinkLayer implements UpperLayer.  A push request is answered
// synchronously with one new packet
func (src *Source) FromLinkLayer(msg Message, down LowerLayer) error {
	ctrl, ok := msg.(Control)
	if !ok || ctrl.Cmd != CmdPush {
		return fmt.Errorf("%w: source given %v", ErrProtocol, msg)
	}
	packet := src.nextPacket()
	if err := down.FromNetworkLayer(DataFrame{Frame: packet}); err != nil {
		return err
	}
	src.pushed += 1
	if src.keep {
		src.record = append(src.record, packet)
	}
	return nil
}

// Sink is the UpperLayer of a receiving Node
type Sink struct {
	counter int
	keep    bool
	record  []Frame
}

// CreateSink is a constructor.  With keep set every packet delivered is recorded
func CreateSink(keep bool) *Sink {
	sink := new(Sink)
	sink.keep = keep
	sink.record = make([]Frame, 0)
	return sink
}

// Count returns the number of packets delivered
func (sink *Sink) Count() int {
	return sink.counter
}

// Record returns the packets delivered, oldest first, if recording was asked for
func (sink *Sink) Record() []Frame {
	return sink.record
}

// FromLinkLayer implements UpperLayer.  Every data frame delivered is accepted
func (sink *Sink) FromLinkLayer(msg Message, down LowerLayer) error {
	df, ok := msg.(DataFrame)
	if !ok {
		return fmt.Errorf("%w: sink given %v", ErrProtocol, msg)
	}
	sink.counter += 1
	if sink.keep {
		sink.record = append(sink.record, df.Frame)
	}
	return nil
}

var rdigits uint = 15

// round computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
