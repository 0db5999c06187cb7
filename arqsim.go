package arqsim

// arqsim.go is the composition root.  BuildNetwork turns a SimCfg into a
// running simulation: it resolves the parameter assignments that refine the
// configuration, then builds every node, channel and layer and wires them
// together in one step, registering the elements with a fresh Simulator.

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iti/rngstream"
	"github.com/skycoin/skycoin/src/util/logging"
)

var logger = logging.MustGetLogger("arqsim")

// Link gathers everything built for one LinkDesc
type Link struct {
	Desc     LinkDesc
	Protocol ProtocolKind
	Window   int
	Timeout  float64
	Sender   *Node
	Receiver *Node
	Forward  *Channel
	Reverse  *Channel
	Source   *Source
	Sink     *Sink
}

// Network is a simulation ready to be advanced
type Network struct {
	Name  string
	RunID string
	Sim   *Simulator
	Links []*Link
	TM    *TraceManager
}

// NoiseFactory returns the noise model of the named channel
type NoiseFactory func(channelName string, params ChannelParams) NoiseModel

// BuildOpts carries what BuildNetwork needs beyond the SimCfg.  The zero
// value is usable: BSC noise, no recording, no trace
type BuildOpts struct {
	RunID  string
	Noise  NoiseFactory
	Record bool
	TM     *TraceManager
}

// bscNoise is the default NoiseFactory, each channel draws from its own rng stream
func bscNoise(channelName string, params ChannelParams) NoiseModel {
	return CreateBSC(params.ErrorProb, rngstream.New(channelName+"-noise"))
}

// BuildNetwork validates cfg and builds the network it describes.  Channels are
// registered with the Simulator before nodes, so at equal times a frame arrives
// before a timer expires
func BuildNetwork(cfg *SimCfg, opts BuildOpts) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := BuildTopology(cfg); err != nil {
		return nil, err
	}

	chnSpecs, lnkSpecs := createSpecs(cfg)
	if err := applyParameters(cfg.Parameters, chnSpecs, lnkSpecs); err != nil {
		return nil, err
	}

	codec, err := CreateCRC(cfg.Divisor)
	if err != nil {
		return nil, err
	}
	noise := opts.Noise
	if noise == nil {
		noise = bscNoise
	}

	net := new(Network)
	net.Name = cfg.Name
	net.RunID = opts.RunID
	net.Sim = CreateSimulator()
	net.Links = make([]*Link, 0, len(cfg.Links))
	net.TM = opts.TM

	idCounter := 0
	nxtID := func() int {
		idCounter += 1
		return idCounter
	}

	nodes := make([]*Node, 0, 2*len(cfg.Links))
	for idx, ld := range cfg.Links {
		lspec := lnkSpecs[idx]
		fspec, rspec := chnSpecs[2*idx], chnSpecs[2*idx+1]

		if width := cfg.PacketSize + seqBitsFor(lspec.protocol.Modulus(lspec.window)) + codec.Overhead(); width > MaxFrameLen {
			return nil, fmt.Errorf("%w: link %s frames are %d bits wide, at most %d fit", ErrConfig, ld.Name, width, MaxFrameLen)
		}

		lnk := new(Link)
		lnk.Desc = ld
		lnk.Protocol = lspec.protocol
		lnk.Window = lspec.protocol.Window(lspec.window)
		lnk.Timeout = lspec.timeout
		lnk.Source = CreateSource(ld.Sender+"-src", cfg.PacketSize, opts.Record)
		lnk.Sink = CreateSink(opts.Record)

		lnk.Sender = CreateNode(ld.Sender, nxtID(), true, net.Sim, lnk.Source, net.TM)
		lnk.Receiver = CreateNode(ld.Receiver, nxtID(), false, net.Sim, lnk.Sink, net.TM)
		lnk.Forward = CreateChannel(fspec.name, nxtID(), fspec.params, net.Sim, lnk.Receiver,
			noise(fspec.name, fspec.params), net.TM)
		lnk.Reverse = CreateChannel(rspec.name, nxtID(), rspec.params, net.Sim, lnk.Sender,
			noise(rspec.name, rspec.params), net.TM)

		txFactory, err := CreateEngineFactory(lspec.protocol, true, lnk.Window, lspec.timeout)
		if err != nil {
			return nil, err
		}
		rxFactory, err := CreateEngineFactory(lspec.protocol, false, lnk.Window, lspec.timeout)
		if err != nil {
			return nil, err
		}
		lnk.Sender.attach(codec, lnk.Forward, txFactory)
		lnk.Receiver.attach(codec, lnk.Reverse, rxFactory)

		for _, ch := range []*Channel{lnk.Forward, lnk.Reverse} {
			net.Sim.Register(ch)
			if err := net.TM.AddName(ch.ID(), ch.ElementName(), "channel"); err != nil {
				return nil, err
			}
		}
		for _, node := range []*Node{lnk.Sender, lnk.Receiver} {
			nodes = append(nodes, node)
			if err := net.TM.AddName(node.ID(), node.ElementName(), "node"); err != nil {
				return nil, err
			}
		}
		net.Links = append(net.Links, lnk)

		logger.WithField("link", ld.Name).Debugf("%s window %d timeout %g, forward %+v, reverse %+v",
			lnk.Protocol, lnk.Window, lnk.Timeout, fspec.params, rspec.params)
	}

	for _, node := range nodes {
		net.Sim.Register(node)
	}
	for _, node := range nodes {
		if node.IsSender() {
			node.Start()
		}
	}
	return net, nil
}

// valueStruct holds a parameter value decoded from its string form
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	isInt       bool
	isFloat     bool
}

// stringToValueStruct takes a string and determines whether it is an integer,
// floating point, or a string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{}

	ivalue, ierr := strconv.Atoi(v)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		vs.isInt = true
		vs.isFloat = true
		return vs
	}

	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		vs.isFloat = true
		return vs
	}

	vs.stringValue = v
	return vs
}

// paramObj is anything an ExpParameter can be applied to
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, vs valueStruct) error
}

// channelSpec is the resolved configuration of one channel
type channelSpec struct {
	name    string
	link    string
	forward bool
	params  ChannelParams
}

func (cs *channelSpec) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return cs.name == attrbValue
	case "link":
		return cs.link == attrbValue
	case "forward":
		return cs.forward
	case "reverse":
		return !cs.forward
	}
	return false
}

func (cs *channelSpec) setParam(param string, vs valueStruct) error {
	if !vs.isFloat {
		return fmt.Errorf("%w: channel %s %s value %q is not a number", ErrConfig, cs.name, param, vs.stringValue)
	}
	switch param {
	case "errorprob":
		if vs.floatValue < 0.0 || vs.floatValue > 1.0 {
			return fmt.Errorf("%w: channel %s error probability %g outside [0,1]", ErrConfig, cs.name, vs.floatValue)
		}
		cs.params.ErrorProb = vs.floatValue
	case "rate":
		if !(vs.floatValue > 0.0) {
			return fmt.Errorf("%w: channel %s rate %g not positive", ErrConfig, cs.name, vs.floatValue)
		}
		cs.params.TransRate = vs.floatValue
	case "delay":
		if vs.floatValue < 0.0 {
			return fmt.Errorf("%w: channel %s delay %g negative", ErrConfig, cs.name, vs.floatValue)
		}
		cs.params.PropDelay = vs.floatValue
	default:
		return fmt.Errorf("%w: channel has no parameter %s", ErrConfig, param)
	}
	return nil
}

// linkSpec is the resolved configuration of one link's protocol
type linkSpec struct {
	name     string
	protocol ProtocolKind
	timeout  float64
	window   int
}

func (ls *linkSpec) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return ls.name == attrbValue
	default:
		return ls.protocol.String() == attrbName
	}
}

func (ls *linkSpec) setParam(param string, vs valueStruct) error {
	switch param {
	case "timeout":
		if !vs.isFloat || !(vs.floatValue > 0.0) {
			return fmt.Errorf("%w: link %s timeout %q not a positive number", ErrConfig, ls.name, vs.stringValue)
		}
		ls.timeout = vs.floatValue
	case "window":
		if !vs.isInt || vs.intValue < 1 {
			return fmt.Errorf("%w: link %s window not a positive integer", ErrConfig, ls.name)
		}
		ls.window = vs.intValue
	default:
		return fmt.Errorf("%w: link has no parameter %s", ErrConfig, param)
	}
	return nil
}

// createSpecs gives every channel and link the settings of cfg, before any
// ExpParameter is applied.  Channels come in link order, forward then reverse
func createSpecs(cfg *SimCfg) ([]*channelSpec, []*linkSpec) {
	chnSpecs := make([]*channelSpec, 0, 2*len(cfg.Links))
	lnkSpecs := make([]*linkSpec, 0, len(cfg.Links))
	params := ChannelParams{ErrorProb: cfg.ErrorProb, TransRate: cfg.TransRate, PropDelay: cfg.PropDelay}

	for idx := range cfg.Links {
		ld := &cfg.Links[idx]
		chnSpecs = append(chnSpecs,
			&channelSpec{name: ld.ForwardName(), link: ld.Name, forward: true, params: params},
			&channelSpec{name: ld.ReverseName(), link: ld.Name, forward: false, params: params})
		lnkSpecs = append(lnkSpecs,
			&linkSpec{name: ld.Name, protocol: cfg.LinkProtocol(ld), timeout: cfg.Timeout, window: cfg.WindowSize})
	}
	return chnSpecs, lnkSpecs
}

// attrbPair is one element of the comma-separated Attribute of an ExpParameter
type attrbPair struct {
	name  string
	value string
}

// splitAttributes turns "name%%fred" into (name, fred), "*" into (*, ""), and so on
func splitAttributes(attribute string) []attrbPair {
	pairs := make([]attrbPair, 0)
	for _, attrb := range strings.Split(attribute, ",") {
		name, value, _ := strings.Cut(attrb, "%%")
		pairs = append(pairs, attrbPair{name: name, value: value})
	}
	return pairs
}

// generality ranks an ExpParameter: wildcards apply first, named objects last
func generality(param ExpParameter) int {
	for _, pair := range splitAttributes(param.Attribute) {
		if pair.name == "*" {
			return 0
		}
		if pair.name == "name" {
			return 2
		}
	}
	return 1
}

// reorderExpParams puts the parameter list in application order,
// most general first, and removes duplicates
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	ordered := make([]ExpParameter, len(pL))
	copy(ordered, pL)

	// stable, so among equally general assignments the last one given wins
	sort.SliceStable(ordered, func(i, j int) bool {
		return generality(ordered[i]) < generality(ordered[j])
	})

	rtn := make([]ExpParameter, 0, len(ordered))
	for _, param := range ordered {
		if len(rtn) > 0 && rtn[len(rtn)-1] == param {
			continue
		}
		rtn = append(rtn, param)
	}
	return rtn
}

// applyParameters applies every ExpParameter to the objects whose attributes it matches
func applyParameters(params []ExpParameter, chnSpecs []*channelSpec, lnkSpecs []*linkSpec) error {
	channelList := make([]paramObj, 0, len(chnSpecs))
	for _, cs := range chnSpecs {
		channelList = append(channelList, cs)
	}
	linkList := make([]paramObj, 0, len(lnkSpecs))
	for _, ls := range lnkSpecs {
		linkList = append(linkList, ls)
	}

	for _, param := range reorderExpParams(params) {
		var testList []paramObj
		switch param.ParamObj {
		case "Channel":
			testList = channelList
		case "Link":
			testList = linkList
		default:
			return fmt.Errorf("%w: parameter object %s not recognized", ErrConfig, param.ParamObj)
		}

		// every attribute in a comma-separated list has to match, '*' matches everything
		attrbs := splitAttributes(param.Attribute)
		for _, testObj := range testList {
			matched := true
			for _, attrb := range attrbs {
				if attrb.name == "*" {
					matched = true
					break
				}
				if !testObj.matchParam(attrb.name, attrb.value) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			if err := testObj.setParam(param.Param, stringToValueStruct(param.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}
